// Package httpstore implements ports.RemoteStore against the tikkit HTTP API:
// one JSON dataset per account, GET and POST /data with a bearer token.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tikkit/internal/domain"
	"tikkit/internal/ports"
)

// Client talks to one tikkit server on behalf of one credential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL, token string, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// Load fetches the account's dataset. A 401 maps to ports.ErrUnauthorized so
// the caller can discard the credential.
func (c *Client) Load(ctx context.Context) (*domain.Dataset, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/data", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ports.ErrUnauthorized
	default:
		return nil, unexpectedStatus(resp)
	}
	var ds domain.Dataset
	if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	if ds.Tasks == nil {
		ds.Tasks = []*domain.Task{}
	}
	return &ds, nil
}

// Save overwrites the account's dataset wholesale.
func (c *Client) Save(ctx context.Context, ds *domain.Dataset) error {
	body, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/data", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return ports.ErrUnauthorized
	default:
		return unexpectedStatus(resp)
	}
}

// Login exchanges credentials for a bearer token.
func Login(ctx context.Context, baseURL, email, password string) (string, error) {
	return authRequest(ctx, baseURL, "/auth/login", email, password)
}

// Signup registers a new account and returns its bearer token.
func Signup(ctx context.Context, baseURL, email, password string) (string, error) {
	return authRequest(ctx, baseURL, "/auth/signup", email, password)
}

func authRequest(ctx context.Context, baseURL, path, email, password string) (string, error) {
	u, err := joinURL(baseURL, path)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var payload struct {
		Token  string `json:"token"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if payload.Detail != "" {
			return "", fmt.Errorf("auth failed: %s", payload.Detail)
		}
		return "", fmt.Errorf("auth failed: status %d", resp.StatusCode)
	}
	return payload.Token, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := joinURL(c.baseURL, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func joinURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u.Path = path
	return u.String(), nil
}

func unexpectedStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("remote store: unexpected status %d: %s", resp.StatusCode, string(body))
}
