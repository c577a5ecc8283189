// Package config holds environment-driven configuration plus the client's
// cached credential file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8787"

// Config holds environment-driven configuration.
type Config struct {
	Server struct {
		Addr     string        // listen address for `tikkit serve`
		TokenTTL time.Duration // bearer token lifetime
	}
	MySQL struct {
		DSN string // e.g., user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
	}
	Client struct {
		ServerURL string // remote store base URL
	}
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config

	cfg.Server.Addr = os.Getenv("TIKKIT_ADDR")
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8787"
	}
	cfg.Server.TokenTTL = 30 * 24 * time.Hour
	if ttl := os.Getenv("TIKKIT_TOKEN_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil || d <= 0 {
			return cfg, errors.New("TIKKIT_TOKEN_TTL must be a positive duration")
		}
		cfg.Server.TokenTTL = d
	}

	cfg.MySQL.DSN = os.Getenv("TIKKIT_MYSQL_DSN")

	cfg.Client.ServerURL = os.Getenv("TIKKIT_SERVER_URL")
	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = defaultServerURL
	}

	return cfg, nil
}

// Credentials is the client's cached login, written after `tikkit login` and
// discarded when the server reports the token invalid.
type Credentials struct {
	ServerURL string `yaml:"server_url"`
	Email     string `yaml:"email,omitempty"`
	Token     string `yaml:"token"`
}

// CredentialsPath returns the credential file location, honoring
// TIKKIT_CONFIG for tests and unusual setups.
func CredentialsPath() (string, error) {
	if p := os.Getenv("TIKKIT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tikkit", "config.yaml"), nil
}

// LoadCredentials reads the cached credential. A missing file is returned as
// os.ErrNotExist so callers can prompt for login.
func LoadCredentials(path string) (*Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds Credentials
	if err := yaml.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if creds.ServerURL == "" {
		creds.ServerURL = defaultServerURL
	}
	return &creds, nil
}

// SaveCredentials writes the credential file, creating its directory.
func SaveCredentials(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ClearCredentials removes the credential file. Already-absent is fine.
func ClearCredentials(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
