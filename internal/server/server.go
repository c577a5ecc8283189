// Package server is the reference remote store: bearer-token HTTP API with
// one JSON dataset blob per account. Clients treat it as opaque key-value
// storage; the server never inspects session semantics.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tikkit/internal/ports"
)

const maxBodyBytes = 1 << 20

// Server holds the handler dependencies. Now is injectable for token-expiry
// tests and defaults to time.Now.
type Server struct {
	Log      *slog.Logger
	Users    ports.UserStore
	TokenTTL time.Duration
	Now      func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /data", s.handleGetData)
	mux.HandleFunc("POST /data", s.handlePostData)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return loggingMiddleware(s.Log, mux)
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeAuth(w, r, &req) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	userID, err := s.Users.CreateUser(r.Context(), req.Email, string(hash))
	if errors.Is(err, ports.ErrEmailTaken) {
		writeDetail(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.issueToken(w, r, userID)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if !decodeAuth(w, r, &req) {
		return
	}
	userID, hash, err := s.Users.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, ports.ErrNotFound) ||
		(err == nil && bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil) {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.issueToken(w, r, userID)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, userID int64) {
	token := newToken()
	if err := s.Users.SaveToken(r.Context(), token, userID, s.now().Add(s.TokenTTL)); err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	blob, err := s.Users.LoadData(r.Context(), userID)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (s *Server) handlePostData(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Users.SaveData(r.Context(), userID, body); err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticate resolves the bearer token; on failure it writes the 401 the
// client maps to a discarded credential.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		writeDetail(w, http.StatusUnauthorized, "missing bearer token")
		return 0, false
	}
	userID, err := s.Users.UserForToken(r.Context(), token, s.now())
	if errors.Is(err, ports.ErrNotFound) {
		writeDetail(w, http.StatusUnauthorized, "invalid or expired token")
		return 0, false
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return 0, false
	}
	return userID, true
}

func decodeAuth(w http.ResponseWriter, r *http.Request, req *authRequest) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "email and password required")
		return false
	}
	return true
}

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure is not recoverable
	}
	return hex.EncodeToString(b)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("dur", time.Since(start)),
		)
	})
}
