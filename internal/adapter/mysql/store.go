package mysql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"tikkit/internal/ports"
)

const dupEntryErrNo = 1062

// Store implements ports.UserStore on MySQL: accounts, bearer tokens, and
// the per-user dataset blob.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// NewStore opens a MySQL connection using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func NewStore(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash) VALUES (?, ?)", email, passwordHash)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == dupEntryErrNo {
			return 0, ports.ErrEmailTaken
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UserByEmail(ctx context.Context, email string) (int64, string, error) {
	var id int64
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash FROM users WHERE email = ?", email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ports.ErrNotFound
	}
	if err != nil {
		return 0, "", err
	}
	return id, hash, nil
}

func (s *Store) SaveToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO auth_tokens (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.UTC())
	return err
}

func (s *Store) UserForToken(ctx context.Context, token string, now time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM auth_tokens WHERE token = ? AND expires_at > ?",
		token, now.UTC()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ports.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) LoadData(ctx context.Context, userID int64) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT tasks_json FROM user_data WHERE user_id = ?", userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return []byte(`{"tasks":[]}`), nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// SaveData upserts the user's dataset blob; the latest write wins.
func (s *Store) SaveData(ctx context.Context, userID int64, data []byte) error {
	const q = `
INSERT INTO user_data (user_id, tasks_json)
VALUES (?, ?)
ON DUPLICATE KEY UPDATE tasks_json=VALUES(tasks_json);
`
	if _, err := s.db.ExecContext(ctx, q, userID, data); err != nil {
		return err
	}
	s.log.Debug("user data saved", slog.Int64("user", userID), slog.Int("bytes", len(data)))
	return nil
}

// Close closes the underlying DB. Not wired via interface to keep ports minimal.
func (s *Store) Close() error { return s.db.Close() }
