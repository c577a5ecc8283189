package ports

import (
	"context"
	"errors"
	"time"

	"tikkit/internal/domain"
)

// ErrUnauthorized is returned by the remote store when the bearer credential
// is missing, expired, or revoked. Callers treat it as session expiry.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned by server-side storage for missing rows.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when signing up with an already registered email.
var ErrEmailTaken = errors.New("email already registered")

// RemoteStore is the client's view of the persistence backend: one JSON
// dataset per credential, replaced wholesale on every save.
type RemoteStore interface {
	Load(ctx context.Context) (*domain.Dataset, error)
	Save(ctx context.Context, ds *domain.Dataset) error
}

// Broadcaster propagates full dataset snapshots to other contexts of the same
// user. Delivery is best effort; there is no framing and no sequence numbers.
type Broadcaster interface {
	Publish(ds *domain.Dataset)
	// Subscribe returns a channel of snapshots and a cancel func that must be
	// called when the subscriber goes away.
	Subscribe() (<-chan *domain.Dataset, func())
}

// Confirmer is the synchronous yes/no gate consulted before every destructive
// bulk operation. A false answer aborts the operation with no side effects.
type Confirmer interface {
	Confirm(prompt string) bool
}

// IDSource produces globally-unique opaque task identifiers.
type IDSource interface {
	NewID() string
}

// UserStore is the server-side persistence port: accounts, bearer tokens, and
// the per-user dataset blob.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (int64, error)
	UserByEmail(ctx context.Context, email string) (id int64, passwordHash string, err error)
	SaveToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	UserForToken(ctx context.Context, token string, now time.Time) (int64, error)
	LoadData(ctx context.Context, userID int64) ([]byte, error)
	SaveData(ctx context.Context, userID int64, data []byte) error
}
