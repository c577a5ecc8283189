package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"tikkit/internal/domain"
	"tikkit/internal/ports"
)

type stubRemote struct {
	loadDS  *domain.Dataset
	loadErr error
}

func (r *stubRemote) Load(ctx context.Context) (*domain.Dataset, error) {
	return r.loadDS, r.loadErr
}

func (r *stubRemote) Save(ctx context.Context, ds *domain.Dataset) error {
	return nil
}

func newSyncer(remote ports.RemoteStore) *Syncer {
	return &Syncer{
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Remote: remote,
	}
}

func TestLoad(t *testing.T) {
	remote := &stubRemote{loadDS: &domain.Dataset{Tasks: []*domain.Task{{ID: "a", Name: "writing"}}}}
	ds, err := newSyncer(remote).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ds.Tasks) != 1 || ds.Tasks[0].Name != "writing" {
		t.Fatalf("dataset = %+v", ds)
	}
}

func TestLoadFallsBackToEmpty(t *testing.T) {
	sy := newSyncer(&stubRemote{loadErr: errors.New("timeout")})

	ds, err := sy.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds == nil || len(ds.Tasks) != 0 {
		t.Fatalf("fallback dataset = %+v", ds)
	}
}

func TestLoadNilDatasetBecomesEmpty(t *testing.T) {
	ds, err := newSyncer(&stubRemote{}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds == nil || ds.Tasks == nil {
		t.Fatalf("dataset = %+v", ds)
	}
}

func TestLoadPassesUnauthorizedThrough(t *testing.T) {
	sy := newSyncer(&stubRemote{loadErr: ports.ErrUnauthorized})

	if _, err := sy.Load(context.Background()); !errors.Is(err, ports.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
