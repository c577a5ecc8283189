package usecase

import (
	"context"
	"errors"
	"log/slog"

	"tikkit/internal/domain"
	"tikkit/internal/ports"
)

// Syncer is the remote half of the sync pipeline: it brings the dataset in
// from the remote store. The mutation side (broadcast, then background save)
// lives in the app, which owns the async boundary.
type Syncer struct {
	Log    *slog.Logger
	Remote ports.RemoteStore
}

// Load fetches the dataset from the remote store. Transport failures fall
// back to an empty dataset; ErrUnauthorized is passed through for teardown.
func (sy *Syncer) Load(ctx context.Context) (*domain.Dataset, error) {
	ds, err := sy.Remote.Load(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			return nil, ports.ErrUnauthorized
		}
		sy.Log.Warn("load failed, starting empty", slog.String("error", err.Error()))
		return domain.EmptyDataset(), nil
	}
	if ds == nil {
		ds = domain.EmptyDataset()
	}
	return ds, nil
}
