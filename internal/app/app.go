// Package app wires one tracking context: store, controller, and sync
// channel. Each App is independent; tests and parallel UI contexts build
// their own.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tikkit/internal/adapter/ident"
	"tikkit/internal/domain"
	"tikkit/internal/ports"
	"tikkit/internal/store"
	"tikkit/internal/usecase"
)

const persistTimeout = 30 * time.Second

// Options collects the collaborators for one context. Now and IDs default to
// the real clock and random UUIDs.
type Options struct {
	Log     *slog.Logger
	Remote  ports.RemoteStore
	Hub     ports.Broadcaster
	Confirm ports.Confirmer
	IDs     ports.IDSource
	Now     func() time.Time
}

// App owns one authoritative dataset instance and its mutation pipeline.
type App struct {
	Log        *slog.Logger
	Store      *store.Store
	Controller *usecase.Controller
	Syncer     *usecase.Syncer
	Hub        ports.Broadcaster

	// OnUnauthorized fires when a persist is rejected with a dead
	// credential; the presentation layer tears the session down.
	OnUnauthorized func()
}

func New(opts Options) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDs == nil {
		opts.IDs = ident.UUIDSource{}
	}

	st := store.New(nil)
	a := &App{
		Log:   opts.Log,
		Store: st,
		Hub:   opts.Hub,
		Syncer: &usecase.Syncer{
			Log:    opts.Log,
			Remote: opts.Remote,
		},
	}
	a.Controller = &usecase.Controller{
		Log:      opts.Log,
		Store:    st,
		IDs:      opts.IDs,
		Confirm:  opts.Confirm,
		Now:      opts.Now,
		OnMutate: a.persist,
	}
	return a
}

// persist broadcasts synchronously, so local contexts observe mutations in
// order, then writes to the remote store without blocking the event loop.
// A superseding mutation simply issues a new request; there is no queue.
func (a *App) persist(ds *domain.Dataset) {
	if a.Hub != nil {
		a.Hub.Publish(ds)
	}
	if a.Syncer.Remote == nil {
		return
	}
	snap := ds.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		err := a.Syncer.Remote.Save(ctx, snap)
		switch {
		case err == nil:
		case errors.Is(err, ports.ErrUnauthorized):
			if a.OnUnauthorized != nil {
				a.OnUnauthorized()
			}
		default:
			a.Log.Warn("persist failed, keeping local state", slog.String("error", err.Error()))
		}
	}()
}

// Flush writes the current dataset to the remote store and returns only when
// the write has finished. Logout uses it: the process exits right after, so
// the usual background save would be cut off mid-flight.
func (a *App) Flush(ctx context.Context) error {
	if a.Syncer.Remote == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	return a.Syncer.Remote.Save(ctx, a.Store.Dataset().Clone())
}

// LoadInitial fetches the remote dataset into the store. ErrUnauthorized
// propagates for teardown; transport failures have already degraded to an
// empty dataset inside the syncer.
func (a *App) LoadInitial(ctx context.Context) error {
	ds, err := a.Syncer.Load(ctx)
	if err != nil {
		return err
	}
	a.Store.Replace(ds)
	return nil
}
