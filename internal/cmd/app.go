package cmd

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tirecode/internal/api"
	"github.com/felixgeelhaar/tirecode/internal/session"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// idleTimeout bounds how long a command waits for in-flight session work
// (a server-side logout, a refresh) before exiting.
const idleTimeout = 5 * time.Second

func (a *app) openStore() (*tokenstore.Store, error) {
	bc, err := a.cfg.BackendConfig()
	if err != nil {
		return nil, err
	}
	backend, err := tokenstore.OpenBackend(bc)
	if err != nil {
		return nil, err
	}
	return tokenstore.New(backend,
		tokenstore.WithPrefix(a.cfg.Store.Prefix),
		tokenstore.WithLogger(a.logger),
	), nil
}

// sessionHandle is an initialized session manager and the store it owns.
type sessionHandle struct {
	*session.Manager
	store *tokenstore.Store
}

// close stops the manager and waits briefly for background work. The stored
// session is kept.
func (h *sessionHandle) close() {
	h.Close()
	ctx, cancel := context.WithTimeout(context.Background(), idleTimeout)
	defer cancel()
	_ = h.WaitIdle(ctx)
}

// openSession builds the session manager and resolves the stored session.
func (a *app) openSession(ctx context.Context) (*sessionHandle, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	client := session.NewClient(a.cfg.API.URL,
		session.WithTimeout(a.cfg.API.Timeout),
		session.WithClientLogger(a.logger),
		session.WithClientMetrics(a.metrics),
	)
	m := session.NewManager(store, client,
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
		session.WithRetryPolicy(a.cfg.RetryPolicy()),
	)
	m.Init(ctx)

	return &sessionHandle{Manager: m, store: store}, nil
}

// publicClient returns an API client for the unauthenticated endpoints.
func (a *app) publicClient() *api.Client {
	return api.NewClient(a.cfg.API.URL, a.clientOptions()...)
}

// adminClient opens the session, requires it to be authenticated and returns
// a client that reads the bearer token from the store on every call.
func (a *app) adminClient(ctx context.Context) (*api.Client, func(), error) {
	h, err := a.openSession(ctx)
	if err != nil {
		return nil, nil, err
	}

	user, err := session.RequireAuth(ctx, h.Manager)
	if err != nil {
		h.close()
		return nil, nil, err
	}
	a.logger.Debug("admin session", "user", user.Email)

	opts := append(a.clientOptions(), api.WithTokenSource(session.TokenSource(h.store)))
	return api.NewClient(a.cfg.API.URL, opts...), h.close, nil
}

func (a *app) clientOptions() []api.Option {
	return []api.Option{
		api.WithTimeout(a.cfg.API.Timeout),
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
	}
}
