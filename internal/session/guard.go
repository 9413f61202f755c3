package session

import (
	"context"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// RequireAuth gates admin operations. It waits for Init to finish, then
// returns the session user or a NotAuthenticated error.
func RequireAuth(ctx context.Context, m *Manager) (tokenstore.User, error) {
	select {
	case <-m.Ready():
	case <-ctx.Done():
		return tokenstore.User{}, ctx.Err()
	}

	snap := m.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return tokenstore.User{}, errors.NewNotAuthenticatedError()
	}
	return *snap.User, nil
}

// IsTerminal reports whether err ends the session. Only SessionExpired does;
// every other refresh failure keeps the stored grant.
func IsTerminal(err error) bool {
	return errors.HasCode(err, errors.ErrCodeSessionExpired)
}
