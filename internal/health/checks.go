package health

import (
	"context"
	stderrors "errors"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/session"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// Pinger is satisfied by api.Client.
type Pinger interface {
	BaseURL() string
	Ping(ctx context.Context) error
}

// BackendChecker reports whether the backend answers.
func BackendChecker(p Pinger) Checker {
	return Func("backend", func(ctx context.Context) *Result {
		err := p.Ping(ctx)
		if err == nil {
			return Healthy("reachable").WithDetail("url", p.BaseURL())
		}
		r := Unhealthy(message(err)).WithDetail("url", p.BaseURL())
		if code := errors.CodeOf(err); code != "" {
			r.WithDetail("code", string(code))
		}
		return r
	})
}

// StoreChecker reads key from backend directly, so that read errors the
// Store would swallow show up.
func StoreChecker(backend tokenstore.Backend, key string) Checker {
	return Func("token-store", func(ctx context.Context) *Result {
		if backend == nil {
			return Degraded("no storage configured, sessions are not kept")
		}
		_, found, err := backend.Get(key)
		if err != nil {
			return Unhealthy("cannot read token store: " + err.Error())
		}
		if !found {
			return Healthy("readable, no session stored")
		}
		return Healthy("readable")
	})
}

// SessionSource is satisfied by session.Manager.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// SessionChecker reports the session state. A missing or unconfirmed
// session is degraded, not unhealthy: public lookups still work.
func SessionChecker(s SessionSource) Checker {
	return Func("session", func(ctx context.Context) *Result {
		snap := s.Snapshot()
		switch {
		case snap.IsLoading:
			return Degraded("still initializing")
		case !snap.IsAuthenticated || snap.User == nil:
			return Degraded("not signed in")
		case !snap.Confirmed:
			return Degraded("signed in as " + snap.User.Email + " (not confirmed by the backend)")
		default:
			r := Healthy("signed in as " + snap.User.Email)
			if !snap.NextRefresh.IsZero() {
				r.WithDetail("next_refresh", snap.NextRefresh.Format("15:04:05"))
			}
			return r
		}
	})
}

func message(err error) string {
	var te *errors.TirecodeError
	if stderrors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
