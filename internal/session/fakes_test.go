package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// fakeClock fires timers only when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock and runs due callbacks synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// active counts timers that are neither stopped nor fired.
func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeAuth is a programmable AuthClient.
type fakeAuth struct {
	mu sync.Mutex

	loginFn   func(ctx context.Context, email, password string) (*Grant, error)
	refreshFn func(ctx context.Context, refreshToken string) (*Grant, error)
	logoutFn  func(ctx context.Context, accessToken string) error

	logins        int
	refreshes     int
	refreshTokens []string
	logoutTokens  []string
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*Grant, error) {
	f.mu.Lock()
	f.logins++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return testGrant("login", 3600), nil
	}
	return fn(ctx, email, password)
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	f.mu.Lock()
	f.refreshes++
	f.refreshTokens = append(f.refreshTokens, refreshToken)
	fn := f.refreshFn
	f.mu.Unlock()
	if fn == nil {
		return testGrant("refreshed", 3600), nil
	}
	return fn(ctx, refreshToken)
}

func (f *fakeAuth) Logout(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	f.logoutTokens = append(f.logoutTokens, accessToken)
	fn := f.logoutFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, accessToken)
}

func (f *fakeAuth) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeAuth) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeAuth) loggedOut() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logoutTokens...)
}

var testUser = tokenstore.User{ID: "u-1", Email: "admin@example.com"}

func testGrant(prefix string, expiresIn int64) *Grant {
	return &Grant{
		AccessToken:  prefix + "-access",
		RefreshToken: prefix + "-refresh",
		ExpiresIn:    expiresIn,
		User:         testUser,
	}
}

type managerFixture struct {
	manager *Manager
	store   *tokenstore.Store
	backend *tokenstore.MemoryBackend
	auth    *fakeAuth
	clock   *fakeClock
}

func newManagerFixture(t *testing.T, opts ...Option) *managerFixture {
	t.Helper()

	backend := tokenstore.NewMemoryBackend()
	store := tokenstore.New(backend, tokenstore.WithLogger(log.Discard()))
	auth := &fakeAuth{}
	clock := newFakeClock()

	all := append([]Option{WithClock(clock), WithLogger(log.Discard())}, opts...)
	m := NewManager(store, auth, all...)
	t.Cleanup(m.Close)

	return &managerFixture{manager: m, store: store, backend: backend, auth: auth, clock: clock}
}

// noJitter keeps retry delays exact.
func noJitter(initial time.Duration) RetryPolicy {
	return RetryPolicy{
		Enabled:         true,
		InitialInterval: initial,
		MaxInterval:     time.Hour,
		Multiplier:      2,
	}
}
