package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/metrics"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// State is the lifecycle state of a session.
type State int

const (
	StateInitializing State = iota
	StateAnonymous
	StateAuthenticated
)

var stateNames = []string{"initializing", "anonymous", "authenticated"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Refresh triggers, used as metric labels and in logs.
const (
	triggerInit      = "init"
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
)

var (
	// ErrSuperseded is returned when a login or refresh finished after a
	// newer login or a logout and its result was discarded.
	ErrSuperseded = stderrors.New("session: superseded by a newer operation")

	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = stderrors.New("session: manager closed")
)

// AuthClient is the network side of a session.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*Grant, error)
	Logout(ctx context.Context, accessToken string) error
}

// Snapshot is the read model of a Manager.
type Snapshot struct {
	State State
	User  *tokenstore.User

	// IsAuthenticated holds when State is Authenticated and the store has an
	// access token.
	IsAuthenticated bool

	// IsLoading holds until Init has resolved, including its first refresh.
	IsLoading bool

	// Confirmed is false while the identity comes from the store only.
	Confirmed bool

	// NextRefresh is the armed refresh deadline, zero when none.
	NextRefresh time.Time
}

// Manager composes the token store, the auth client and the refresh
// scheduler into one session. All state changes happen under mu.
type Manager struct {
	store     *tokenstore.Store
	client    AuthClient
	clock     Clock
	scheduler *Scheduler
	logger    *log.Logger
	metrics   *metrics.Metrics
	retry     RetryPolicy

	flight singleflight.Group
	bg     sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once

	mu            sync.Mutex
	state         State
	user          *tokenstore.User
	confirmed     bool
	closed        bool
	gen           uint64
	loginSeq      uint64
	logoutSeq     uint64
	loginCancel   context.CancelFunc
	refreshCancel context.CancelFunc
	expiresAt     time.Time
	retryBackoff  *backoff.ExponentialBackOff
	subs          map[int]chan Snapshot
	nextSub       int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock driving the refresh scheduler.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the manager logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records lifecycle metrics on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithRetryPolicy sets the policy applied after RefreshUnavailable.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.retry = p }
}

// NewManager creates a Manager in StateInitializing. Call Init to resolve it.
func NewManager(store *tokenstore.Store, client AuthClient, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		client: client,
		clock:  RealClock{},
		retry:  DefaultRetryPolicy(),
		ready:  make(chan struct{}),
		subs:   make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger).With("component", "session")
	m.scheduler = NewScheduler(m.clock)
	m.retryBackoff = m.retry.newBackOff()
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())
	m.metrics.SetSessionState(m.state.String(), stateNames...)
	return m
}

// Init resolves the initial state from the store. With no stored user the
// session becomes anonymous without touching the network; otherwise it is
// optimistically authenticated and refreshed once.
func (m *Manager) Init(ctx context.Context) {
	defer m.markReady()

	m.mu.Lock()
	if m.closed || m.state != StateInitializing {
		m.mu.Unlock()
		return
	}

	user, ok := m.store.User()
	if !ok {
		m.setAnonymousLocked()
		m.mu.Unlock()
		return
	}

	m.state = StateAuthenticated
	m.user = &user
	m.confirmed = false
	if token, ok := m.store.AccessToken(); ok {
		m.expiresAt = ParseClaims(token).ExpiresAt
	}
	m.publishLocked()
	m.mu.Unlock()

	if _, ok := m.store.RefreshToken(); !ok {
		m.logger.Debug("stored session has no refresh token, keeping cached identity")
		return
	}

	if err := m.refresh(ctx, triggerInit); err != nil {
		m.logger.Debug("initial refresh did not complete", "error", err.Error())
	}
}

// Ready is closed once Init has resolved.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) markReady() {
	m.readyOnce.Do(func() {
		close(m.ready)
		m.mu.Lock()
		m.publishLocked()
		m.mu.Unlock()
	})
}

// Login authenticates with email and password. A newer Login cancels this
// one. On failure the typed error is returned and the state is unchanged.
func (m *Manager) Login(ctx context.Context, email, password string) (tokenstore.User, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return tokenstore.User{}, ErrClosed
	}
	if m.loginCancel != nil {
		m.loginCancel()
	}
	m.loginSeq++
	seq := m.loginSeq
	logoutSeq := m.logoutSeq
	loginCtx, cancel := context.WithCancel(ctx)
	m.loginCancel = cancel
	m.mu.Unlock()
	defer cancel()

	grant, err := m.client.Login(loginCtx, email, password)

	m.mu.Lock()
	// Only a newer login, a logout or Close supersede a login. A refresh that
	// expires the old session meanwhile does not.
	superseded := m.loginSeq != seq || m.logoutSeq != logoutSeq || m.closed
	if m.loginSeq == seq {
		m.loginCancel = nil
	}
	if err != nil {
		m.mu.Unlock()
		if superseded && stderrors.Is(err, context.Canceled) {
			return tokenstore.User{}, ErrSuperseded
		}
		return tokenstore.User{}, err
	}
	if superseded {
		m.mu.Unlock()
		m.logger.Debug("discarding superseded login result")
		return tokenstore.User{}, ErrSuperseded
	}

	// Refreshes started under the previous session must not land on this one.
	m.gen++
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}

	m.store.SetAuth(grant.AccessToken, grant.RefreshToken, grant.User)
	m.applyGrantLocked(grant)
	m.mu.Unlock()

	m.logger.Info("logged in", "user", grant.User.Email)
	m.markReady()

	return grant.User, nil
}

// Refresh refreshes the session now. Concurrent callers share one request.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refresh(ctx, triggerManual)
}

func (m *Manager) refresh(ctx context.Context, trigger string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	gen := m.gen
	m.mu.Unlock()

	ch := m.flight.DoChan("refresh", func() (any, error) {
		return nil, m.doRefresh(gen, trigger)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRefresh runs one refresh request and applies its outcome unless the
// session generation moved on while it was in flight.
func (m *Manager) doRefresh(gen uint64, trigger string) error {
	refreshToken, ok := m.store.RefreshToken()
	if !ok {
		return errors.NewNotAuthenticatedError()
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	defer cancel()

	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.refreshCancel = cancel
	m.mu.Unlock()

	grant, err := m.client.Refresh(ctx, refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.closed {
		m.logger.Debug("discarding stale refresh result", "trigger", trigger)
		return ErrSuperseded
	}
	m.refreshCancel = nil

	switch {
	case err == nil:
		m.store.SetAuth(grant.AccessToken, grant.RefreshToken, grant.User)
		m.applyGrantLocked(grant)
		m.metrics.ObserveRefresh(trigger, "success")
		return nil

	case IsTerminal(err):
		m.logger.Info("session expired, signing out", "trigger", trigger)
		m.metrics.ObserveRefresh(trigger, "expired")
		m.gen++
		m.scheduler.Cancel()
		m.store.ClearAuth()
		m.setAnonymousLocked()
		return err

	case errors.HasCode(err, errors.ErrCodeRefreshUnavailable):
		m.logger.Warn("token refresh unavailable, keeping session", "trigger", trigger, "error", err.Error())
		m.metrics.ObserveRefresh(trigger, "unavailable")
		m.scheduleRetryLocked()
		m.publishLocked()
		return err

	default:
		m.metrics.ObserveRefresh(trigger, "aborted")
		return err
	}
}

// Logout ends the session locally and revokes it server-side in the
// background. Local state is cleared whatever the network does.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	m.logoutSeq++
	m.scheduler.Cancel()
	if m.loginCancel != nil {
		m.loginCancel()
		m.loginCancel = nil
	}
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}

	token, _ := m.store.AccessToken()
	if token != "" {
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			if err := m.client.Logout(context.WithoutCancel(ctx), token); err != nil {
				m.logger.WithError(err).Warn("server logout failed")
			}
		}()
	}

	m.store.ClearAuth()
	m.setAnonymousLocked()
	m.mu.Unlock()

	m.markReady()
}

// WaitIdle waits for background logout calls to finish.
func (m *Manager) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current read model.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest Snapshot. The
// current snapshot is delivered immediately.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		ch <- m.snapshotLocked()
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
}

// Close cancels the scheduler and in-flight calls. The stored session is
// kept.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.logoutSeq++
	m.scheduler.Cancel()
	if m.loginCancel != nil {
		m.loginCancel()
	}
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	m.baseCancel()
	m.metrics.ClearNextRefresh()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	m.markReady()
}

func (m *Manager) applyGrantLocked(grant *Grant) {
	user := grant.User
	m.state = StateAuthenticated
	m.user = &user
	m.confirmed = true
	m.expiresAt = time.Time{}
	if grant.ExpiresIn > 0 {
		m.expiresAt = m.clock.Now().Add(lifetime(grant.ExpiresIn))
	}
	m.retryBackoff.Reset()

	if delay := RefreshDelay(grant.ExpiresIn); delay > 0 {
		m.armLocked(delay, "refresh")
	} else {
		m.scheduler.Cancel()
		m.metrics.ClearNextRefresh()
	}
	m.publishLocked()
}

// scheduleRetryLocked re-arms after a non-terminal failure, never later
// than the current token's expiry.
func (m *Manager) scheduleRetryLocked() {
	if !m.retry.Enabled {
		return
	}

	delay := m.retryBackoff.NextBackOff()
	if !m.expiresAt.IsZero() {
		if remaining := m.expiresAt.Sub(m.clock.Now()); remaining > 0 && delay > remaining {
			delay = remaining
		}
	}
	m.armLocked(delay, "retry")
}

func (m *Manager) armLocked(delay time.Duration, reason string) {
	gen := m.gen
	m.scheduler.Arm(delay, func() { m.onTimer(gen) })
	m.metrics.ObserveArm(reason, m.clock.Now().Add(delay))
	m.logger.Debug("refresh armed", "reason", reason, "in", delay.String())
}

func (m *Manager) onTimer(gen uint64) {
	m.mu.Lock()
	stale := m.gen != gen || m.closed
	m.mu.Unlock()
	if stale {
		return
	}

	if err := m.refresh(m.baseCtx, triggerScheduled); err != nil {
		m.logger.Debug("scheduled refresh failed", "error", err.Error())
	}
}

func (m *Manager) setAnonymousLocked() {
	m.state = StateAnonymous
	m.user = nil
	m.confirmed = false
	m.expiresAt = time.Time{}
	m.metrics.ClearNextRefresh()
	m.publishLocked()
}

func (m *Manager) isReady() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     m.state,
		IsLoading: !m.isReady(),
		Confirmed: m.confirmed,
	}
	if m.user != nil {
		user := *m.user
		snap.User = &user
	}
	snap.IsAuthenticated = m.state == StateAuthenticated && m.store.IsAuthenticated()
	if deadline, ok := m.scheduler.Pending(); ok {
		snap.NextRefresh = deadline
	}
	return snap
}

// publishLocked replaces the pending value of every subscriber channel.
func (m *Manager) publishLocked() {
	m.metrics.SetSessionState(m.state.String(), stateNames...)
	if len(m.subs) == 0 {
		return
	}

	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
