package health

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/session"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

func fixed(r *Result) Checker {
	return Func("fixed", func(context.Context) *Result { return r })
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []*Result
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []*Result{Healthy("a"), Healthy("b")}, StatusHealthy},
		{"one degraded", []*Result{Healthy("a"), Degraded("b")}, StatusDegraded},
		{"unhealthy wins", []*Result{Degraded("a"), Unhealthy("b"), Healthy("c")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverallStatus(tt.results))
		})
	}
}

func TestManager_CheckKeepsOrder(t *testing.T) {
	m := NewManager(time.Second)
	m.Add(Func("slow", func(ctx context.Context) *Result {
		time.Sleep(20 * time.Millisecond)
		return Healthy("slow")
	}))
	m.Add(Func("fast", func(ctx context.Context) *Result { return Degraded("fast") }))

	report := m.Check(context.Background())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "slow", report.Checks[0].Name)
	assert.Equal(t, "fast", report.Checks[1].Name)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Greater(t, report.Checks[0].Latency, time.Duration(0))
}

func TestManager_CheckTimeout(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	m.Add(Func("hang", func(ctx context.Context) *Result {
		<-ctx.Done()
		return Unhealthy("timed out").WithDetail("error", ctx.Err().Error())
	}))

	report := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks[0].Details["error"])
}

func TestManager_NilResult(t *testing.T) {
	m := NewManager(0)
	m.Add(fixed(nil))

	report := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "fixed", report.Checks[0].Name)
}

type fakePinger struct{ err error }

func (f fakePinger) BaseURL() string { return "http://api.test" }
func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestBackendChecker(t *testing.T) {
	ok := BackendChecker(fakePinger{}).Check(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)
	assert.Equal(t, "http://api.test", ok.Details["url"])

	down := BackendChecker(fakePinger{err: errors.NewAPIUnreachableError("api.test", stderrors.New("refused"))}).
		Check(context.Background())
	assert.Equal(t, StatusUnhealthy, down.Status)
	assert.Equal(t, "cannot connect to server at api.test", down.Message)
	assert.Equal(t, string(errors.ErrCodeUnavailable), down.Details["code"])
}

func TestStoreChecker(t *testing.T) {
	backend := tokenstore.NewMemoryBackend()
	check := StoreChecker(backend, "tirecode_user")

	assert.Equal(t, "readable, no session stored", check.Check(context.Background()).Message)

	require.NoError(t, backend.Set("tirecode_user", `{"id":"u-1"}`))
	assert.Equal(t, "readable", check.Check(context.Background()).Message)

	backend.FailWith(stderrors.New("disk gone"))
	r := check.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Contains(t, r.Message, "disk gone")

	assert.Equal(t, StatusDegraded, StoreChecker(nil, "k").Check(context.Background()).Status)
}

type fixedSession session.Snapshot

func (f fixedSession) Snapshot() session.Snapshot { return session.Snapshot(f) }

func TestSessionChecker(t *testing.T) {
	user := &tokenstore.User{ID: "u-1", Email: "admin@example.com"}

	tests := []struct {
		name       string
		snap       session.Snapshot
		wantStatus Status
		wantMsg    string
	}{
		{"loading", session.Snapshot{IsLoading: true}, StatusDegraded, "still initializing"},
		{"anonymous", session.Snapshot{State: session.StateAnonymous}, StatusDegraded, "not signed in"},
		{
			"unconfirmed",
			session.Snapshot{State: session.StateAuthenticated, User: user, IsAuthenticated: true},
			StatusDegraded, "signed in as admin@example.com (not confirmed by the backend)",
		},
		{
			"confirmed",
			session.Snapshot{State: session.StateAuthenticated, User: user, IsAuthenticated: true, Confirmed: true},
			StatusHealthy, "signed in as admin@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SessionChecker(fixedSession(tt.snap)).Check(context.Background())
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.wantMsg, r.Message)
		})
	}
}
