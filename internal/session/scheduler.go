package session

import (
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Clock abstracts time so the scheduler can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a one-shot timer handle.
type Timer interface {
	Stop() bool
}

// RealClock is the wall clock.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Scheduler holds at most one pending one-shot callback. Arming replaces any
// earlier timer, and a replaced timer that already fired never runs its
// callback.
type Scheduler struct {
	clock Clock

	mu       sync.Mutex
	timer    Timer
	gen      uint64
	deadline time.Time
}

// NewScheduler creates a Scheduler on clock. A nil clock means RealClock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{clock: clock}
}

// Arm schedules fn to run once after d, cancelling any pending timer.
// Negative delays fire immediately.
func (s *Scheduler) Arm(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.deadline = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.deadline = time.Time{}
		s.mu.Unlock()

		fn()
	})
}

// Cancel clears the pending timer, if any. Safe to call repeatedly.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
}

// Pending returns the deadline of the armed timer.
func (s *Scheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return time.Time{}, false
	}
	return s.deadline, true
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.deadline = time.Time{}
}

// maxExpiresIn is the longest lifetime, in seconds, a time.Duration holds.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// lifetime converts expiresIn seconds to a Duration, saturating instead of
// overflowing.
func lifetime(expiresIn int64) time.Duration {
	if expiresIn <= 0 {
		return 0
	}
	return time.Duration(min(expiresIn, maxExpiresIn)) * time.Second
}

// RefreshDelay returns how long to wait before refreshing a grant that
// expires in expiresIn seconds: 90% of its lifetime. Non-positive lifetimes
// yield 0, meaning "do not schedule".
func RefreshDelay(expiresIn int64) time.Duration {
	if expiresIn <= 0 {
		return 0
	}
	return time.Duration(float64(min(expiresIn, maxExpiresIn))*0.9*1000) * time.Millisecond
}

// RetryPolicy controls re-arming after a non-terminal refresh failure.
type RetryPolicy struct {
	// Enabled re-arms with backoff. When false the session waits for the
	// next explicit action.
	Enabled bool

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// DefaultRetryPolicy retries after 5s, doubling up to 2m with 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:         true,
		InitialInterval: 5 * time.Second,
		MaxInterval:     2 * time.Minute,
		Multiplier:      2,
		Jitter:          0.2,
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}
