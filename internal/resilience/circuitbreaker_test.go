package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

// testClock is a settable time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(maxFailures int, resetTimeout time.Duration) (*Breaker, *testClock) {
	clock := &testClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  maxFailures,
		ResetTimeout: resetTimeout,
		HalfOpenMax:  2,
		Clock:        clock.Now,
	})
	return b, clock
}

func fail() error    { return errBackend }
func succeed() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); !errors.Is(err, errBackend) {
			t.Fatalf("Execute() error = %v, want backend error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	// Open breaker rejects without calling fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(3, 30*time.Second)

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	_ = b.Execute(succeed)
	_ = b.Execute(fail)
	_ = b.Execute(fail)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed — success must reset the streak", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterProbes(t *testing.T) {
	t.Parallel()

	b, clock := newTestBreaker(2, 30*time.Second)

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	clock.Advance(31 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", b.State())
	}

	// HalfOpenMax = 2 successful probes close the breaker.
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("probe 1 error: %v", err)
	}
	if err := b.Execute(succeed); err != nil {
		t.Fatalf("probe 2 error: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b, clock := newTestBreaker(2, 30*time.Second)

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	clock.Advance(31 * time.Second)

	if err := b.Execute(fail); !errors.Is(err, errBackend) {
		t.Fatalf("probe error = %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v, want re-opened after failed probe", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(1, time.Hour)

	_ = b.Execute(fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after Reset", b.State())
	}
	if err := b.Execute(succeed); err != nil {
		t.Errorf("Execute() after Reset error: %v", err)
	}
}

func TestBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "defaults"})
	if b.maxFailures != 5 || b.resetTimeout != 30*time.Second || b.halfOpenMax != 3 {
		t.Errorf("defaults = %d/%v/%d", b.maxFailures, b.resetTimeout, b.halfOpenMax)
	}
}
