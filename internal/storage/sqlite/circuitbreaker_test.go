package sqlite

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// errDiskFull stands in for the kind of persistent failure the breaker
// exists for: a registry file on a broken disk, where retrying every
// heartbeat just burns CPU.
var errDiskFull = errors.New("write locks table: disk I/O error")

// newClockedBreaker returns a breaker on a manual clock.
func newClockedBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(threshold, reset)
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

// trip drives the breaker to OPEN with n failing registry writes.
func trip(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := cb.Execute(func() error { return errDiskFull }); !errors.Is(err, errDiskFull) {
			t.Fatalf("failure %d should pass through, got %v", i, err)
		}
	}
}

func TestBreakerClosedUntilThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	trip(t, cb, 2)
	if cb.State() != StateClosed {
		t.Fatalf("2 of 3 failures must not open the breaker, got %s", cb.State())
	}

	trip(t, cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("threshold reached, expected open, got %s", cb.State())
	}
}

func TestBreakerShedsRegistryOpsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	trip(t, cb, 3)

	touches := 0
	err := cb.Execute(func() error {
		touches++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if touches != 0 {
		t.Fatal("open breaker must not reach the store")
	}
}

// The admit/record split: admit moves OPEN to HALF_OPEN after the reset
// timeout and lets exactly one probe through; record decides where the
// probe's outcome lands.
func TestBreakerAdmitSingleProbe(t *testing.T) {
	cb, now := newClockedBreaker(3, 30*time.Second)
	trip(t, cb, 3)

	if err := cb.admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("admit before reset timeout: want ErrCircuitOpen, got %v", err)
	}

	*now = now.Add(31 * time.Second)
	if err := cb.admit(); err != nil {
		t.Fatalf("admit after reset timeout should allow a probe: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half_open during probe, got %s", cb.State())
	}

	// A second heartbeat arriving mid-probe is shed.
	if err := cb.admit(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("concurrent admit during probe: want ErrCircuitOpen, got %v", err)
	}

	cb.record(nil)
	if cb.State() != StateClosed {
		t.Fatalf("successful probe should close the breaker, got %s", cb.State())
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	cb, now := newClockedBreaker(3, 30*time.Second)
	trip(t, cb, 3)

	*now = now.Add(31 * time.Second)
	if err := cb.Execute(func() error { return errDiskFull }); !errors.Is(err, errDiskFull) {
		t.Fatalf("probe should run and fail through, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("failed probe must reopen, got %s", cb.State())
	}

	// The failed probe restarts the reset window.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection until the window elapses again, got %v", err)
	}
	*now = now.Add(31 * time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("second probe after another window: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after recovery, got %s", cb.State())
	}
}

// A registry that limps (intermittent failures under the threshold) never
// trips the breaker: each success resets the consecutive-failure count.
func TestBreakerIntermittentFailuresStayClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	for round := 0; round < 5; round++ {
		trip(t, cb, 2)
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("round %d: successful touch: %v", round, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("2 failures between successes must never open, got %s", cb.State())
	}
}

func TestBreakerStateStrings(t *testing.T) {
	pairs := map[BreakerState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half_open",
		BreakerState(99): "unknown",
	}
	for state, want := range pairs {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestBreakerConcurrentHeartbeats(t *testing.T) {
	cb := NewCircuitBreaker(1000, time.Minute) // high threshold, must not trip
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				// Sprinkle failures below the threshold among successes.
				if i%5 == 0 && j == 0 {
					_ = cb.Execute(func() error { return errDiskFull })
				} else {
					_ = cb.Execute(func() error { return nil })
				}
				_ = cb.State()
			}
		}(i)
	}
	wg.Wait()

	if cb.State() != StateClosed {
		t.Fatalf("breaker tripped under mixed concurrent load: %s", cb.State())
	}
}
