package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("downstream down")

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errDown }); !errors.Is(err, errDown) {
			t.Fatalf("call %d: expected downstream error, got %v", i+1, err)
		}
	}

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state, got %d", cb.GetState())
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cb.Execute(func() error { return errDown })
	cb.Execute(func() error { return errDown })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errDown })
	cb.Execute(func() error { return errDown })

	if cb.GetState() != StateClosed {
		t.Fatal("non-consecutive failures must not open the breaker")
	}
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errDown })
	}
	if cb.GetState() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(40 * time.Millisecond)

	// Two successful probes close the breaker again.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i+1, err)
		}
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("closed breaker rejected call: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed state, got %d", cb.GetState())
	}
}

func TestFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errDown })
	}
	time.Sleep(40 * time.Millisecond)

	cb.Execute(func() error { return errDown })

	if cb.GetState() != StateOpen {
		t.Fatal("failed probe must reopen the breaker")
	}
}
