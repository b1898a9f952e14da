package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	config := DefaultConfig()
	config.FailureThreshold = 3
	config.SuccessThreshold = 2
	config.MaxRequests = 5
	config.Timeout = 100 * time.Millisecond
	config.Interval = 200 * time.Millisecond
	return config
}

func TestCircuitBreakerStates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cb := New("test", testConfig(), logger)
	ctx := context.Background()

	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be closed, got %s", cb.State())
	}

	// Successful calls don't change state
	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to remain closed, got %s", cb.State())
	}

	// Consecutive failures trip the breaker
	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return errors.New("test error") }); err == nil {
			t.Error("Expected error, got nil")
		}
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected state to be open, got %s", cb.State())
	}

	// Requests are rejected while open
	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}

	// After the timeout the breaker probes half-open
	time.Sleep(150 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state to be half-open, got %s", cb.State())
	}

	// Enough successes close it again
	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("Expected success in half-open, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to be closed after recovery, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New("test", testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	}
	time.Sleep(150 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open, got %s", cb.State())
	}

	_ = cb.Execute(ctx, func() error { return errors.New("still broken") })
	if cb.State() != StateOpen {
		t.Errorf("Expected failure in half-open to reopen, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenRequestLimit(t *testing.T) {
	config := testConfig()
	config.MaxRequests = 1
	cb := New("test", config, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func() error { return errors.New("boom") })
	}
	time.Sleep(150 * time.Millisecond)

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Execute(ctx, func() error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	if err := cb.Execute(ctx, func() error { return nil }); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("Expected ErrTooManyRequests, got %v", err)
	}
	close(release)
}

func TestCircuitBreakerContextCancelNotAFailure(t *testing.T) {
	config := testConfig()
	config.FailureThreshold = 2
	cb := New("test", config, zaptest.NewLogger(t))
	ctx := context.Background()

	// Cancellation is the caller going away, not backend failure.
	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func() error { return context.Canceled })
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected cancellations to keep breaker closed, got %s", cb.State())
	}
}

func TestGroupPerKeyIsolation(t *testing.T) {
	g := NewGroup(testConfig(), zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = g.Get("web").Execute(ctx, func() error { return errors.New("boom") })
	}

	if g.Get("web").State() != StateOpen {
		t.Errorf("Expected web breaker open, got %s", g.Get("web").State())
	}
	if g.Get("chat").State() != StateClosed {
		t.Errorf("Expected chat breaker unaffected, got %s", g.Get("chat").State())
	}

	states := g.States()
	if states["web"] != StateOpen || states["chat"] != StateClosed {
		t.Errorf("Unexpected states snapshot: %v", states)
	}
}
