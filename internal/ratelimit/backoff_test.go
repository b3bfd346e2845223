package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/andresdev/backstage/internal/clock"
)

func newTestBackoff(cfg BackoffConfig) (*Backoff, *clock.Mock) {
	clk := clock.NewMock(epoch)
	b := NewBackoff(cfg, clk, nil)
	b.jitter = func() float64 { return 0.5 }
	return b, clk
}

func TestBackoff_SucceedsAfterRetries(t *testing.T) {
	b, clk := newTestBackoff(DefaultBackoffConfig())

	attempts := 0
	err := b.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &StatusError{StatusCode: http.StatusServiceUnavailable, Err: errors.New("busy")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	waits := clk.Waits()
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("waits[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestBackoff_ExhaustsRetries(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.MaxRetries = 2
	b, _ := newTestBackoff(cfg)

	attempts := 0
	err := b.Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	if !errors.Is(err, ErrMaxRetriesExhausted) {
		t.Fatalf("Do() error = %v, want %v", err, ErrMaxRetriesExhausted)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestBackoff_DoesNotRetryClientErrors(t *testing.T) {
	b, clk := newTestBackoff(DefaultBackoffConfig())

	attempts := 0
	err := b.Do(context.Background(), func(context.Context) error {
		attempts++
		return &StatusError{StatusCode: http.StatusBadRequest, Err: errors.New("bad email")}
	})
	if !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Do() error = %v, want %v", err, ErrNotRetryable)
	}
	if attempts != 1 || len(clk.Waits()) != 0 {
		t.Errorf("attempts = %d waits = %v, want a single attempt", attempts, clk.Waits())
	}
}

func TestBackoff_PermanentUnwraps(t *testing.T) {
	b, _ := newTestBackoff(DefaultBackoffConfig())
	sentinel := errors.New("not found")

	err := b.Do(context.Background(), func(context.Context) error {
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Errorf("Do() error = %v, want the unwrapped permanent error", err)
	}
}

func TestBackoff_RetryAfterCapped(t *testing.T) {
	b, _ := newTestBackoff(DefaultBackoffConfig())

	tests := []struct {
		name       string
		retryAfter time.Duration
		want       time.Duration
	}{
		{"honored", 2 * time.Second, 2 * time.Second},
		{"capped", time.Minute, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: tt.retryAfter}
			if got := b.Delay(err, 0); got != tt.want {
				t.Errorf("Delay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoff_DelayCappedAtMax(t *testing.T) {
	b, _ := newTestBackoff(DefaultBackoffConfig())
	if got := b.Delay(errors.New("x"), 10); got != 5*time.Second {
		t.Errorf("Delay() = %v, want 5s", got)
	}
}

func TestBackoff_ContextCanceled(t *testing.T) {
	b, _ := newTestBackoff(DefaultBackoffConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want canceled", err)
	}
	if called {
		t.Error("operation should not run with a canceled context")
	}
}
