package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestRenderLimiter_Defaults(t *testing.T) {
	l := NewRenderLimiter(RenderLimiterConfig{}, nil, nil)
	def := DefaultRenderLimiterConfig()

	stats := l.Stats()
	if stats.MaxConcurrent != def.MaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want %d", stats.MaxConcurrent, def.MaxConcurrent)
	}
	if stats.MinuteRemaining != def.PerMinute {
		t.Errorf("MinuteRemaining = %d, want %d", stats.MinuteRemaining, def.PerMinute)
	}
}

func TestRenderLimiter_ConcurrentLimit(t *testing.T) {
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 2, PerMinute: 10, PerHour: 100}, clock.NewMock(epoch), zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := l.Acquire(); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}
	if err := l.Acquire(); !errors.Is(err, ErrConcurrentLimitExceeded) {
		t.Fatalf("Acquire() error = %v, want %v", err, ErrConcurrentLimitExceeded)
	}

	l.Release()
	if err := l.Acquire(); err != nil {
		t.Errorf("Acquire() after Release error = %v", err)
	}
}

func TestRenderLimiter_MinuteWindow(t *testing.T) {
	clk := clock.NewMock(epoch)
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 10, PerMinute: 2, PerHour: 100}, clk, nil)

	for i := 0; i < 2; i++ {
		if err := l.Acquire(); err != nil {
			t.Fatal(err)
		}
		l.Release()
	}
	if err := l.Acquire(); !errors.Is(err, ErrMinuteLimitExceeded) {
		t.Fatalf("Acquire() error = %v, want minute limit", err)
	}

	clk.Advance(time.Minute)
	if err := l.Acquire(); err != nil {
		t.Errorf("Acquire() after window error = %v", err)
	}
}

func TestRenderLimiter_HourWindowReturnsMinuteToken(t *testing.T) {
	clk := clock.NewMock(epoch)
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 10, PerMinute: 5, PerHour: 1}, clk, nil)

	if err := l.Acquire(); err != nil {
		t.Fatal(err)
	}
	l.Release()

	if err := l.Acquire(); !errors.Is(err, ErrHourLimitExceeded) {
		t.Fatalf("Acquire() error = %v, want hour limit", err)
	}
	if got := l.Stats().MinuteRemaining; got != 4 {
		t.Errorf("MinuteRemaining = %d, want 4", got)
	}
}

func TestRenderLimiter_ReleaseNeverGoesNegative(t *testing.T) {
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 1}, clock.NewMock(epoch), nil)
	l.Release()
	l.Release()

	if got := l.Stats().Active; got != 0 {
		t.Errorf("Active = %d, want 0", got)
	}
}

func TestRenderLimiter_Stats(t *testing.T) {
	clk := clock.NewMock(epoch)
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 1, PerMinute: 10, PerHour: 10}, clk, nil)

	_ = l.Acquire()
	_ = l.Acquire()
	clk.Advance(20 * time.Second)

	stats := l.Stats()
	if stats.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", stats.TotalRequests)
	}
	if stats.TotalRejected != 1 {
		t.Errorf("TotalRejected = %d, want 1", stats.TotalRejected)
	}
	if stats.LastRejectionReason != "concurrent limit" {
		t.Errorf("LastRejectionReason = %q", stats.LastRejectionReason)
	}
	if !stats.LastRejectedAt.Equal(epoch) {
		t.Errorf("LastRejectedAt = %v, want %v", stats.LastRejectedAt, epoch)
	}
	if stats.MinuteResetIn != 40*time.Second {
		t.Errorf("MinuteResetIn = %v, want 40s", stats.MinuteResetIn)
	}
}

func TestRenderLimiter_WaitReturnsQuotaErrors(t *testing.T) {
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 5, PerMinute: 1, PerHour: 10}, clock.NewMock(epoch), nil)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.Release()

	if err := l.Wait(context.Background()); !errors.Is(err, ErrMinuteLimitExceeded) {
		t.Errorf("Wait() error = %v, want minute limit", err)
	}
}

func TestRenderLimiter_WaitHonorsContext(t *testing.T) {
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 1, PerMinute: 1000, PerHour: 100000}, clock.New(), nil)
	if err := l.Acquire(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestRenderLimiter_WaitGetsReleasedSlot(t *testing.T) {
	l := NewRenderLimiter(RenderLimiterConfig{MaxConcurrent: 1, PerMinute: 1000, PerHour: 100000, PollInterval: 5 * time.Millisecond}, clock.New(), nil)
	if err := l.Acquire(); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
