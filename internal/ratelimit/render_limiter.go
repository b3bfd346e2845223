// Package ratelimit bounds expensive work such as quote PDF rendering.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
)

// Errors for rate limiting.
var (
	ErrConcurrentLimitExceeded = errors.New("concurrent render limit exceeded")
	ErrMinuteLimitExceeded     = errors.New("minute render limit exceeded")
	ErrHourLimitExceeded       = errors.New("hour render limit exceeded")
)

// RenderLimiterConfig holds the limits for PDF rendering.
type RenderLimiterConfig struct {
	MaxConcurrent int
	PerMinute     int
	PerHour       int
	// PollInterval is how often Wait retries.
	PollInterval time.Duration
}

// DefaultRenderLimiterConfig returns the production limits.
func DefaultRenderLimiterConfig() RenderLimiterConfig {
	return RenderLimiterConfig{
		MaxConcurrent: 4,
		PerMinute:     30,
		PerHour:       600,
		PollInterval:  100 * time.Millisecond,
	}
}

// RenderLimiter combines a concurrency cap with fixed-window quotas.
type RenderLimiter struct {
	mu sync.Mutex

	cfg    RenderLimiterConfig
	minute *window
	hour   *window
	active int

	totalRequests   int64
	totalRejected   int64
	lastRejectedAt  time.Time
	rejectionReason string

	clock  clock.Clock
	logger *zap.Logger
}

// NewRenderLimiter creates a RenderLimiter. Zero config fields take defaults.
func NewRenderLimiter(cfg RenderLimiterConfig, clk clock.Clock, logger *zap.Logger) *RenderLimiter {
	def := DefaultRenderLimiterConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = def.PerMinute
	}
	if cfg.PerHour <= 0 {
		cfg.PerHour = def.PerHour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	now := clk.Now()
	return &RenderLimiter{
		cfg:    cfg,
		minute: newWindow(cfg.PerMinute, time.Minute, now),
		hour:   newWindow(cfg.PerHour, time.Hour, now),
		clock:  clk,
		logger: logger,
	}
}

// Acquire takes a render slot without waiting. Every successful Acquire
// must be paired with Release.
func (l *RenderLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalRequests++
	now := l.clock.Now()

	if l.active >= l.cfg.MaxConcurrent {
		l.reject("concurrent limit", now)
		return ErrConcurrentLimitExceeded
	}
	if !l.minute.take(now) {
		l.reject("minute limit", now)
		return ErrMinuteLimitExceeded
	}
	if !l.hour.take(now) {
		l.minute.giveBack()
		l.reject("hour limit", now)
		return ErrHourLimitExceeded
	}

	l.active++
	return nil
}

// Release returns a render slot.
func (l *RenderLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// Wait blocks until a slot is free or ctx is done. Quota rejections are
// not retried; only the concurrency cap is waited out.
func (l *RenderLimiter) Wait(ctx context.Context) error {
	for {
		err := l.Acquire()
		if !errors.Is(err, ErrConcurrentLimitExceeded) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.cfg.PollInterval):
		}
	}
}

func (l *RenderLimiter) reject(reason string, t time.Time) {
	l.totalRejected++
	l.lastRejectedAt = t
	l.rejectionReason = reason

	l.logger.Warn("render limit exceeded",
		zap.String("reason", reason),
		zap.Int("active", l.active),
		zap.Int64("total_rejected", l.totalRejected),
	)
}

// RenderLimiterStats is a snapshot of the limiter.
type RenderLimiterStats struct {
	Active              int           `json:"active"`
	MaxConcurrent       int           `json:"max_concurrent"`
	MinuteRemaining     int           `json:"minute_remaining"`
	HourRemaining       int           `json:"hour_remaining"`
	TotalRequests       int64         `json:"total_requests"`
	TotalRejected       int64         `json:"total_rejected"`
	LastRejectedAt      time.Time     `json:"last_rejected_at,omitempty"`
	LastRejectionReason string        `json:"last_rejection_reason,omitempty"`
	MinuteResetIn       time.Duration `json:"minute_reset_in"`
}

// Stats returns current limiter statistics.
func (l *RenderLimiter) Stats() RenderLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.minute.refill(now)
	l.hour.refill(now)
	return RenderLimiterStats{
		Active:              l.active,
		MaxConcurrent:       l.cfg.MaxConcurrent,
		MinuteRemaining:     l.minute.tokens,
		HourRemaining:       l.hour.tokens,
		TotalRequests:       l.totalRequests,
		TotalRejected:       l.totalRejected,
		LastRejectedAt:      l.lastRejectedAt,
		LastRejectionReason: l.rejectionReason,
		MinuteResetIn:       l.minute.resetIn(now),
	}
}

// window is a fixed-window token counter.
type window struct {
	max     int
	period  time.Duration
	tokens  int
	started time.Time
}

func newWindow(max int, period time.Duration, now time.Time) *window {
	return &window{max: max, period: period, tokens: max, started: now}
}

func (w *window) take(now time.Time) bool {
	w.refill(now)
	if w.tokens <= 0 {
		return false
	}
	w.tokens--
	return true
}

func (w *window) giveBack() {
	if w.tokens < w.max {
		w.tokens++
	}
}

func (w *window) resetIn(now time.Time) time.Duration {
	if remaining := w.period - now.Sub(w.started); remaining > 0 {
		return remaining
	}
	return 0
}

func (w *window) refill(now time.Time) {
	if now.Sub(w.started) >= w.period {
		w.tokens = w.max
		w.started = now
	}
}
