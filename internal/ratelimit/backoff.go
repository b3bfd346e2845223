package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
)

// BackoffConfig configures exponential backoff for HTTP retries.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Jitter is a fraction of the delay, e.g. 0.2 = +/- 20%.
	Jitter float64
	// RetryableStatusCodes trigger a retry when wrapped in a StatusError.
	RetryableStatusCodes []int
	// RespectRetryAfter honors the server's Retry-After, capped at MaxDelay.
	RespectRetryAfter bool
}

// DefaultBackoffConfig returns the defaults used by the andrebot CLI.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
		Jitter:       0.2,
		RetryableStatusCodes: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		RespectRetryAfter: true,
	}
}

var (
	ErrMaxRetriesExhausted = errors.New("maximum retries exhausted")
	ErrNotRetryable        = errors.New("error is not retryable")
)

// StatusError carries an HTTP status so Backoff can decide whether to retry.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Backoff retries operations with exponential delays.
type Backoff struct {
	cfg    BackoffConfig
	clock  clock.Clock
	logger *zap.Logger
	jitter func() float64
}

// NewBackoff creates a Backoff.
func NewBackoff(cfg BackoffConfig, clk clock.Clock, logger *zap.Logger) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backoff{cfg: cfg, clock: clk, logger: logger, jitter: rand.Float64}
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// retries run out.
func (b *Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				b.logger.Debug("operation succeeded after retry", zap.Int("attempts", attempt+1))
			}
			return nil
		}

		if !b.retryable(err) {
			var perm *permanentError
			if errors.As(err, &perm) {
				return perm.err
			}
			return fmt.Errorf("%w: %w", ErrNotRetryable, err)
		}
		if attempt >= b.cfg.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExhausted, attempt+1, err)
		}

		delay := b.Delay(err, attempt)
		b.logger.Warn("operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.clock.After(delay):
		}
	}
}

func (b *Backoff) retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		for _, code := range b.cfg.RetryableStatusCodes {
			if se.StatusCode == code {
				return true
			}
		}
		return false
	}
	// Transport errors.
	return true
}

// Delay returns the wait before retry number attempt+1.
func (b *Backoff) Delay(err error, attempt int) time.Duration {
	var se *StatusError
	if b.cfg.RespectRetryAfter && errors.As(err, &se) && se.RetryAfter > 0 {
		return min(se.RetryAfter, b.cfg.MaxDelay)
	}

	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt))
	if b.cfg.Jitter > 0 {
		delay += (b.jitter()*2 - 1) * delay * b.cfg.Jitter
	}
	if delay > float64(b.cfg.MaxDelay) {
		delay = float64(b.cfg.MaxDelay)
	}
	return time.Duration(delay)
}
