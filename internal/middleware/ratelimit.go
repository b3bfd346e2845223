package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
)

// RateLimiter is a fixed-window limiter keyed by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	name     string
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	// OnLimit is called, if set, every time a request is rejected.
	OnLimit func(limiter, ip string)
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per window and IP.
func NewRateLimiter(name string, rate int, window time.Duration, clk clock.Clock, logger *zap.Logger) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		name:     name,
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		clock:    clk,
		logger:   logger,
	}
}

// Allow takes one token for ip.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	v, ok := rl.visitors[ip]
	if !ok || now.Sub(v.lastReset) >= rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}
	if v.tokens > 0 {
		v.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens left for ip in the current window.
func (rl *RateLimiter) Remaining(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok || rl.clock.Since(v.lastReset) >= rl.window {
		return rl.rate
	}
	return v.tokens
}

// retryAfter returns the seconds until ip's window resets.
func (rl *RateLimiter) retryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		return 0
	}
	left := rl.window - rl.clock.Since(v.lastReset)
	return max(1, int(left.Round(time.Second).Seconds()))
}

// Cleanup drops visitors idle for two windows and reports how many went.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	removed := 0
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every two windows until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// RateLimit rejects requests over the limiter's budget with 429.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !rl.Allow(ip) {
				LoggerWithCorrelation(r.Context(), rl.logger).Warn("rate limit exceeded",
					zap.String("limiter", rl.name),
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				if rl.OnLimit != nil {
					rl.OnLimit(rl.name, ip)
				}
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(ip)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(ip)))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the caller's address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Console login throttling.
const (
	maxLoginAttempts = 5
	loginWindow      = 15 * time.Minute
	blockDuration    = 30 * time.Minute
)

// LoginRateLimiter blocks an ip+email pair after repeated failed logins.
type LoginRateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*loginAttempts
	clock    clock.Clock
	logger   *zap.Logger
}

type loginAttempts struct {
	count     int
	firstTry  time.Time
	blockedAt time.Time
}

// NewLoginRateLimiter creates a LoginRateLimiter.
func NewLoginRateLimiter(clk clock.Clock, logger *zap.Logger) *LoginRateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginRateLimiter{
		attempts: make(map[string]*loginAttempts),
		clock:    clk,
		logger:   logger,
	}
}

func loginKey(ip, email string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

// Check records an attempt and reports whether it may proceed.
func (l *LoginRateLimiter) Check(ip, email string) bool {
	key := loginKey(ip, email)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[key]
	if !ok {
		l.attempts[key] = &loginAttempts{count: 1, firstTry: now}
		return true
	}

	if !a.blockedAt.IsZero() {
		if now.Sub(a.blockedAt) < blockDuration {
			l.logger.Warn("login blocked",
				zap.String("ip", ip),
				zap.Duration("remaining", blockDuration-now.Sub(a.blockedAt)),
			)
			return false
		}
		*a = loginAttempts{count: 1, firstTry: now}
		return true
	}

	if now.Sub(a.firstTry) > loginWindow {
		*a = loginAttempts{count: 1, firstTry: now}
		return true
	}

	a.count++
	if a.count > maxLoginAttempts {
		a.blockedAt = now
		l.logger.Warn("too many login attempts, blocking",
			zap.String("ip", ip),
			zap.Int("attempts", a.count),
		)
		return false
	}
	return true
}

// RecordSuccess clears the counter after a successful login.
func (l *LoginRateLimiter) RecordSuccess(ip, email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, loginKey(ip, email))
}

// RemainingAttempts returns how many attempts are left before a block.
func (l *LoginRateLimiter) RemainingAttempts(ip, email string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[loginKey(ip, email)]
	if !ok {
		return maxLoginAttempts
	}
	if !a.blockedAt.IsZero() {
		if l.clock.Since(a.blockedAt) < blockDuration {
			return 0
		}
		return maxLoginAttempts
	}
	if l.clock.Since(a.firstTry) > loginWindow {
		return maxLoginAttempts
	}
	return max(0, maxLoginAttempts-a.count)
}

// Cleanup drops entries whose window or block has passed.
func (l *LoginRateLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, a := range l.attempts {
		if (!a.blockedAt.IsZero() && now.Sub(a.blockedAt) > blockDuration) ||
			(a.blockedAt.IsZero() && now.Sub(a.firstTry) > loginWindow) {
			delete(l.attempts, key)
		}
	}
}
