// Package circuitbreaker skips tenant projects whose API keeps failing so a
// dead deployment does not cost every dashboard refresh the full timeout.
package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
)

// State represents the breaker state.
type State int

const (
	StateClosed   State = iota // calls go through
	StateOpen                  // calls fail fast
	StateHalfOpen              // one probe is allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute while the breaker is open or probing.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before a probe is allowed.
	Cooldown time.Duration
}

// DefaultConfig returns the tenant defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, Cooldown: time.Minute}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Breaker guards calls to a single upstream.
type Breaker struct {
	mu sync.Mutex

	name   string
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	state     State
	failures  int
	probing   bool
	openedAt  time.Time
	changedAt time.Time
	lastError string

	rejected int64
}

// New creates a closed breaker.
func New(name string, cfg Config, clk clock.Clock, logger *zap.Logger) *Breaker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:      name,
		cfg:       cfg.normalized(),
		clock:     clk,
		logger:    logger,
		changedAt: clk.Now(),
	}
}

// Execute runs fn unless the breaker is open. Errors for which Counts
// returns false (caller cancellation) leave the breaker untouched.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Since(b.openedAt) < b.cfg.Cooldown {
			b.rejected++
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		b.logger.Info("circuit breaker probing", zap.String("name", b.name))
		return nil
	case StateHalfOpen:
		if b.probing {
			b.rejected++
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
	}

	if err == nil {
		if b.state != StateClosed {
			b.logger.Info("circuit breaker closed", zap.String("name", b.name))
		}
		b.failures = 0
		b.setState(StateClosed)
		return
	}
	if !Counts(err) {
		return
	}

	b.failures++
	b.lastError = err.Error()

	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.clock.Now()
		if b.state != StateOpen {
			b.logger.Warn("circuit breaker opened",
				zap.String("name", b.name),
				zap.Int("consecutive_failures", b.failures),
				zap.Error(err),
			)
		}
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s State) {
	if b.state != s {
		b.changedAt = b.clock.Now()
	}
	b.state = s
}

// State returns the current state, reporting half-open once the cooldown
// of an open breaker has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock.Since(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.lastError = ""
	b.setState(StateClosed)
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Rejected            int64     `json:"rejected"`
	LastStateChange     time.Time `json:"last_state_change"`
	LastError           string    `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	state := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:                b.name,
		State:               state.String(),
		ConsecutiveFailures: b.failures,
		Rejected:            b.rejected,
		LastStateChange:     b.changedAt,
		LastError:           b.lastError,
	}
}

// Counts reports whether err should count as an upstream failure.
// Cancellation by the caller and the breaker's own rejection do not.
func Counts(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrOpen) {
		return false
	}
	return true
}

// Registry hands out one breaker per key.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, clk clock.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = New(key, r.cfg, r.clock, r.logger)
		r.breakers[key] = b
	}
	return b
}

// Stats returns a snapshot of every breaker sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(list))
	for _, b := range list {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
