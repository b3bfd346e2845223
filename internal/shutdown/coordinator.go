// Package shutdown runs the phased, graceful stop of the server.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is something that can be stopped gracefully.
type Service interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc struct {
	ServiceName string
	ShutdownFn  func(ctx context.Context) error
}

func (s ServiceFunc) Name() string                       { return s.ServiceName }
func (s ServiceFunc) Shutdown(ctx context.Context) error { return s.ShutdownFn(ctx) }

// Phase orders shutdown work. Services in the same phase stop concurrently.
type Phase int

const (
	// PhaseHTTP stops accepting requests and drains the in-flight ones.
	PhaseHTTP Phase = iota
	// PhaseWorkers stops background loops such as the session sweeper.
	PhaseWorkers
	// PhaseStorage closes the database pool.
	PhaseStorage
	// PhaseFlush flushes buffered logs.
	PhaseFlush
)

var phases = []Phase{PhaseHTTP, PhaseWorkers, PhaseStorage, PhaseFlush}

func (p Phase) String() string {
	switch p {
	case PhaseHTTP:
		return "http"
	case PhaseWorkers:
		return "workers"
	case PhaseStorage:
		return "storage"
	case PhaseFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Config holds configuration for the coordinator.
type Config struct {
	// Timeout bounds the whole shutdown sequence.
	Timeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second}
}

// Coordinator stops registered services phase by phase.
type Coordinator struct {
	mu       sync.Mutex
	services map[Phase][]Service
	timeout  time.Duration
	logger   *zap.Logger

	draining atomic.Bool
	once     sync.Once
	done     chan struct{}
	err      error
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		services: make(map[Phase][]Service),
		timeout:  cfg.Timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Register adds a service to a phase.
func (c *Coordinator) Register(phase Phase, svc Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[phase] = append(c.services[phase], svc)
}

// RegisterFunc registers a shutdown function.
func (c *Coordinator) RegisterFunc(phase Phase, name string, fn func(ctx context.Context) error) {
	c.Register(phase, ServiceFunc{ServiceName: name, ShutdownFn: fn})
}

// Ready reports whether the server should receive traffic. It turns false
// as soon as Shutdown is called, before any service is stopped.
func (c *Coordinator) Ready() bool {
	return !c.draining.Load()
}

// Shutdown runs every phase once and returns the joined service errors.
// Later calls wait for the first run. The sequence gets its own timeout,
// so a canceled ctx only stops the wait, not the shutdown.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.draining.Store(true)
		go c.run()
	})

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the shutdown sequence has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) run() {
	defer close(c.done)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.logger.Info("starting graceful shutdown", zap.Duration("timeout", c.timeout))

	var errs []error
	for _, phase := range phases {
		c.mu.Lock()
		services := append([]Service(nil), c.services[phase]...)
		c.mu.Unlock()
		if len(services) == 0 {
			continue
		}

		c.logger.Info("shutdown phase", zap.Stringer("phase", phase), zap.Int("services", len(services)))
		errs = append(errs, c.runPhase(ctx, phase, services)...)

		if ctx.Err() != nil {
			c.logger.Error("shutdown timeout exceeded", zap.Stringer("phase", phase), zap.Error(ctx.Err()))
			errs = append(errs, fmt.Errorf("phase %s: %w", phase, ctx.Err()))
			break
		}
	}

	c.err = errors.Join(errs...)
	if c.err != nil {
		c.logger.Error("shutdown completed with errors", zap.Int("error_count", len(errs)))
		return
	}
	c.logger.Info("graceful shutdown complete")
}

func (c *Coordinator) runPhase(ctx context.Context, phase Phase, services []Service) []error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, svc := range services {
		g.Go(func() error {
			start := time.Now()
			if err := svc.Shutdown(ctx); err != nil {
				c.logger.Error("service shutdown failed",
					zap.String("service", svc.Name()),
					zap.Stringer("phase", phase),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", svc.Name(), err))
				mu.Unlock()
				return nil
			}
			c.logger.Debug("service stopped",
				zap.String("service", svc.Name()),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
