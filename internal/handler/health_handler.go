package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/circuitbreaker"
	"github.com/andresdev/backstage/internal/ratelimit"
)

// HealthChecker defines the interface for checking database health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes the per-tenant circuit breakers.
type BreakerReporter interface {
	Breakers() []circuitbreaker.Stats
}

// RenderReporter exposes the quote render limiter.
type RenderReporter interface {
	RenderStats() ratelimit.RenderLimiterStats
}

// ReadinessGate reports whether the process still accepts traffic.
type ReadinessGate interface {
	Ready() bool
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	healthChecker HealthChecker
	breakers      BreakerReporter
	renders       RenderReporter
	gate          ReadinessGate
	version       string
	logger        *zap.Logger
}

// HealthHandlerConfig holds configuration for HealthHandler.
type HealthHandlerConfig struct {
	HealthChecker HealthChecker
	Breakers      BreakerReporter
	Renders       RenderReporter
	Gate          ReadinessGate
	Version       string
	Logger        *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with all required dependencies.
func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &HealthHandler{
		healthChecker: cfg.HealthChecker,
		breakers:      cfg.Breakers,
		renders:       cfg.Renders,
		gate:          cfg.Gate,
		version:       cfg.Version,
		logger:        cfg.Logger,
	}
}

// RegisterRoutes registers health routes on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReadiness)
	r.Get("/live", h.HandleLiveness)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string                        `json:"status"`
	Version string                        `json:"version,omitempty"`
	Checks  map[string]ComponentHealth    `json:"checks,omitempty"`
	Tenants []circuitbreaker.Stats        `json:"tenants,omitempty"`
	Renders *ratelimit.RenderLimiterStats `json:"renders,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleHealth reports the database and the state of the tenant breakers.
// Open breakers degrade the status; only the database makes it unhealthy.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Checks:  make(map[string]ComponentHealth),
	}

	hasCriticalFailure := false
	hasDegradation := false

	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			hasCriticalFailure = true
			response.Checks["database"] = ComponentHealth{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			h.logger.Error("database health check failed", zap.Error(err))
		} else {
			response.Checks["database"] = ComponentHealth{Status: "healthy"}
		}
	}

	if h.breakers != nil {
		response.Tenants = h.breakers.Breakers()
		open := 0
		for _, b := range response.Tenants {
			if b.State != circuitbreaker.StateClosed.String() {
				open++
			}
		}
		if open > 0 {
			hasDegradation = true
			response.Checks["tenants"] = ComponentHealth{
				Status:  "degraded",
				Message: fmt.Sprintf("%d tenant(s) skipped by circuit breaker", open),
			}
		} else {
			response.Checks["tenants"] = ComponentHealth{Status: "healthy"}
		}
	}

	if h.renders != nil {
		stats := h.renders.RenderStats()
		response.Renders = &stats
		if stats.MinuteRemaining == 0 || stats.HourRemaining == 0 {
			hasDegradation = true
			response.Checks["quote_renders"] = ComponentHealth{
				Status:  "degraded",
				Message: "render quota exhausted",
			}
		} else {
			response.Checks["quote_renders"] = ComponentHealth{Status: "healthy"}
		}
	}

	if hasCriticalFailure {
		response.Status = "unhealthy"
	} else if hasDegradation {
		response.Status = "degraded"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := encodeJSON(w, response); err != nil {
		h.logger.Debug("failed to write health response", zap.Error(err))
	}
}

// HandleReadiness fails while draining or when the database is unreachable.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.gate != nil && !h.gate.Ready() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HandleLiveness returns a simple liveness probe response.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
