// Package metrics provides Prometheus metrics collection for the application.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome/status label values for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Operator authentication
	AuthAttemptsTotal *prometheus.CounterVec
	SessionsCreated   prometheus.Counter
	SessionsExpired   prometheus.Counter

	// Support chat
	ChatSessionsCreated  prometheus.Counter
	ChatMessagesAppended *prometheus.CounterVec
	BotStepsTotal        *prometheus.CounterVec

	// Tickets
	TicketsCreated     *prometheus.CounterVec
	TicketStateChanges *prometheus.CounterVec

	// Quotes
	QuoteCalculationsTotal *prometheus.CounterVec
	QuoteRendersTotal      *prometheus.CounterVec
	QuoteRenderDuration    prometheus.Histogram

	// Uploads
	UploadsTotal *prometheus.CounterVec
	UploadBytes  prometheus.Histogram

	// Tenant fan-out
	TenantFetchesTotal  *prometheus.CounterVec
	TenantFetchDuration *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec

	// Database
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge

	// Rate limiting
	RateLimitHitsTotal *prometheus.CounterVec

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backstage_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backstage_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_auth_attempts_total",
				Help: "Operator login attempts by outcome",
			},
			[]string{"outcome"}, // "success", "failure", "rate_limited"
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backstage_sessions_created_total",
				Help: "Total number of operator sessions created",
			},
		),
		SessionsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backstage_sessions_expired_total",
				Help: "Total number of expired operator sessions removed",
			},
		),

		ChatSessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backstage_chat_sessions_created_total",
				Help: "Total number of support chats persisted",
			},
		),
		ChatMessagesAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_chat_messages_appended_total",
				Help: "Chat messages appended to transcripts by role",
			},
			[]string{"role"},
		),
		BotStepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_bot_steps_total",
				Help: "Server-side chat engine steps by resulting state",
			},
			[]string{"state"},
		),

		TicketsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_tickets_created_total",
				Help: "Support tickets created by priority",
			},
			[]string{"priority"},
		),
		TicketStateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_ticket_state_changes_total",
				Help: "Ticket state changes by target state",
			},
			[]string{"state"},
		),

		QuoteCalculationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_quote_calculations_total",
				Help: "Quote calculations by outcome",
			},
			[]string{"outcome"},
		),
		QuoteRendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_quote_renders_total",
				Help: "Quote PDF renders by outcome",
			},
			[]string{"outcome"}, // "success", "failure", "rejected"
		),
		QuoteRenderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backstage_quote_render_duration_seconds",
				Help:    "Quote PDF render duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),

		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_uploads_total",
				Help: "Support uploads by outcome",
			},
			[]string{"outcome", "compressed"},
		),
		UploadBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "backstage_upload_bytes",
				Help:    "Stored upload size in bytes",
				Buckets: prometheus.ExponentialBuckets(16<<10, 4, 6),
			},
		),

		TenantFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_tenant_fetches_total",
				Help: "Tenant API calls made by the console fan-out",
			},
			[]string{"endpoint", "outcome"},
		),
		TenantFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backstage_tenant_fetch_duration_seconds",
				Help:    "Tenant API call duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8},
			},
			[]string{"endpoint"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backstage_circuit_breaker_state",
				Help: "Tenant circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"tenant"},
		),

		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backstage_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "backstage_db_connections_in_use",
				Help: "Number of database connections currently acquired",
			},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_rate_limit_hits_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// routePattern prefers the matched chi pattern so ids do not become labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath normalizes URL paths to prevent high cardinality labels.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/live", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/uploads/") {
		return "/uploads/*"
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/*"
	}
	return "other"
}

func outcome(success bool) string {
	if success {
		return outcomeSuccess
	}
	return outcomeFailure
}

// RecordAuthAttempt records an operator login attempt.
func (m *Metrics) RecordAuthAttempt(success bool) {
	m.AuthAttemptsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordAuthRateLimited records a rate-limited login attempt.
func (m *Metrics) RecordAuthRateLimited() {
	m.AuthAttemptsTotal.WithLabelValues("rate_limited").Inc()
	m.RateLimitHitsTotal.WithLabelValues("login").Inc()
}

// RecordSessionCreated records a new operator session.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionsExpired records removed expired sessions.
func (m *Metrics) RecordSessionsExpired(n int64) {
	m.SessionsExpired.Add(float64(n))
}

// RecordChatCreated records a persisted support chat.
func (m *Metrics) RecordChatCreated() {
	m.ChatSessionsCreated.Inc()
}

// RecordMessagesAppended counts appended messages by role.
func (m *Metrics) RecordMessagesAppended(role string, n int) {
	m.ChatMessagesAppended.WithLabelValues(role).Add(float64(n))
}

// RecordBotStep records one server-side engine step.
func (m *Metrics) RecordBotStep(state string) {
	m.BotStepsTotal.WithLabelValues(state).Inc()
}

// RecordTicketCreated records a new ticket.
func (m *Metrics) RecordTicketCreated(priority string) {
	m.TicketsCreated.WithLabelValues(priority).Inc()
}

// RecordTicketStateChange records a ticket moving to state.
func (m *Metrics) RecordTicketStateChange(state string) {
	m.TicketStateChanges.WithLabelValues(state).Inc()
}

// RecordQuoteCalculation records a quote calculation.
func (m *Metrics) RecordQuoteCalculation(success bool) {
	m.QuoteCalculationsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordQuoteRender records a PDF render attempt.
func (m *Metrics) RecordQuoteRender(success bool, duration time.Duration) {
	m.QuoteRendersTotal.WithLabelValues(outcome(success)).Inc()
	m.QuoteRenderDuration.Observe(duration.Seconds())
}

// RecordQuoteRenderRejected records a render refused by the limiter.
func (m *Metrics) RecordQuoteRenderRejected() {
	m.QuoteRendersTotal.WithLabelValues("rejected").Inc()
	m.RateLimitHitsTotal.WithLabelValues("quote_render").Inc()
}

// RecordUpload records a stored or failed upload.
func (m *Metrics) RecordUpload(success, compressed bool, size int64) {
	m.UploadsTotal.WithLabelValues(outcome(success), strconv.FormatBool(compressed)).Inc()
	if success {
		m.UploadBytes.Observe(float64(size))
	}
}

// RecordTenantFetch records one tenant API call of the console fan-out.
func (m *Metrics) RecordTenantFetch(endpoint string, ok bool, d time.Duration) {
	m.TenantFetchesTotal.WithLabelValues(endpoint, outcome(ok)).Inc()
	m.TenantFetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetCircuitBreakerState updates the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(tenant string, state int) {
	m.CircuitBreakerState.WithLabelValues(tenant).Set(float64(state))
}

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.RateLimitHitsTotal.WithLabelValues(limiter).Inc()
}
