// Package backstage queries the API of every client deployment and merges
// the answers into one console view. A slow or failing tenant only marks its
// own entry as failed.
package backstage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andresdev/backstage/internal/circuitbreaker"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/middleware"
)

const (
	// APIKeyHeader carries the tenant's key on every call.
	APIKeyHeader = "x-andres-api-key"

	// DefaultTenantTimeout bounds each tenant call.
	DefaultTenantTimeout = 8 * time.Second

	maxResponseBytes = 4 << 20
	maxSnippetRunes  = 200
)

// Result is the outcome of one tenant call.
type Result struct {
	ProyectoID     uuid.UUID       `json:"proyecto_id"`
	ProyectoNombre string          `json:"proyecto_nombre"`
	OK             bool            `json:"ok"`
	Error          string          `json:"error,omitempty"`
	DuracionMS     int64           `json:"duracion_ms"`
	Datos          json.RawMessage `json:"datos,omitempty"`
}

// Aggregate is the merged answer of a fan-out.
type Aggregate struct {
	Resultados []Result `json:"resultados"`
}

// Failed returns the number of tenants that did not answer.
func (a *Aggregate) Failed() int {
	n := 0
	for _, r := range a.Resultados {
		if !r.OK {
			n++
		}
	}
	return n
}

// Recorder receives per-tenant call outcomes.
type Recorder interface {
	RecordTenantFetch(endpoint string, ok bool, duration time.Duration)
}

// StatusError is returned when a tenant answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tenant responded %d", e.StatusCode)
	}
	return fmt.Sprintf("tenant responded %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	TenantTimeout time.Duration
	Breaker       circuitbreaker.Config
}

// Client fans requests out to tenant deployments.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	breakers   *circuitbreaker.Registry
	clock      clock.Clock
	recorder   Recorder
	logger     *zap.Logger
}

// New creates a Client. recorder may be nil.
func New(cfg Config, httpClient *http.Client, clk clock.Clock, recorder Recorder, logger *zap.Logger) *Client {
	if cfg.TenantTimeout <= 0 {
		cfg.TenantTimeout = DefaultTenantTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		timeout:    cfg.TenantTimeout,
		breakers:   circuitbreaker.NewRegistry(cfg.Breaker, clk, logger),
		clock:      clk,
		recorder:   recorder,
		logger:     logger,
	}
}

// Breakers exposes the per-tenant breaker snapshots.
func (c *Client) Breakers() []circuitbreaker.Stats {
	return c.breakers.Stats()
}

// FanOut calls path on every project that exposes an API and returns one
// result per project, in input order. Projects without an API are skipped.
// The returned error is only set when ctx itself is done.
func (c *Client) FanOut(ctx context.Context, projects []*domain.Project, path string, query url.Values) (*Aggregate, error) {
	targets := make([]*domain.Project, 0, len(projects))
	for _, p := range projects {
		if p != nil && p.HasAPI() {
			targets = append(targets, p)
		}
	}

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range targets {
		g.Go(func() error {
			results[i] = c.fetch(gctx, p, path, query)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Aggregate{Resultados: results}, nil
}

func (c *Client) fetch(ctx context.Context, p *domain.Project, path string, query url.Values) Result {
	res := Result{ProyectoID: p.ID, ProyectoNombre: p.Nombre}
	start := c.clock.Now()

	var body []byte
	err := c.breakers.Get(p.ID.String()).Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		body, err = c.get(ctx, p, path, query)
		return err
	})

	elapsed := c.clock.Since(start)
	res.DuracionMS = elapsed.Milliseconds()

	if err != nil {
		res.Error = describe(err, c.timeout)
		c.logger.Warn("tenant call failed",
			zap.String("project", p.Slug),
			zap.String("path", path),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
	} else {
		res.OK = true
		res.Datos = body
	}

	if c.recorder != nil {
		c.recorder.RecordTenantFetch(path, res.OK, elapsed)
	}
	return res
}

func (c *Client) get(ctx context.Context, p *domain.Project, path string, query url.Values) ([]byte, error) {
	target := strings.TrimRight(p.APIBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, p.APIKey)
	req.Header.Set("Accept", "application/json")
	middleware.PropagateHeaders(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	if !json.Valid(body) {
		return nil, errors.New("tenant returned invalid JSON")
	}
	return body, nil
}

func describe(err error, timeout time.Duration) string {
	var se *StatusError
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "omitido: demasiados fallos recientes"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("sin respuesta en %s", timeout)
	case errors.As(err, &se):
		return se.Error()
	default:
		return err.Error()
	}
}

// snippet keeps the first maxSnippetRunes runes of an error body.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(s) <= maxSnippetRunes {
		return s
	}
	return string([]rune(s)[:maxSnippetRunes])
}
