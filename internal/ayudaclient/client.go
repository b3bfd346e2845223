// Package ayudaclient talks to the public support API of a Backstage server.
// It implements chatflow.Backend so the andrebot CLI can run the
// conversation locally against a remote server.
package ayudaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/quote"
	"github.com/andresdev/backstage/internal/ratelimit"
)

const (
	// DefaultBaseURL is used when no server is configured.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 16 << 20
)

var _ chatflow.Backend = (*Client)(nil)

// Config holds configuration for the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Backoff ratelimit.BackoffConfig
	// UserAgent is sent with every request.
	UserAgent string
}

// Client is the support API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	backoff    *ratelimit.Backoff
	logger     *zap.Logger
}

// New creates a new Client.
func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff.MaxRetries == 0 && cfg.Backoff.InitialDelay == 0 {
		cfg.Backoff = ratelimit.DefaultBackoffConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "andrebot"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		backoff: ratelimit.NewBackoff(cfg.Backoff, clk, logger),
		logger:  logger,
	}
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("support API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("support API error: %s", e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Identify looks an email up in the tenant directory.
func (c *Client) Identify(ctx context.Context, email string) (domain.Identity, error) {
	var ident domain.Identity
	path := "/api/ayuda/identificar?" + url.Values{"email": {email}}.Encode()
	if err := c.request(ctx, http.MethodGet, path, nil, &ident); err != nil {
		return domain.Identity{}, err
	}
	return ident, nil
}

// CreateSession opens a persisted chat for ident.
func (c *Client) CreateSession(ctx context.Context, ident domain.Identity) (uuid.UUID, error) {
	body := map[string]any{
		"email":  ident.Email,
		"nombre": ident.Nombre,
	}
	if ident.ProyectoID != nil {
		body["proyecto_id"] = ident.ProyectoID
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/ayuda/chats", body, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// AppendMessages appends messages to a persisted chat.
func (c *Client) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []domain.ChatMessage) error {
	body := map[string]any{"messages": messages}
	return c.request(ctx, http.MethodPost, "/api/ayuda/chats/"+sessionID.String()+"/messages", body, nil)
}

// GetChat returns a persisted chat with its transcript.
func (c *Client) GetChat(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	var chat domain.ChatSession
	if err := c.request(ctx, http.MethodGet, "/api/ayuda/chats/"+id.String(), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListTickets returns the tickets created by email.
func (c *Client) ListTickets(ctx context.Context, email string) ([]domain.TicketRef, error) {
	var resp struct {
		Tickets []domain.TicketRef `json:"tickets"`
	}
	path := "/api/ayuda/tickets?" + url.Values{"email": {email}}.Encode()
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

// CreateTicket opens a ticket. New tickets always start in the first state.
// The request carries an Idempotency-Key so it is retried like a read.
func (c *Client) CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.TicketRef, error) {
	data, err := json.Marshal(draft)
	if err != nil {
		return domain.TicketRef{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var resp struct {
		ID        uuid.UUID `json:"id"`
		SupportID string    `json:"supportId"`
	}
	// One key for every attempt so a retry cannot open a second ticket.
	err = c.send(ctx, call{
		method:         http.MethodPost,
		path:           "/api/tickets",
		contentType:    "application/json",
		body:           data,
		idempotencyKey: uuid.NewString(),
	}, &resp)
	if err != nil {
		return domain.TicketRef{}, err
	}
	return domain.TicketRef{
		ID:          resp.ID,
		SupportID:   resp.SupportID,
		EstadoLabel: domain.TicketStateCreated.Label(),
		Titulo:      draft.Titulo,
	}, nil
}

// UploadImage sends an image and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	var resp struct {
		URL string `json:"url"`
	}
	err = c.send(ctx, call{
		method:      http.MethodPost,
		path:        "/api/soporte/upload",
		contentType: mw.FormDataContentType(),
		body:        buf.Bytes(),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Catalog returns the quote price list.
func (c *Client) Catalog(ctx context.Context) (*quote.Catalog, error) {
	var cat quote.Catalog
	if err := c.request(ctx, http.MethodGet, "/api/cotizaciones/catalogo", nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Calculate prices a selection on the server.
func (c *Client) Calculate(ctx context.Context, sel quote.Selection) (*quote.Breakdown, error) {
	var b quote.Breakdown
	if err := c.request(ctx, http.MethodPost, "/api/cotizaciones/calcular", sel, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// QuoteRequest asks the server for a quote document.
type QuoteRequest struct {
	Selection    quote.Selection
	Cliente      string
	ClienteEmail string
	Notas        string
}

// GenerateQuote renders a quote and returns the PDF bytes.
func (c *Client) GenerateQuote(ctx context.Context, req QuoteRequest) ([]byte, error) {
	body := quote.RequestFor(req.Selection)
	body.Cliente = req.Cliente
	body.ClienteEmail = req.ClienteEmail
	body.Notas = req.Notas

	var pdf []byte
	if err := c.request(ctx, http.MethodPost, "/api/cotizaciones/generar", body, &pdf); err != nil {
		return nil, err
	}
	return pdf, nil
}

// call is one API request.
type call struct {
	method         string
	path           string
	contentType    string
	body           []byte
	idempotencyKey string
}

// request sends body as JSON.
func (c *Client) request(ctx context.Context, method, path string, body, result any) error {
	cl := call{method: method, path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		cl.body = data
		cl.contentType = "application/json"
	}
	return c.send(ctx, cl, result)
}

// send performs a request with retries. Writes without an idempotency key
// are only retried when the server rejected them before doing any work.
func (c *Client) send(ctx context.Context, cl call, result any) error {
	retrySafe := cl.method == http.MethodGet || cl.idempotencyKey != ""
	return c.backoff.Do(ctx, func(ctx context.Context) error {
		err := c.doRequest(ctx, cl, result)
		if err != nil && !retrySafe && !rejectedUnprocessed(err) {
			return ratelimit.Permanent(err)
		}
		return err
	})
}

func rejectedUnprocessed(err error) bool {
	var se *ratelimit.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusServiceUnavailable
}

// doRequest performs one HTTP attempt. result may be a *[]byte to receive
// the raw body.
func (c *Client) doRequest(ctx context.Context, cl call, result any) error {
	var reqBody io.Reader
	if cl.body != nil {
		reqBody = bytes.NewReader(cl.body)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reqBody)
	if err != nil {
		return ratelimit.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if cl.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", cl.idempotencyKey)
	}
	req.Header.Set("Accept", "application/json, application/pdf")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("support API request",
		zap.String("method", cl.method),
		zap.String("path", cl.path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("support API response",
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", resp.Header.Get("X-Request-ID")),
		zap.Int("body_length", len(respBody)),
	)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return &ratelimit.StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Err:        apiErr,
		}
	}

	switch out := result.(type) {
	case nil:
	case *[]byte:
		*out = respBody
	default:
		if len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return ratelimit.Permanent(fmt.Errorf("failed to parse response: %w", err))
			}
		}
	}
	return nil
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
