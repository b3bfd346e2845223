package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/config"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/quote"
	"github.com/andresdev/backstage/internal/ratelimit"
	"github.com/andresdev/backstage/internal/sanitize"
	"github.com/andresdev/backstage/internal/storage"
)

// quotePrefix is the storage folder for saved quote documents.
const quotePrefix = "cotizaciones"

// QuoteRequest asks for a quote document.
type QuoteRequest struct {
	Selection    quote.Selection
	Cliente      string
	ClienteEmail string
	Notas        string
	// Guardar stores the PDF and returns its URL instead of the bytes.
	Guardar bool
}

// QuoteDocument is a rendered quote.
type QuoteDocument struct {
	Numero    string           `json:"numero"`
	Breakdown *quote.Breakdown `json:"desglose"`
	PDF       []byte           `json:"-"`
	PDFURL    string           `json:"pdfUrl,omitempty"`
}

// QuoteService prices selections and renders quote documents.
type QuoteService struct {
	catalog *quote.Catalog
	cfg     config.QuoteConfig
	limiter *ratelimit.RenderLimiter
	store   storage.Store
	clock   clock.Clock
	audit   *audit.Logger
	metrics *metrics.Metrics
	events  *metrics.EventLogger
	logger  *zap.Logger
}

// NewQuoteService creates a new QuoteService. A nil catalog uses the default.
func NewQuoteService(
	catalog *quote.Catalog,
	cfg config.QuoteConfig,
	limiter *ratelimit.RenderLimiter,
	store storage.Store,
	clk clock.Clock,
	auditLogger *audit.Logger,
	m *metrics.Metrics,
	events *metrics.EventLogger,
	logger *zap.Logger,
) *QuoteService {
	if catalog == nil {
		catalog = quote.DefaultCatalog()
	}
	return &QuoteService{
		catalog: catalog,
		cfg:     cfg,
		limiter: limiter,
		store:   store,
		clock:   clk,
		audit:   auditLogger,
		metrics: m,
		events:  events,
		logger:  logger,
	}
}

// Catalog returns the price list.
func (s *QuoteService) Catalog() *quote.Catalog {
	return s.catalog
}

// Calculate prices sel.
func (s *QuoteService) Calculate(sel quote.Selection) (*quote.Breakdown, error) {
	if sel.DescuentoMaximo == nil && s.cfg.MaxSuggestedDiscount > 0 {
		max := decimal.NewFromFloat(s.cfg.MaxSuggestedDiscount)
		sel.DescuentoMaximo = &max
	}

	b, err := quote.Compute(sel, s.catalog)
	s.metrics.RecordQuoteCalculation(err == nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Generate prices the selection and renders its PDF. Renders are bounded by
// the limiter; a saturated limiter is reported as a rate limit.
func (s *QuoteService) Generate(ctx context.Context, req QuoteRequest, actor audit.Actor) (*QuoteDocument, error) {
	cliente := strings.TrimSpace(req.Cliente)
	if cliente == "" {
		return nil, apperrors.MissingField("cliente")
	}

	b, err := s.Calculate(req.Selection)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.metrics.RecordQuoteRenderRejected()
		s.events.RateLimitExceeded(ctx, "quote_render", actor.IP)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, "QuoteService.Generate", apperrors.CodeRateLimited, "too many quote documents, try again later")
	}
	defer s.limiter.Release()

	now := s.clock.NowUTC()
	doc := &QuoteDocument{Numero: quoteNumber(now), Breakdown: b}

	started := s.clock.Now()
	var buf bytes.Buffer
	err = quote.RenderPDF(&buf, b, quote.Document{
		Numero:       doc.Numero,
		Cliente:      cliente,
		ClienteEmail: strings.TrimSpace(req.ClienteEmail),
		Empresa:      s.cfg.CompanyName,
		EmpresaEmail: s.cfg.CompanyEmail,
		EmpresaTel:   s.cfg.CompanyPhone,
		Emitida:      now,
		ValidezDias:  s.cfg.ValidityDays,
		Notas:        strings.TrimSpace(req.Notas),
	})
	duration := s.clock.Since(started)
	s.metrics.RecordQuoteRender(err == nil, duration)
	if err != nil {
		s.events.QuoteGenerated(ctx, cliente, "", req.Guardar, duration, err)
		return nil, apperrors.RenderError(err)
	}
	doc.PDF = buf.Bytes()

	if req.Guardar {
		obj, err := s.store.Put(ctx, quotePrefix, ".pdf", "application/pdf", bytes.NewReader(doc.PDF))
		if err != nil {
			s.events.QuoteGenerated(ctx, cliente, b.Total.StringFixed(2), true, duration, err)
			return nil, fmt.Errorf("failed to store quote document: %w", err)
		}
		doc.PDFURL = obj.URL
	}

	total := b.Total.StringFixed(2)
	s.events.QuoteGenerated(ctx, cliente, total, req.Guardar, duration, nil)
	s.audit.QuoteGenerated(ctx, actor, doc.PDFURL, cliente, total)
	s.logger.Debug("quote document rendered",
		zap.String("numero", doc.Numero),
		zap.String("cliente_email", sanitize.Email(req.ClienteEmail)),
		zap.Int("bytes", len(doc.PDF)),
	)
	return doc, nil
}

// RenderStats reports the render limiter state.
func (s *QuoteService) RenderStats() ratelimit.RenderLimiterStats {
	return s.limiter.Stats()
}

func quoteNumber(t time.Time) string {
	return fmt.Sprintf("COT-%s-%s", t.Format("20060102"), strings.ToUpper(uuid.NewString()[:6]))
}
