package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresdev/backstage/internal/config"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/quote"
	"github.com/andresdev/backstage/internal/ratelimit"
	"github.com/andresdev/backstage/internal/storage"
)

func newTestQuoteService(t *testing.T, limits ratelimit.RenderLimiterConfig) (*QuoteService, testDeps) {
	t.Helper()
	deps := newTestDeps()
	store, err := storage.NewFS(t.TempDir(), "/uploads")
	require.NoError(t, err)

	cfg := config.QuoteConfig{
		MaxSuggestedDiscount: 15,
		CompanyName:          "Andrés Estudio",
		CompanyEmail:         "hola@andres.dev",
		ValidityDays:         15,
	}
	limiter := ratelimit.NewRenderLimiter(limits, deps.clock, deps.logger)
	svc := NewQuoteService(nil, cfg, limiter, store, deps.clock, deps.audit, deps.metrics, deps.events, deps.logger)
	return svc, deps
}

func pct(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestQuoteService_Calculate_DefaultsDiscountCap(t *testing.T) {
	svc, _ := newTestQuoteService(t, ratelimit.DefaultRenderLimiterConfig())

	b, err := svc.Calculate(quote.Selection{Sistema: "basico", DescuentoGeneral: pct(40)})
	require.NoError(t, err)
	assert.True(t, b.DescuentoPorcentaje.Equal(decimal.NewFromInt(15)), "got %s", b.DescuentoPorcentaje)

	b, err = svc.Calculate(quote.Selection{Sistema: "basico", DescuentoGeneral: pct(40), DescuentoMaximo: pct(50)})
	require.NoError(t, err)
	assert.True(t, b.DescuentoPorcentaje.Equal(decimal.NewFromInt(40)), "an explicit cap wins")
}

func TestQuoteService_Calculate_Errors(t *testing.T) {
	svc, _ := newTestQuoteService(t, ratelimit.DefaultRenderLimiterConfig())

	_, err := svc.Calculate(quote.Selection{})
	assert.Equal(t, apperrors.CodeMissingField, apperrors.GetCode(err))

	_, err = svc.Calculate(quote.Selection{Sistema: "basico", Modulos: []string{"teletransporte"}})
	assert.Equal(t, apperrors.CodeUnknownItem, apperrors.GetCode(err))
}

func TestQuoteService_Generate(t *testing.T) {
	svc, deps := newTestQuoteService(t, ratelimit.DefaultRenderLimiterConfig())

	doc, err := svc.Generate(context.Background(), QuoteRequest{
		Selection: quote.Selection{Sistema: "profesional", Modulos: []string{"facturacion"}, FormaPago: "contado"},
		Cliente:   "Ferretería López",
	}, operatorActor)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.Numero, "COT-20260302-"), doc.Numero)
	assert.True(t, bytes.HasPrefix(doc.PDF, []byte("%PDF-")))
	assert.Empty(t, doc.PDFURL)
	assert.True(t, doc.Breakdown.Total.Equal(decimal.NewFromInt(9_000_000)), "got %s", doc.Breakdown.Total)
	assert.Equal(t, []string{"cotizacion.generada"}, deps.activity.Types())
	assert.Equal(t, 0, svc.RenderStats().Active, "the render slot is released")
}

func TestQuoteService_Generate_Saves(t *testing.T) {
	svc, _ := newTestQuoteService(t, ratelimit.DefaultRenderLimiterConfig())

	doc, err := svc.Generate(context.Background(), QuoteRequest{
		Selection: quote.Selection{Sistema: "basico"},
		Cliente:   "Panadería Sofía",
		Guardar:   true,
	}, operatorActor)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.PDFURL, "/uploads/cotizaciones/2026/03/"), doc.PDFURL)
	assert.True(t, strings.HasSuffix(doc.PDFURL, ".pdf"), doc.PDFURL)
}

func TestQuoteService_Generate_RequiresClient(t *testing.T) {
	svc, _ := newTestQuoteService(t, ratelimit.DefaultRenderLimiterConfig())

	_, err := svc.Generate(context.Background(), QuoteRequest{Selection: quote.Selection{Sistema: "basico"}}, operatorActor)
	assert.Equal(t, apperrors.CodeMissingField, apperrors.GetCode(err))
}

func TestQuoteService_Generate_RateLimited(t *testing.T) {
	svc, _ := newTestQuoteService(t, ratelimit.RenderLimiterConfig{PerMinute: 1})
	req := QuoteRequest{Selection: quote.Selection{Sistema: "basico"}, Cliente: "Sofía"}

	_, err := svc.Generate(context.Background(), req, operatorActor)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), req, operatorActor)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRateLimited, apperrors.GetCode(err))
	assert.Equal(t, 429, apperrors.GetHTTPStatus(err))
	assert.EqualValues(t, 1, svc.RenderStats().TotalRejected)
}
