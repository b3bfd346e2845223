package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/middleware"
	"github.com/andresdev/backstage/internal/quote"
	"github.com/andresdev/backstage/internal/service"
)

// QuoteHandler serves the price list, the calculator and quote documents.
type QuoteHandler struct {
	*BaseHandler
	quotes QuoteService
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(quotes QuoteService, logger *zap.Logger) *QuoteHandler {
	if quotes == nil {
		panic("quote service is required")
	}
	return &QuoteHandler{
		BaseHandler: NewBaseHandler(logger),
		quotes:      quotes,
	}
}

// RegisterRoutes registers quote routes.
func (h *QuoteHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cotizaciones", func(r chi.Router) {
		r.Use(middleware.BodySizeLimiterJSON())
		r.Get("/catalogo", h.Catalog)
		r.Post("/calcular", h.Calculate)
		r.Post("/generar", h.Generate)
	})
}

// Catalog handles GET /api/cotizaciones/catalogo
func (h *QuoteHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, r, http.StatusOK, h.quotes.Catalog())
}

// Calculate handles POST /api/cotizaciones/calcular
func (h *QuoteHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var sel quote.Selection
	if err := decodeJSON(r, &sel); err != nil {
		h.WriteError(w, r, err)
		return
	}

	b, err := h.quotes.Calculate(sel)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, b)
}

// Generate handles POST /api/cotizaciones/generar. The PDF is streamed
// back unless the request asks to save it, in which case its URL is returned.
func (h *QuoteHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req quote.Request
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	doc, err := h.quotes.Generate(r.Context(), service.QuoteRequest{
		Selection:    req.Selection(),
		Cliente:      req.Cliente,
		ClienteEmail: req.ClienteEmail,
		Notas:        req.Notas,
		Guardar:      req.Guardar,
	}, actorFrom(r))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	if req.Guardar {
		h.WriteJSON(w, r, http.StatusCreated, QuoteURLResponse{Numero: doc.Numero, PDFURL: doc.PDFURL})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Numero+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.PDF)))
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.PDF); err != nil {
		h.logger.Debug("failed to write quote document", zap.Error(err))
	}
}
