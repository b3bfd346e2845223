package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/middleware"
)

// TicketHandler serves ticket creation and detail to the widget and the
// listing and lifecycle updates to operators.
type TicketHandler struct {
	*BaseHandler
	tickets TicketService

	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	clock          clock.Clock
}

const (
	// IdempotencyKeyHeader lets a client retry ticket creation safely.
	IdempotencyKeyHeader = "Idempotency-Key"

	// DefaultIdempotencyTTL is how long a ticket creation can be replayed.
	DefaultIdempotencyTTL = 24 * time.Hour

	maxIdempotencyKeyLength = 128
)

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(tickets TicketService, logger *zap.Logger) *TicketHandler {
	if tickets == nil {
		panic("ticket service is required")
	}
	return &TicketHandler{
		BaseHandler: NewBaseHandler(logger),
		tickets:     tickets,
		clock:       clock.New(),
	}
}

// WithIdempotency makes POST /api/tickets replay the first response for a
// repeated Idempotency-Key until ttl elapses.
func (h *TicketHandler) WithIdempotency(store IdempotencyStore, ttl time.Duration, clk clock.Clock) *TicketHandler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if clk != nil {
		h.clock = clk
	}
	h.idempotency = store
	h.idempotencyTTL = ttl
	return h
}

// RegisterRoutes registers ticket routes. requireOperator guards listing
// and updates.
func (h *TicketHandler) RegisterRoutes(r chi.Router, requireOperator func(http.Handler) http.Handler) {
	r.Route("/tickets", func(r chi.Router) {
		r.Use(middleware.BodySizeLimiterJSON())
		r.Post("/", h.Create)
		r.Get("/{ticketID}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(requireOperator)
			r.Get("/", h.List)
			r.Patch("/{ticketID}", h.Update)
		})
	})
}

// Create handles POST /api/tickets
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	key, err := h.idempotencyKey(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if key != "" {
		cached, err := h.idempotency.Get(r.Context(), key)
		if err != nil {
			h.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		} else if cached != nil {
			w.Header().Set("Idempotent-Replayed", "true")
			h.WriteJSON(w, r, http.StatusCreated, json.RawMessage(cached))
			return
		}
	}

	var draft domain.TicketDraft
	if err := decodeJSON(r, &draft); err != nil {
		h.WriteError(w, r, err)
		return
	}

	t, err := h.tickets.Create(r.Context(), draft)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	resp := CreateTicketResponse{ID: t.ID, SupportID: t.SupportID}
	if key != "" {
		h.remember(r, key, resp)
	}
	h.WriteJSON(w, r, http.StatusCreated, resp)
}

// idempotencyKey returns the namespaced key of the request, or "" when the
// request has none or idempotency is off.
func (h *TicketHandler) idempotencyKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || h.idempotency == nil {
		return "", nil
	}
	if len(key) > maxIdempotencyKeyLength {
		return "", apperrors.InvalidFormat(IdempotencyKeyHeader, "at most 128 characters")
	}
	return "tickets:" + key, nil
}

func (h *TicketHandler) remember(r *http.Request, key string, resp CreateTicketResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	expires := h.clock.Now().Add(h.idempotencyTTL)
	if err := h.idempotency.Save(r.Context(), key, data, expires); err != nil {
		h.logger.Warn("failed to save idempotent response", zap.String("key", key), zap.Error(err))
	}
}

// Get handles GET /api/tickets/{ticketID}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "ticketID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	t, err := h.tickets.Get(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, newTicketDetail(t))
}

// List handles GET /api/tickets
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := ticketFilter(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	tickets, err := h.tickets.List(r.Context(), filter)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	items := make([]TicketDetail, len(tickets))
	for i, t := range tickets {
		items[i] = newTicketDetail(t)
	}
	h.WriteJSON(w, r, http.StatusOK, ListResponse[TicketDetail]{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

// Update handles PATCH /api/tickets/{ticketID}
func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "ticketID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	var upd domain.TicketUpdate
	if err := decodeJSON(r, &upd); err != nil {
		h.WriteError(w, r, err)
		return
	}

	t, err := h.tickets.Update(r.Context(), id, upd, actorFrom(r))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, newTicketDetail(t))
}

func ticketFilter(r *http.Request) (domain.TicketFilter, error) {
	q := r.URL.Query()
	var f domain.TicketFilter
	f.Limit, f.Offset = pagination(r)
	f.Email = q.Get("email")

	if v := q.Get("estado"); v != "" {
		s := domain.TicketState(v)
		if !s.IsValid() {
			return f, apperrors.InvalidFormat("estado", "a ticket state")
		}
		f.Estado = &s
	}
	if v := q.Get("prioridad"); v != "" {
		p := domain.Priority(v)
		if !p.IsValid() {
			return f, apperrors.InvalidFormat("prioridad", "a priority")
		}
		f.Prioridad = &p
	}
	if v := q.Get("proyecto_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperrors.InvalidFormat("proyecto_id", "a UUID")
		}
		f.ProyectoID = &id
	}
	return f, nil
}
