package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/middleware"
)

// AyudaHandler serves the public help widget: identification, chat
// transcripts, ticket quick links and the server-side Andrebot.
type AyudaHandler struct {
	*BaseHandler
	chats   ChatService
	tickets TicketService
	bot     BotService
}

// AyudaHandlerConfig holds configuration for AyudaHandler.
type AyudaHandlerConfig struct {
	Chats   ChatService
	Tickets TicketService
	Bot     BotService
	Logger  *zap.Logger
}

// NewAyudaHandler creates a new AyudaHandler.
func NewAyudaHandler(cfg AyudaHandlerConfig) *AyudaHandler {
	if cfg.Chats == nil || cfg.Tickets == nil {
		panic("chat and ticket services are required")
	}
	return &AyudaHandler{
		BaseHandler: NewBaseHandler(cfg.Logger),
		chats:       cfg.Chats,
		tickets:     cfg.Tickets,
		bot:         cfg.Bot,
	}
}

// RegisterRoutes registers the widget routes.
func (h *AyudaHandler) RegisterRoutes(r chi.Router) {
	r.Route("/ayuda", func(r chi.Router) {
		r.Use(middleware.BodySizeLimiterJSON())
		r.Get("/identificar", h.Identify)
		r.Post("/chats", h.CreateChat)
		r.Get("/chats/{chatID}", h.GetChat)
		r.Post("/chats/{chatID}/messages", h.AppendMessages)
		r.Get("/tickets", h.ListTickets)
		if h.bot != nil {
			r.Post("/bot", h.Bot)
		}
	})
}

// Identify handles GET /api/ayuda/identificar?email=
func (h *AyudaHandler) Identify(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if strings.TrimSpace(email) == "" {
		h.WriteError(w, r, apperrors.MissingField("email"))
		return
	}

	ident, err := h.chats.Identify(r.Context(), email)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, ident)
}

// CreateChat handles POST /api/ayuda/chats
func (h *AyudaHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	chat, err := h.chats.Create(r.Context(), req.Email, req.Nombre, req.ProyectoID)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusCreated, IDResponse{ID: chat.ID})
}

// GetChat handles GET /api/ayuda/chats/{chatID}
func (h *AyudaHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "chatID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	chat, err := h.chats.Get(r.Context(), id)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusOK, chat)
}

// AppendMessages handles POST /api/ayuda/chats/{chatID}/messages
func (h *AyudaHandler) AppendMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "chatID")
	if err != nil {
		h.WriteError(w, r, err)
		return
	}

	var req AppendMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	if err := h.chats.AppendMessages(r.Context(), id, req.Messages); err != nil {
		h.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTickets handles GET /api/ayuda/tickets?email=
func (h *AyudaHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	refs, err := h.tickets.RefsForEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	if refs == nil {
		refs = []domain.TicketRef{}
	}
	h.WriteJSON(w, r, http.StatusOK, TicketsResponse{Tickets: refs})
}

// Bot handles POST /api/ayuda/bot. Without an event it starts a new
// conversation and returns the greeting.
func (h *AyudaHandler) Bot(w http.ResponseWriter, r *http.Request) {
	var req BotRequest
	if err := decodeJSON(r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	if req.Evento == nil {
		if req.Conversacion != nil {
			h.WriteError(w, r, apperrors.MissingField("evento"))
			return
		}
		conv := h.bot.Start()
		h.WriteJSON(w, r, http.StatusOK, BotResponse{Conversacion: conv, Mensajes: conv.Messages})
		return
	}

	conv, out := h.bot.Step(r.Context(), req.Conversacion, *req.Evento)
	if out == nil {
		out = []domain.ChatMessage{}
	}
	h.WriteJSON(w, r, http.StatusOK, BotResponse{Conversacion: conv, Mensajes: out})
}
