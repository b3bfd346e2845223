package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
)

// CreateChatRequest opens a support chat.
type CreateChatRequest struct {
	Email      string     `json:"email"`
	Nombre     string     `json:"nombre"`
	ProyectoID *uuid.UUID `json:"proyecto_id,omitempty"`
}

// IDResponse carries the id of a created resource.
type IDResponse struct {
	ID uuid.UUID `json:"id"`
}

// AppendMessagesRequest appends chat messages.
type AppendMessagesRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// TicketsResponse lists a contact's tickets.
type TicketsResponse struct {
	Tickets []domain.TicketRef `json:"tickets"`
}

// BotRequest advances a server-side conversation by one event.
// A missing conversation starts a new one.
type BotRequest struct {
	Conversacion *chatflow.Conversation `json:"conversacion,omitempty"`
	Evento       *chatflow.Event        `json:"evento,omitempty"`
}

// BotResponse is the conversation after the event plus the new messages.
type BotResponse struct {
	Conversacion *chatflow.Conversation `json:"conversacion"`
	Mensajes     []domain.ChatMessage   `json:"mensajes"`
}

// CreateTicketResponse identifies a new ticket.
type CreateTicketResponse struct {
	ID        uuid.UUID `json:"id"`
	SupportID string    `json:"supportId"`
}

// TicketDetail is a ticket with display labels.
type TicketDetail struct {
	*domain.Ticket
	EstadoLabel    string           `json:"estadoLabel"`
	EstadoColor    string           `json:"estadoColor"`
	PrioridadLabel string           `json:"prioridadLabel"`
	Etapa          int              `json:"etapa"`
	Bloques        []chatflow.Block `json:"bloques"`
	Historial      []HistoryEntry   `json:"historial"`
}

// HistoryEntry is a labelled lifecycle entry.
type HistoryEntry struct {
	domain.HistoryEntry
	EstadoLabel string `json:"estadoLabel"`
}

func newTicketDetail(t *domain.Ticket) TicketDetail {
	hist := make([]HistoryEntry, len(t.Historial))
	for i, h := range t.Historial {
		hist[i] = HistoryEntry{HistoryEntry: h, EstadoLabel: h.Estado.Label()}
	}
	style := t.Estado.Style()
	return TicketDetail{
		Ticket:         t,
		EstadoLabel:    style.Label,
		EstadoColor:    style.Color,
		PrioridadLabel: t.Prioridad.Label(),
		Etapa:          t.Estado.Index(),
		Bloques:        chatflow.ParseDescription(t.Descripcion),
		Historial:      hist,
	}
}

// UploadResponse is the public URL of an uploaded file.
type UploadResponse struct {
	URL string `json:"url"`
}

// QuoteURLResponse points at a saved quote document.
type QuoteURLResponse struct {
	Numero string `json:"numero"`
	PDFURL string `json:"pdfUrl"`
}

// LoginRequest is the console login body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Operador  *domain.Operator `json:"operador"`
}

// ContactRequest adds a contact to a project.
type ContactRequest struct {
	Email  string `json:"email"`
	Nombre string `json:"nombre"`
}

// ProjectDetail is a project with its contacts.
type ProjectDetail struct {
	*domain.Project
	Contactos []*domain.Contact `json:"contactos"`
}

// ListResponse wraps a page of console rows.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}
