package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/backstage"
	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/quote"
	"github.com/andresdev/backstage/internal/service"
	"github.com/andresdev/backstage/internal/storage"
)

// ChatService manages support chat transcripts.
type ChatService interface {
	Identify(ctx context.Context, email string) (domain.Identity, error)
	Create(ctx context.Context, email, nombre string, proyectoID *uuid.UUID) (*domain.ChatSession, error)
	AppendMessages(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error)
	List(ctx context.Context, limit, offset int) ([]*domain.ChatSummary, error)
}

// TicketService manages support tickets.
type TicketService interface {
	Create(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error)
	RefsForEmail(ctx context.Context, email string) ([]domain.TicketRef, error)
	Update(ctx context.Context, id uuid.UUID, upd domain.TicketUpdate, actor audit.Actor) (*domain.Ticket, error)
}

// BotService runs the Andrebot conversation server side.
type BotService interface {
	Start() *chatflow.Conversation
	Step(ctx context.Context, conv *chatflow.Conversation, ev chatflow.Event) (*chatflow.Conversation, []domain.ChatMessage)
}

// QuoteService prices selections and renders quote documents.
type QuoteService interface {
	Catalog() *quote.Catalog
	Calculate(sel quote.Selection) (*quote.Breakdown, error)
	Generate(ctx context.Context, req service.QuoteRequest, actor audit.Actor) (*service.QuoteDocument, error)
}

// UploadService stores support screenshots.
type UploadService interface {
	UploadImage(ctx context.Context, r io.Reader) (*storage.Object, error)
}

// AuthService opens and closes operator sessions.
type AuthService interface {
	Login(ctx context.Context, email, password string, lc service.LoginContext) (*domain.Session, *domain.Operator, error)
	Logout(ctx context.Context, token string, op *domain.Operator, lc service.LoginContext) error
}

// ProjectService manages the tenant directory.
type ProjectService interface {
	Create(ctx context.Context, in service.ProjectInput, actor audit.Actor) (*domain.Project, error)
	Update(ctx context.Context, id uuid.UUID, in service.ProjectInput, actor audit.Actor) (*domain.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Project, error)
	AddContact(ctx context.Context, projectID uuid.UUID, email, nombre string, actor audit.Actor) (*domain.Contact, error)
	RemoveContact(ctx context.Context, projectID uuid.UUID, email string, actor audit.Actor) error
	ListContacts(ctx context.Context, projectID uuid.UUID) ([]*domain.Contact, error)
}

// ActivityService reads the local activity log.
type ActivityService interface {
	List(ctx context.Context, limit, offset int) ([]*domain.ActivityEntry, error)
}

// IdempotencyStore keeps the responses of writes that carry an
// Idempotency-Key. Get returns nil for unknown or expired keys.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, response []byte, expiresAt time.Time) error
}

// TenantFanOut queries every tenant deployment.
type TenantFanOut interface {
	FanOut(ctx context.Context, projects []*domain.Project, path string, query url.Values) (*backstage.Aggregate, error)
}

// Handler groups the API handlers behind one route table.
type Handler struct {
	Ayuda   *AyudaHandler
	Tickets *TicketHandler
	Quotes  *QuoteHandler
	Uploads *UploadHandler
	Console *ConsoleHandler
	Health  *HealthHandler
}

// RegisterRoutes registers all API routes on r. requireOperator guards the
// console routes.
func (h *Handler) RegisterRoutes(r chi.Router, requireOperator func(http.Handler) http.Handler) {
	if h.Health != nil {
		h.Health.RegisterRoutes(r)
	}

	r.Route("/api", func(r chi.Router) {
		if h.Ayuda != nil {
			h.Ayuda.RegisterRoutes(r)
		}
		if h.Tickets != nil {
			h.Tickets.RegisterRoutes(r, requireOperator)
		}
		if h.Quotes != nil {
			h.Quotes.RegisterRoutes(r)
		}
		if h.Uploads != nil {
			h.Uploads.RegisterRoutes(r)
		}
		if h.Console != nil {
			h.Console.RegisterRoutes(r, requireOperator)
		}
	})

	if h.Uploads != nil {
		h.Uploads.RegisterFileServer(r)
	}
}
