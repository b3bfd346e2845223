package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChatRepository defines persistence for chat sessions.
type ChatRepository interface {
	// Create inserts a new session.
	Create(ctx context.Context, chat *ChatSession) error

	// GetByID retrieves a session with its full transcript.
	GetByID(ctx context.Context, id uuid.UUID) (*ChatSession, error)

	// AppendMessages adds messages to the end of the transcript.
	AppendMessages(ctx context.Context, id uuid.UUID, messages []ChatMessage, at time.Time) error

	// List returns sessions ordered by most recent activity.
	List(ctx context.Context, limit, offset int) ([]*ChatSummary, error)
}

// TicketRepository defines persistence for support tickets.
type TicketRepository interface {
	// Create inserts the ticket and its first history entry, assigning Numero and SupportID.
	Create(ctx context.Context, ticket *Ticket) error

	// GetByID retrieves a ticket with its history.
	GetByID(ctx context.Context, id uuid.UUID) (*Ticket, error)

	// List retrieves tickets matching the filter, newest first. History is not loaded.
	List(ctx context.Context, filter TicketFilter) ([]*Ticket, error)

	// UpdateState writes the state columns of the ticket.
	UpdateState(ctx context.Context, ticket *Ticket) error

	// UpdatePriority writes the priority of the ticket.
	UpdatePriority(ctx context.Context, id uuid.UUID, priority Priority, at time.Time) error

	// AppendHistory adds one history entry.
	AppendHistory(ctx context.Context, ticketID uuid.UUID, entry HistoryEntry) error
}

// ProjectRepository defines persistence for tenant projects and their contacts.
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) error
	List(ctx context.Context, activeOnly bool) ([]*Project, error)

	// FindContact looks up a contact by normalized email, joined with its project.
	FindContact(ctx context.Context, email string) (*Contact, *Project, error)

	// UpsertContact adds or moves a contact to a project.
	UpsertContact(ctx context.Context, contact *Contact) error

	// DeleteContact removes a contact from a project.
	DeleteContact(ctx context.Context, projectID uuid.UUID, email string) error

	// ListContacts returns the contacts of a project.
	ListContacts(ctx context.Context, projectID uuid.UUID) ([]*Contact, error)
}

// OperatorRepository defines persistence for console operators.
type OperatorRepository interface {
	Create(ctx context.Context, operator *Operator) error
	GetByID(ctx context.Context, id uuid.UUID) (*Operator, error)
	GetByEmail(ctx context.Context, email string) (*Operator, error)
}

// SessionRepository defines persistence for operator sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes sessions that expired before now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ActivityRepository defines persistence for the console activity log.
type ActivityRepository interface {
	Insert(ctx context.Context, entry *ActivityEntry) error
	List(ctx context.Context, limit, offset int) ([]*ActivityEntry, error)
}
