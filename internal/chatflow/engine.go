package chatflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/validation"
)

// DefaultTypingDelay is the minimum time an identification reply takes.
const DefaultTypingDelay = 1200 * time.Millisecond

// Backend is what the conversation needs from the outside world.
type Backend interface {
	// Identify looks an email up in the tenant directory.
	Identify(ctx context.Context, email string) (domain.Identity, error)
	// CreateSession persists a new chat for the identified user.
	CreateSession(ctx context.Context, ident domain.Identity) (uuid.UUID, error)
	// AppendMessages appends messages to a persisted chat.
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []domain.ChatMessage) error
	// ListTickets returns the user's tickets as quick links.
	ListTickets(ctx context.Context, email string) ([]domain.TicketRef, error)
	// CreateTicket opens a ticket.
	CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.TicketRef, error)
}

// Engine runs a Flow against a Backend.
type Engine struct {
	flow     *Flow
	backend  Backend
	clock    clock.Clock
	minDelay time.Duration
	logger   *zap.Logger
}

// NewEngine creates an Engine. minDelay paces identification replies.
func NewEngine(flow *Flow, backend Backend, clk clock.Clock, minDelay time.Duration, logger *zap.Logger) *Engine {
	if flow == nil {
		flow = NewFlow(nil, Links{})
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		flow:     flow,
		backend:  backend,
		clock:    clk,
		minDelay: minDelay,
		logger:   logger,
	}
}

// Start returns a new conversation with the greeting.
func (e *Engine) Start() *Conversation {
	conv := &Conversation{}
	e.apply(conv, e.flow.Start())
	return conv
}

// Step applies ev, runs any resulting commands and flushes the transcript.
// It returns the messages appended by this step. Backend failures become
// bot messages; Step never fails.
func (e *Engine) Step(ctx context.Context, conv *Conversation, ev Event) []domain.ChatMessage {
	started := e.clock.Now()

	t := e.flow.Reduce(conv.State, ev)
	out := e.apply(conv, t)
	for t.Command != nil {
		res := e.execute(ctx, conv, t.Command, started)
		t = e.flow.Apply(conv.State, res)
		out = append(out, e.apply(conv, t)...)
	}

	e.Flush(ctx, conv)
	return out
}

// Flush persists the messages after the cursor in batches the server
// accepts. It is a no-op when nothing new exists. The cursor advances after
// every stored batch; on failure it stays so the next flush retries.
func (e *Engine) Flush(ctx context.Context, conv *Conversation) {
	if conv.SessionID == nil {
		ident, ok := IdentityOf(conv.State)
		if !ok || !ident.Found {
			return
		}
		e.ensureSession(ctx, conv, ident)
		if conv.SessionID == nil {
			return
		}
	}

	for pending := conv.Pending(); len(pending) > 0; pending = conv.Pending() {
		batch := pending[:min(len(pending), validation.MaxMessagesPerAppend)]
		if err := e.backend.AppendMessages(ctx, *conv.SessionID, batch); err != nil {
			e.logger.Warn("failed to persist chat messages",
				zap.String("session_id", conv.SessionID.String()),
				zap.Int("pending", len(pending)),
				zap.Error(err),
			)
			return
		}
		conv.Flushed += len(batch)
	}
}

func (e *Engine) apply(conv *Conversation, t Transition) []domain.ChatMessage {
	if t.Reset {
		conv.Messages = nil
		conv.SessionID = nil
		conv.Flushed = 0
	}
	conv.State = t.State

	now := e.clock.NowUTC()
	for i := range t.Messages {
		t.Messages[i].CreatedAt = now
		t.Messages[i].Text = truncate(t.Messages[i].Text, validation.MaxMessageLength)
	}
	conv.Messages = append(conv.Messages, t.Messages...)
	return t.Messages
}

func (e *Engine) execute(ctx context.Context, conv *Conversation, cmd Command, started time.Time) Result {
	switch c := cmd.(type) {
	case Identify:
		res := e.identify(ctx, conv, c.Email)
		e.pace(ctx, started)
		return res

	case CreateTicket:
		ref, err := e.backend.CreateTicket(ctx, c.Draft)
		if err != nil {
			e.logger.Warn("failed to create ticket from chat", zap.Error(err))
			return TicketFailed{Err: err}
		}
		return TicketCreated{Ref: ref}
	}
	return nil
}

func (e *Engine) identify(ctx context.Context, conv *Conversation, email string) Result {
	ident, err := e.backend.Identify(ctx, email)
	if err != nil {
		e.logger.Warn("failed to identify chat user", zap.Error(err))
		return IdentifyFailed{Err: err}
	}
	if !ident.Found {
		return Identified{Identity: ident}
	}
	if ident.Email == "" {
		ident.Email = email
	}

	e.ensureSession(ctx, conv, ident)

	tickets, err := e.backend.ListTickets(ctx, ident.Email)
	if err != nil {
		e.logger.Debug("failed to list tickets for chat user", zap.Error(err))
		tickets = nil
	}
	return Identified{Identity: ident, Tickets: tickets}
}

func (e *Engine) ensureSession(ctx context.Context, conv *Conversation, ident domain.Identity) {
	if conv.SessionID != nil {
		return
	}
	id, err := e.backend.CreateSession(ctx, ident)
	if err != nil {
		e.logger.Warn("failed to create chat session", zap.Error(err))
		return
	}
	conv.SessionID = &id
	conv.Flushed = 0
}

// pace waits until minDelay has elapsed since started.
func (e *Engine) pace(ctx context.Context, started time.Time) {
	remaining := e.minDelay - e.clock.Since(started)
	if remaining <= 0 {
		return
	}
	select {
	case <-e.clock.After(remaining):
	case <-ctx.Done():
	}
}
