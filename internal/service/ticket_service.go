package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/validation"
)

// maxRefs bounds the quick links shown in the chat.
const maxRefs = 5

// TicketService manages the support ticket lifecycle.
type TicketService struct {
	tickets domain.TicketRepository
	tx      TxRunner
	clock   clock.Clock
	audit   *audit.Logger
	metrics *metrics.Metrics
	events  *metrics.EventLogger
	logger  *zap.Logger
}

// NewTicketService creates a new TicketService.
func NewTicketService(
	tickets domain.TicketRepository,
	tx TxRunner,
	clk clock.Clock,
	auditLogger *audit.Logger,
	m *metrics.Metrics,
	events *metrics.EventLogger,
	logger *zap.Logger,
) *TicketService {
	if tx == nil {
		tx = NoTx{}
	}
	return &TicketService{
		tickets: tickets,
		tx:      tx,
		clock:   clk,
		audit:   auditLogger,
		metrics: m,
		events:  events,
		logger:  logger,
	}
}

// Create opens a ticket in the initial state. The repository assigns the
// sequence number and support code; the ticket row and its first history
// entry are written in one transaction.
func (s *TicketService) Create(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	if err := validation.TicketDraft(draft); err != nil {
		return nil, err
	}

	t := domain.NewTicket(draft, s.clock.NowUTC())
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.tickets.Create(ctx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	s.metrics.RecordTicketCreated(string(t.Prioridad))
	s.events.TicketCreated(ctx, t)
	return t, nil
}

// Get returns a ticket with its history.
func (s *TicketService) Get(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// List returns tickets matching filter, newest first.
func (s *TicketService) List(ctx context.Context, filter domain.TicketFilter) ([]*domain.Ticket, error) {
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// RefsForEmail returns the requester's most recent tickets as quick links.
func (s *TicketService) RefsForEmail(ctx context.Context, email string) ([]domain.TicketRef, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return []domain.TicketRef{}, nil
	}

	tickets, err := s.List(ctx, domain.TicketFilter{Email: email, Limit: maxRefs})
	if err != nil {
		return nil, err
	}
	refs := make([]domain.TicketRef, 0, len(tickets))
	for _, t := range tickets {
		refs = append(refs, t.Ref())
	}
	return refs, nil
}

// Update applies an operator change. Any state may follow any other; the
// state change and its history entry are written in one transaction.
// Setting the current state again records nothing.
func (s *TicketService) Update(ctx context.Context, id uuid.UUID, upd domain.TicketUpdate, actor audit.Actor) (*domain.Ticket, error) {
	if err := validation.TicketUpdate(upd); err != nil {
		return nil, err
	}

	var (
		t             *domain.Ticket
		fromState     domain.TicketState
		fromPriority  domain.Priority
		stateMoved    bool
		priorityMoved bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		fromState, fromPriority = t.Estado, t.Prioridad
		now := s.clock.NowUTC()

		if upd.Estado != nil && t.SetState(*upd.Estado, actor.Email, now) {
			stateMoved = true
			if err := s.tickets.UpdateState(ctx, t); err != nil {
				return err
			}
			if err := s.tickets.AppendHistory(ctx, t.ID, t.Historial[len(t.Historial)-1]); err != nil {
				return err
			}
		}

		if upd.Prioridad != nil && *upd.Prioridad != t.Prioridad {
			priorityMoved = true
			t.Prioridad = *upd.Prioridad
			t.UpdatedAt = now
			if err := s.tickets.UpdatePriority(ctx, t.ID, t.Prioridad, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	if stateMoved {
		s.metrics.RecordTicketStateChange(string(t.Estado))
		s.events.TicketStateChanged(ctx, t, fromState, actor.Email)
		s.audit.TicketStateChanged(ctx, actor, t, fromState)
	}
	if priorityMoved {
		s.audit.TicketPriorityChanged(ctx, actor, t, fromPriority)
	}
	if !stateMoved && !priorityMoved {
		s.logger.Debug("ticket update changed nothing", zap.String("ticket_id", id.String()))
	}
	return t, nil
}

// SetState moves a ticket to state.
func (s *TicketService) SetState(ctx context.Context, id uuid.UUID, state domain.TicketState, actor audit.Actor) (*domain.Ticket, error) {
	return s.Update(ctx, id, domain.TicketUpdate{Estado: &state}, actor)
}

// SetPriority changes a ticket's priority.
func (s *TicketService) SetPriority(ctx context.Context, id uuid.UUID, p domain.Priority, actor audit.Actor) (*domain.Ticket, error) {
	return s.Update(ctx, id, domain.TicketUpdate{Prioridad: &p}, actor)
}
