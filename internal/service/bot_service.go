package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/chatflow"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	"github.com/andresdev/backstage/internal/metrics"
)

// BotService runs Andrebot conversations on the server. The client keeps
// the conversation and sends it back with every event.
type BotService struct {
	engine  *chatflow.Engine
	metrics *metrics.Metrics
}

// NewBotService wires a chatflow engine to the chat and ticket services.
func NewBotService(
	flow *chatflow.Flow,
	chats *ChatService,
	tickets *TicketService,
	clk clock.Clock,
	typingDelay time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BotService {
	backend := &botBackend{chats: chats, tickets: tickets}
	return &BotService{
		engine:  chatflow.NewEngine(flow, backend, clk, typingDelay, logger.Named("chatflow")),
		metrics: m,
	}
}

// Start opens a conversation with the greeting.
func (s *BotService) Start() *chatflow.Conversation {
	conv := s.engine.Start()
	s.metrics.RecordBotStep(conv.State.Name())
	return conv
}

// Step applies ev to conv and returns the messages it produced.
// A nil conv starts a new conversation first.
func (s *BotService) Step(ctx context.Context, conv *chatflow.Conversation, ev chatflow.Event) (*chatflow.Conversation, []domain.ChatMessage) {
	if conv == nil {
		conv = s.engine.Start()
	}
	out := s.engine.Step(ctx, conv, ev)
	s.metrics.RecordBotStep(conv.State.Name())
	return conv, out
}

// botBackend adapts the services to chatflow.Backend.
type botBackend struct {
	chats   *ChatService
	tickets *TicketService
}

func (b *botBackend) Identify(ctx context.Context, email string) (domain.Identity, error) {
	return b.chats.Identify(ctx, email)
}

func (b *botBackend) CreateSession(ctx context.Context, ident domain.Identity) (uuid.UUID, error) {
	chat, err := b.chats.Create(ctx, ident.Email, ident.Nombre, ident.ProyectoID)
	if err != nil {
		return uuid.Nil, err
	}
	return chat.ID, nil
}

func (b *botBackend) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []domain.ChatMessage) error {
	return b.chats.AppendMessages(ctx, sessionID, messages)
}

func (b *botBackend) ListTickets(ctx context.Context, email string) ([]domain.TicketRef, error) {
	return b.tickets.RefsForEmail(ctx, email)
}

func (b *botBackend) CreateTicket(ctx context.Context, draft domain.TicketDraft) (domain.TicketRef, error) {
	t, err := b.tickets.Create(ctx, draft)
	if err != nil {
		return domain.TicketRef{}, err
	}
	return t.Ref(), nil
}
