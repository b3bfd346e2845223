package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/repository"
	"github.com/andresdev/backstage/internal/sanitize"
	"github.com/andresdev/backstage/internal/validation"
)

// ChatService manages persisted Andrebot transcripts and the tenant
// directory lookup that precedes them.
type ChatService struct {
	chats    domain.ChatRepository
	projects domain.ProjectRepository
	clock    clock.Clock
	metrics  *metrics.Metrics
	events   *metrics.EventLogger
	logger   *zap.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(
	chats domain.ChatRepository,
	projects domain.ProjectRepository,
	clk clock.Clock,
	m *metrics.Metrics,
	events *metrics.EventLogger,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		chats:    chats,
		projects: projects,
		clock:    clk,
		metrics:  m,
		events:   events,
		logger:   logger,
	}
}

// Identify looks an email up in the tenant directory. An unknown email is
// not an error; it yields Identity{Found: false}.
func (s *ChatService) Identify(ctx context.Context, email string) (domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return domain.Identity{}, apperrors.InvalidFormat("email", "a valid email address")
	}

	contact, project, err := s.projects.FindContact(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Debug("email not in directory", zap.String("email", sanitize.Email(email)))
			return domain.Identity{Found: false, Email: email}, nil
		}
		return domain.Identity{}, fmt.Errorf("failed to look up contact: %w", err)
	}

	ident := domain.Identity{Found: true, Email: email, Nombre: contact.Nombre}
	if project != nil {
		id := project.ID
		ident.ProyectoID = &id
		ident.ProyectoNombre = project.Nombre
		ident.LogoURL = project.LogoURL
	}
	return ident, nil
}

// Create opens an empty chat session for an identified user.
func (s *ChatService) Create(ctx context.Context, email, nombre string, proyectoID *uuid.UUID) (*domain.ChatSession, error) {
	if err := validation.Contact(email, nombre); err != nil {
		return nil, err
	}

	chat := domain.NewChatSession(email, nombre, proyectoID, s.clock.NowUTC())
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	proyecto := ""
	if proyectoID != nil {
		proyecto = proyectoID.String()
	}
	s.metrics.RecordChatCreated()
	s.events.ChatStarted(ctx, chat.ID, chat.CreadoPorEmail, proyecto)
	return chat, nil
}

// AppendMessages adds messages to the end of a transcript. Messages without
// a timestamp are stamped with the current time.
func (s *ChatService) AppendMessages(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage) error {
	if err := validation.Messages(messages); err != nil {
		return err
	}

	now := s.clock.NowUTC()
	out := make([]domain.ChatMessage, len(messages))
	counts := make(map[domain.Role]int, 2)
	for i, m := range messages {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		out[i] = m
		counts[m.Role]++
	}

	if err := s.chats.AppendMessages(ctx, id, out, now); err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	for role, n := range counts {
		s.metrics.RecordMessagesAppended(string(role), n)
	}
	return nil
}

// Get returns a chat with its full transcript.
func (s *ChatService) Get(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	chat, err := s.chats.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// List returns chat summaries, most recent first.
func (s *ChatService) List(ctx context.Context, limit, offset int) ([]*domain.ChatSummary, error) {
	limit, offset = repository.NormalizePagination(limit, offset)
	chats, err := s.chats.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}
