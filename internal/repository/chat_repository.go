package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresdev/backstage/internal/database"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// ChatRepository implements domain.ChatRepository using PostgreSQL.
// Transcripts live in a JSONB array that only ever grows.
type ChatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

// Create inserts a new session.
func (r *ChatRepository) Create(ctx context.Context, chat *domain.ChatSession) error {
	if err := GuardEmail(chat.CreadoPorEmail, "email"); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	messages := chat.Messages
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `INSERT INTO chats (` + ChatColumns.Select() + `) VALUES (` + ChatColumns.Placeholders() + `)`
	_, err = database.QuerierFrom(ctx, r.pool).Exec(ctx, query,
		chat.ID,
		chat.ProyectoID,
		chat.CreadoPorEmail,
		chat.CreadoPorNombre,
		data,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	return mapError("ChatRepository.Create", "chat", err)
}

// GetByID retrieves a session with its full transcript.
func (r *ChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ChatColumns.Select() + ` FROM chats WHERE id = $1`

	chat := &domain.ChatSession{}
	var data []byte
	err := database.QuerierFrom(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&chat.ID,
		&chat.ProyectoID,
		&chat.CreadoPorEmail,
		&chat.CreadoPorNombre,
		&data,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		return nil, mapError("ChatRepository.GetByID", "chat", err)
	}

	if err := json.Unmarshal(data, &chat.Messages); err != nil {
		return nil, apperrors.DatabaseError("ChatRepository.GetByID", fmt.Errorf("failed to unmarshal messages: %w", err))
	}
	if chat.Messages == nil {
		chat.Messages = []domain.ChatMessage{}
	}
	return chat, nil
}

// AppendMessages concatenates messages to the stored array in one statement,
// so concurrent appends never drop each other's entries.
func (r *ChatRepository) AppendMessages(ctx context.Context, id uuid.UUID, messages []domain.ChatMessage, at time.Time) error {
	if len(messages) == 0 {
		return nil
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
		UPDATE chats SET
			messages = messages || $2::jsonb,
			updated_at = $3
		WHERE id = $1`

	result, err := database.QuerierFrom(ctx, r.pool).Exec(ctx, query, id, data, at)
	if err != nil {
		return mapError("ChatRepository.AppendMessages", "chat", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NotFound("chat")
	}
	return nil
}

// List returns sessions ordered by most recent activity.
func (r *ChatRepository) List(ctx context.Context, limit, offset int) ([]*domain.ChatSummary, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	limit, offset = NormalizePagination(limit, offset)

	query := `
		SELECT id, proyecto_id, creado_por_email, creado_por_nombre,
			jsonb_array_length(messages), created_at, updated_at
		FROM chats
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := database.QuerierFrom(ctx, r.pool).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, mapError("ChatRepository.List", "chat", err)
	}
	defer rows.Close()

	chats := make([]*domain.ChatSummary, 0)
	for rows.Next() {
		c := &domain.ChatSummary{}
		if err := rows.Scan(
			&c.ID,
			&c.ProyectoID,
			&c.CreadoPorEmail,
			&c.CreadoPorNombre,
			&c.MessageCount,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, apperrors.DatabaseError("ChatRepository.List", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("ChatRepository.List", err)
	}
	return chats, nil
}
