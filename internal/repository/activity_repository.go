package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// ActivityRepository implements domain.ActivityRepository using PostgreSQL.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Insert appends an entry and fills in its ID.
func (r *ActivityRepository) Insert(ctx context.Context, e *domain.ActivityEntry) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	detalle := e.Detalle
	if detalle == nil {
		detalle = map[string]any{}
	}
	data, err := json.Marshal(detalle)
	if err != nil {
		return fmt.Errorf("failed to marshal detail: %w", err)
	}

	cols := ActivityColumns.Without("id")
	query := `INSERT INTO actividad (` + cols.Select() + `) VALUES (` + cols.Placeholders() + `) RETURNING id`

	err = r.pool.QueryRow(ctx, query,
		e.Tipo,
		e.Actor,
		e.Recurso,
		e.RecursoID,
		e.Resultado,
		data,
		e.IPAddress,
		e.RequestID,
		e.CreatedAt,
	).Scan(&e.ID)
	return mapError("ActivityRepository.Insert", "activity", err)
}

// List returns entries newest first.
func (r *ActivityRepository) List(ctx context.Context, limit, offset int) ([]*domain.ActivityEntry, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	limit, offset = NormalizePagination(limit, offset)
	query := `SELECT ` + ActivityColumns.Select() + ` FROM actividad ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, mapError("ActivityRepository.List", "activity", err)
	}
	defer rows.Close()

	entries := make([]*domain.ActivityEntry, 0)
	for rows.Next() {
		e := &domain.ActivityEntry{}
		var data []byte
		if err := rows.Scan(
			&e.ID,
			&e.Tipo,
			&e.Actor,
			&e.Recurso,
			&e.RecursoID,
			&e.Resultado,
			&data,
			&e.IPAddress,
			&e.RequestID,
			&e.CreatedAt,
		); err != nil {
			return nil, apperrors.DatabaseError("ActivityRepository.List", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Detalle); err != nil {
				return nil, apperrors.DatabaseError("ActivityRepository.List", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("ActivityRepository.List", err)
	}
	return entries, nil
}
