package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/andresdev/backstage/internal/errors"
)

// IdempotencyRepository stores the responses of writes sent with an
// Idempotency-Key.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository creates a new IdempotencyRepository.
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Get returns the stored response for key, or nil when it is unknown or expired.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	var response []byte
	err := r.pool.QueryRow(ctx,
		`SELECT response FROM idempotency_keys WHERE key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.DatabaseError("IdempotencyRepository.Get", err)
	}
	return response, nil
}

// Save stores response for key. An expired row with the same key is replaced;
// a live one is kept so the first response wins.
func (r *IdempotencyRepository) Save(ctx context.Context, key string, response []byte, expiresAt time.Time) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO idempotency_keys (key, response, created_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (key) DO UPDATE
		SET response = EXCLUDED.response,
		    created_at = NOW(),
		    expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= NOW()`

	if _, err := r.pool.Exec(ctx, query, key, response, expiresAt); err != nil {
		return apperrors.DatabaseError("IdempotencyRepository.Save", err)
	}
	return nil
}

// DeleteExpired removes expired rows and returns how many were removed.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, apperrors.DatabaseError("IdempotencyRepository.DeleteExpired", err)
	}
	return tag.RowsAffected(), nil
}
