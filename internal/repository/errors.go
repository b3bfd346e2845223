package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/andresdev/backstage/internal/errors"
)

// Query timeouts.
const (
	// DefaultQueryTimeout bounds single-row reads.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultListQueryTimeout bounds list and paginated reads.
	DefaultListQueryTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds INSERT, UPDATE and DELETE.
	DefaultWriteTimeout = 10 * time.Second
)

const uniqueViolation = "23505"

// WithQueryTimeout returns a context bounded by DefaultQueryTimeout.
// A shorter existing deadline is kept.
func WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultQueryTimeout)
}

// WithListQueryTimeout returns a context bounded by DefaultListQueryTimeout.
func WithListQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultListQueryTimeout)
}

// WithWriteTimeout returns a context bounded by DefaultWriteTimeout.
func WithWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, DefaultWriteTimeout)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// mapError translates driver errors into application errors.
// resource names the entity in not-found and conflict messages.
func mapError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound(resource)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.Wrap(err, op, apperrors.CodeConflict, resource+" already exists")
	}
	return apperrors.DatabaseError(op, err)
}
