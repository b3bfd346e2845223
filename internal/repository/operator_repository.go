package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// OperatorRepository implements domain.OperatorRepository using PostgreSQL.
type OperatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository creates a new OperatorRepository.
func NewOperatorRepository(pool *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{pool: pool}
}

// Create inserts a new operator.
func (r *OperatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	if err := GuardEmail(op.Email, "email"); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO operators (` + OperatorColumns.Select() + `) VALUES (` + OperatorColumns.Placeholders() + `)`
	_, err := r.pool.Exec(ctx, query,
		op.ID,
		op.Email,
		op.Nombre,
		op.PasswordHash,
		op.CreatedAt,
		op.UpdatedAt,
	)
	return mapError("OperatorRepository.Create", "operator", err)
}

// GetByID retrieves an operator by ID.
func (r *OperatorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Operator, error) {
	return r.getOne(ctx, "OperatorRepository.GetByID", `id = $1`, id)
}

// GetByEmail retrieves an operator by email address.
func (r *OperatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	return r.getOne(ctx, "OperatorRepository.GetByEmail", `email = $1`, domain.NormalizeEmail(email))
}

func (r *OperatorRepository) getOne(ctx context.Context, op, where string, arg any) (*domain.Operator, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + OperatorColumns.Select() + ` FROM operators WHERE ` + where

	o := &domain.Operator{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&o.ID,
		&o.Email,
		&o.Nombre,
		&o.PasswordHash,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(op, "operator", err)
	}
	return o, nil
}

// SessionRepository implements domain.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `INSERT INTO sessions (` + SessionColumns.Select() + `) VALUES (` + SessionColumns.Placeholders() + `)`
	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.OperatorID,
		s.Token,
		s.ExpiresAt,
		s.CreatedAt,
		s.IPAddress,
		s.UserAgent,
	)
	return mapError("SessionRepository.Create", "session", err)
}

// GetByToken retrieves a session by its token, expired or not.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + SessionColumns.Select() + ` FROM sessions WHERE token = $1`

	s := &domain.Session{}
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&s.ID,
		&s.OperatorID,
		&s.Token,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.IPAddress,
		&s.UserAgent,
	)
	if err != nil {
		return nil, mapError("SessionRepository.GetByToken", "session", err)
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown token is not an error.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return mapError("SessionRepository.Delete", "session", err)
}

// DeleteExpired removes sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, apperrors.DatabaseError("SessionRepository.DeleteExpired", err)
	}
	return result.RowsAffected(), nil
}
