package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/sanitize"
)

// tokenLength is the length of session tokens in bytes.
const tokenLength = 32

// MinPasswordLength is the shortest accepted operator password.
const MinPasswordLength = 10

// AuthService handles operator login and server-side sessions.
type AuthService struct {
	operators       domain.OperatorRepository
	sessions        domain.SessionRepository
	sessionDuration time.Duration
	clock           clock.Clock
	audit           *audit.Logger
	metrics         *metrics.Metrics
	events          *metrics.EventLogger
	logger          *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	operators domain.OperatorRepository,
	sessions domain.SessionRepository,
	sessionDuration time.Duration,
	clk clock.Clock,
	auditLogger *audit.Logger,
	m *metrics.Metrics,
	events *metrics.EventLogger,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		operators:       operators,
		sessions:        sessions,
		sessionDuration: sessionDuration,
		clock:           clk,
		audit:           auditLogger,
		metrics:         m,
		events:          events,
		logger:          logger,
	}
}

// LoginContext holds request details recorded with a login.
type LoginContext struct {
	IPAddress string
	UserAgent string
	RequestID string
}

func (lc LoginContext) actor(email string, op *domain.Operator) audit.Actor {
	a := audit.Actor{Email: email, IP: lc.IPAddress, UserAgent: lc.UserAgent, RequestID: lc.RequestID}
	if op != nil {
		a.ID = op.ID.String()
		a.Email = op.Email
	}
	return a
}

// Login verifies the credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string, lc LoginContext) (*domain.Session, *domain.Operator, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	op, err := s.operators.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.loginFailed(ctx, email, lc, "unknown operator")
			return nil, nil, apperrors.ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to get operator: %w", err)
	}

	if !op.CheckPassword(password) {
		s.loginFailed(ctx, email, lc, "invalid password")
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := domain.NewSession(op.ID, token, s.clock.NowUTC(), s.sessionDuration)
	session.IPAddress = lc.IPAddress
	session.UserAgent = lc.UserAgent
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordAuthAttempt(true)
	s.metrics.RecordSessionCreated()
	s.events.OperatorLogin(ctx, op.ID, op.Email, lc.IPAddress, true)
	s.audit.LoginSuccess(ctx, lc.actor(email, op))

	s.logger.Info("operator logged in",
		zap.String("operator_id", op.ID.String()),
		zap.String("email", sanitize.Email(op.Email)),
	)
	return session, op, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string, lc LoginContext, reason string) {
	s.metrics.RecordAuthAttempt(false)
	s.events.OperatorLogin(ctx, uuid.Nil, email, lc.IPAddress, false)
	s.audit.LoginFailure(ctx, lc.actor(email, nil), reason)
	s.logger.Warn("login failed",
		zap.String("email", sanitize.Email(email)),
		zap.String("reason", reason),
	)
}

// Logout deletes the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string, op *domain.Operator, lc LoginContext) error {
	if err := s.sessions.Delete(ctx, token); err != nil && !apperrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if op != nil {
		s.events.OperatorLogout(ctx, op.ID, op.Email)
		s.audit.Logout(ctx, lc.actor(op.Email, op))
	}
	return nil
}

// ValidateSession returns the operator owning a live session.
// Expired sessions are deleted on sight.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.Operator, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.IsExpiredAt(s.clock.NowUTC()) {
		if err := s.sessions.Delete(ctx, token); err != nil && !apperrors.IsNotFound(err) {
			s.logger.Warn("failed to delete expired session", zap.Error(err))
		}
		return nil, apperrors.ErrSessionExpired
	}

	op, err := s.operators.GetByID(ctx, session.OperatorID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return op, nil
}

// CreateOperator registers a console operator.
func (s *AuthService) CreateOperator(ctx context.Context, email, nombre, password string) (*domain.Operator, error) {
	if !domain.IsValidEmail(domain.NormalizeEmail(email)) {
		return nil, apperrors.InvalidFormat("email", "a valid email address")
	}
	if len(password) < MinPasswordLength {
		return nil, apperrors.ValidationFailed(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	op, err := domain.NewOperator(email, nombre, password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.operators.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to save operator: %w", err)
	}

	s.logger.Info("operator created",
		zap.String("operator_id", op.ID.String()),
		zap.String("email", sanitize.Email(op.Email)),
	)
	return op, nil
}

// CleanupExpiredSessions removes expired sessions and reports how many.
func (s *AuthService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.NowUTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if n > 0 {
		s.metrics.RecordSessionsExpired(n)
		s.audit.SessionsExpired(ctx, n)
	}
	return n, nil
}

// RunSessionSweeper calls CleanupExpiredSessions every interval until ctx is done.
func (s *AuthService) RunSessionSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpiredSessions(ctx); err != nil {
				s.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}

// generateToken generates a cryptographically secure random token.
func generateToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
