package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// SessionValidator resolves an opaque session token to its operator.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*domain.Operator, error)
}

type operatorKey struct{}

type tokenKey struct{}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (*domain.Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(*domain.Operator)
	return op, ok && op != nil
}

// TokenFromContext returns the session token the request authenticated with.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// WithOperator returns a copy of ctx carrying op and its token.
func WithOperator(ctx context.Context, op *domain.Operator, token string) context.Context {
	ctx = context.WithValue(ctx, operatorKey{}, op)
	return context.WithValue(ctx, tokenKey{}, token)
}

// SessionAuth guards console routes with a server-verified session.
type SessionAuth struct {
	validator  SessionValidator
	cookieName string
	logger     *zap.Logger

	// OnDenied is called, if set, for every rejected request.
	OnDenied func(r *http.Request, reason string)
}

// NewSessionAuth creates a SessionAuth reading the token from a bearer
// header or from cookieName.
func NewSessionAuth(validator SessionValidator, cookieName string, logger *zap.Logger) *SessionAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAuth{validator: validator, cookieName: cookieName, logger: logger}
}

// Middleware rejects requests without a valid session with 401.
func (a *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.Token(r)
		if token == "" {
			a.deny(w, r, "missing session", apperrors.ErrUnauthorized)
			return
		}

		op, err := a.validator.ValidateSession(r.Context(), token)
		if err != nil {
			if apperrors.IsUserError(err) {
				a.deny(w, r, "invalid session", err)
				return
			}
			LoggerWithCorrelation(r.Context(), a.logger).Error("session validation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op, token)))
	})
}

// Token extracts the session token from the request.
func (a *SessionAuth) Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if a.cookieName != "" {
		if c, err := r.Cookie(a.cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

func (a *SessionAuth) deny(w http.ResponseWriter, r *http.Request, reason string, err error) {
	LoggerWithCorrelation(r.Context(), a.logger).Debug("console access denied",
		zap.String("reason", reason),
		zap.String("path", r.URL.Path),
	)
	if a.OnDenied != nil {
		a.OnDenied(r, reason)
	}
	writeError(w, apperrors.GetHTTPStatus(err), apperrors.PublicMessage(err))
}
