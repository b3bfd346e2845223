package domain

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Operator is a console user.
type Operator struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Nombre       string    `json:"nombre"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewOperator creates an operator with a bcrypt-hashed password.
func NewOperator(email, nombre, password string) (*Operator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Operator{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Nombre:       nombre,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckPassword verifies a password against the stored hash.
func (o *Operator) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) == nil
}

// Session is a server-side operator session addressed by an opaque token.
type Session struct {
	ID         uuid.UUID `json:"id"`
	OperatorID uuid.UUID `json:"operator_id"`
	Token      string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// NewSession creates a session for an operator.
func NewSession(operatorID uuid.UUID, token string, now time.Time, duration time.Duration) *Session {
	return &Session{
		ID:         uuid.New(),
		OperatorID: operatorID,
		Token:      token,
		ExpiresAt:  now.Add(duration),
		CreatedAt:  now,
	}
}

// IsExpiredAt reports whether the session is expired at now.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
