package repository

import (
	"strings"

	"github.com/google/uuid"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// Pagination bounds for list queries.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// NormalizePagination clamps limit and offset to safe values.
func NormalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GuardUUID rejects the zero UUID.
func GuardUUID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return apperrors.MissingField(field)
	}
	return nil
}

// GuardString rejects blank strings.
func GuardString(s, field string) error {
	if strings.TrimSpace(s) == "" {
		return apperrors.MissingField(field)
	}
	return nil
}

// GuardEmail rejects blank or malformed addresses.
func GuardEmail(email, field string) error {
	if strings.TrimSpace(email) == "" {
		return apperrors.MissingField(field)
	}
	if !domain.IsValidEmail(strings.TrimSpace(email)) {
		return apperrors.InvalidFormat(field, "valid email address")
	}
	return nil
}
