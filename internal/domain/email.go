package domain

import (
	"regexp"
	"strings"
)

// MaxEmailLength is the longest accepted email address.
const MaxEmailLength = 200

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail checks the local@domain.tld shape and length.
func IsValidEmail(email string) bool {
	if len(email) > MaxEmailLength {
		return false
	}
	return emailPattern.MatchString(email)
}

// NormalizeEmail trims and lowercases an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
