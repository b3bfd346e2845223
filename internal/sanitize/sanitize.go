// Package sanitize masks personal data and credentials before they reach
// logs, the activity log or client-facing error text.
package sanitize

import (
	"net/http"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// WhatsApp and landline numbers as users paste them into chats.
	phonePattern = regexp.MustCompile(`\+?\d{2,4}(?:[\s-]?\d{3,4}){2,3}`)

	secretPattern = regexp.MustCompile(`(?i)(x-andres-api-key|api[_-]?key|secret|token|password|contraseña)([=:\s"']+)([\w.-]{8,})`)

	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[\w.-]+`)
)

// Options selects what a Sanitizer masks.
type Options struct {
	Emails  bool
	Phones  bool
	Secrets bool
}

// DefaultOptions masks everything.
func DefaultOptions() Options {
	return Options{Emails: true, Phones: true, Secrets: true}
}

type rule struct {
	pattern *regexp.Regexp
	mask    func(string) string
}

// Sanitizer applies a fixed set of masking rules.
type Sanitizer struct {
	rules []rule
}

// New creates a Sanitizer for opts.
func New(opts Options) *Sanitizer {
	s := &Sanitizer{}
	// Secrets first so a token that looks like a phone number is fully hidden.
	if opts.Secrets {
		s.rules = append(s.rules,
			rule{pattern: secretPattern, mask: maskSecret},
			rule{pattern: bearerPattern, mask: func(string) string { return "Bearer " + redacted }},
		)
	}
	if opts.Emails {
		s.rules = append(s.rules, rule{pattern: emailPattern, mask: Email})
	}
	if opts.Phones {
		s.rules = append(s.rules, rule{pattern: phonePattern, mask: Phone})
	}
	return s
}

// NewDefault creates a Sanitizer with DefaultOptions.
func NewDefault() *Sanitizer {
	return New(DefaultOptions())
}

// Text masks every sensitive substring of input.
func (s *Sanitizer) Text(input string) string {
	out := input
	for _, r := range s.rules {
		out = r.pattern.ReplaceAllStringFunc(out, r.mask)
	}
	return out
}

// Error masks an error message. A nil error yields "".
func (s *Sanitizer) Error(err error) string {
	if err == nil {
		return ""
	}
	return s.Text(err.Error())
}

// Fields returns a copy of fields with sensitive keys redacted and string
// values masked. Nested maps are handled recursively.
func (s *Sanitizer) Fields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			if isSensitiveKey(k) {
				out[k] = redacted
			} else {
				out[k] = s.Text(val)
			}
		case map[string]any:
			out[k] = s.Fields(val)
		default:
			out[k] = v
		}
	}
	return out
}

// Headers returns a copy of h with credential headers redacted.
func (s *Sanitizer) Headers(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vals := range h {
		if isSensitiveHeader(k) {
			out[k] = []string{redacted}
			continue
		}
		masked := make([]string, len(vals))
		for i, v := range vals {
			masked[i] = s.Text(v)
		}
		out[k] = masked
	}
	return out
}

// Email masks the local part of an address: "maria@tienda.com" becomes "ma***@tienda.com".
func Email(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "[email]"
	}
	if at <= 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}

// Phone keeps the first three and last two digits.
func Phone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, phone)
	if len(digits) <= 5 {
		return "****"
	}
	return digits[:3] + strings.Repeat("*", len(digits)-5) + digits[len(digits)-2:]
}

// Token shows only the ends of a credential.
func Token(token string) string {
	if len(token) <= 8 {
		return redacted
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// ID masks the middle of an identifier.
func ID(id string) string {
	return PartialMask(id, 4, 4)
}

// PartialMask masks s except for its first keepStart and last keepEnd bytes.
func PartialMask(s string, keepStart, keepEnd int) string {
	if len(s) <= keepStart+keepEnd {
		return strings.Repeat("*", len(s))
	}
	return s[:keepStart] + strings.Repeat("*", len(s)-keepStart-keepEnd) + s[len(s)-keepEnd:]
}

func maskSecret(match string) string {
	parts := secretPattern.FindStringSubmatch(match)
	if len(parts) != 4 {
		return redacted
	}
	return parts[1] + parts[2] + redacted
}

var sensitiveKeys = []string{
	"password", "contraseña", "secret", "token",
	"api_key", "apikey", "api-key", "authorization",
	"cookie", "session",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func isSensitiveHeader(header string) bool {
	switch strings.ToLower(header) {
	case "authorization", "proxy-authorization", "cookie", "set-cookie", "x-andres-api-key", "x-api-key":
		return true
	}
	return false
}
