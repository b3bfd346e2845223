// Package validation checks request payloads before they reach the services.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/andresdev/backstage/internal/domain"
	apperrors "github.com/andresdev/backstage/internal/errors"
)

// Field limits shared by the public and console endpoints.
const (
	MaxNameLength        = 120
	MaxTitleLength       = 200
	MaxDescriptionLength = 8000
	MaxMessageLength     = 4000
	MaxMessagesPerAppend = 50
	MaxModuleLength      = 80
)

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// FieldErrors returns errors for a specific field.
func (e ValidationErrors) FieldErrors(field string) ValidationErrors {
	var result ValidationErrors
	for _, err := range e {
		if err.Field == field {
			result = append(result, err)
		}
	}
	return result
}

// Error codes for validation failures.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeTooLong       = "too_long"
	CodeInvalidValue  = "invalid_value"
	CodeMalicious     = "malicious_content"
)

// Validator accumulates field errors.
type Validator struct {
	errors ValidationErrors
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// Errors returns all accumulated validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// IsValid returns true if no validation errors occurred.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Err converts the accumulated errors into a user-facing application error,
// or nil when everything passed.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return apperrors.Wrap(v.errors, "validation", apperrors.CodeValidation, v.errors.Error())
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message, code string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
		Code:    code,
	})
}

// Required validates that a string field is not blank.
func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required", CodeRequired)
		return false
	}
	return true
}

// MaxLength validates that value has at most maxLen runes.
func (v *Validator) MaxLength(field, value string, maxLen int) bool {
	if utf8.RuneCountInString(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", maxLen), CodeTooLong)
		return false
	}
	return true
}

// Email validates an address. Empty values pass; combine with Required.
func (v *Validator) Email(field, value string) bool {
	if value == "" {
		return true
	}
	if !domain.IsValidEmail(strings.TrimSpace(value)) {
		v.AddError(field, "must be a valid email address", CodeInvalidFormat)
		return false
	}
	return true
}

// UUID validates and parses an identifier. Empty values pass.
func (v *Validator) UUID(field, value string) (uuid.UUID, bool) {
	if value == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(value)
	if err != nil {
		v.AddError(field, "must be a valid UUID", CodeInvalidFormat)
		return uuid.Nil, false
	}
	return id, true
}

// URL validates an absolute http(s) URL. Empty values pass.
func (v *Validator) URL(field, value string) bool {
	if value == "" {
		return true
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.AddError(field, "must be an http or https URL", CodeInvalidFormat)
		return false
	}
	return true
}

// OneOf validates that value is one of allowed. Empty values pass.
func (v *Validator) OneOf(field, value string, allowed []string) bool {
	if value == "" {
		return true
	}
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), CodeInvalidValue)
	return false
}

var scriptPattern = regexp.MustCompile(`(?i)<\s*script|javascript:|on\w+\s*=`)

// NoScriptTags rejects values that look like injected markup.
func (v *Validator) NoScriptTags(field, value string) bool {
	if scriptPattern.MatchString(value) {
		v.AddError(field, "contains disallowed content", CodeMalicious)
		return false
	}
	return true
}

// Text applies the usual checks for free text.
func (v *Validator) Text(field, value string, maxLen int, required bool) bool {
	if required && !v.Required(field, value) {
		return false
	}
	return v.MaxLength(field, value, maxLen) && v.NoScriptTags(field, value)
}

// TicketDraft validates a ticket creation payload.
func TicketDraft(d domain.TicketDraft) error {
	v := New()
	v.Text("titulo", d.Titulo, MaxTitleLength, true)
	v.MaxLength("descripcion", d.Descripcion, MaxDescriptionLength)
	v.Text("modulo", d.Modulo, MaxModuleLength, false)
	v.Text("creado_por_nombre", d.CreadoPorNombre, MaxNameLength, false)
	v.Text("proyecto_nombre", d.ProyectoNombre, MaxNameLength, false)
	v.Email("creado_por_email", d.CreadoPorEmail)
	if d.Prioridad != "" && !d.Prioridad.IsValid() {
		v.OneOf("prioridad", string(d.Prioridad), priorityValues())
	}
	return v.Err()
}

// TicketUpdate validates an operator change.
func TicketUpdate(u domain.TicketUpdate) error {
	v := New()
	if u.IsEmpty() {
		v.AddError("estado", "estado or prioridad is required", CodeRequired)
	}
	if u.Estado != nil && !u.Estado.IsValid() {
		v.OneOf("estado", string(*u.Estado), stateValues())
	}
	if u.Prioridad != nil && !u.Prioridad.IsValid() {
		v.OneOf("prioridad", string(*u.Prioridad), priorityValues())
	}
	return v.Err()
}

// Messages validates a transcript append.
func Messages(msgs []domain.ChatMessage) error {
	v := New()
	if len(msgs) == 0 {
		v.AddError("messages", "is required", CodeRequired)
	}
	if len(msgs) > MaxMessagesPerAppend {
		v.AddError("messages", fmt.Sprintf("at most %d messages per request", MaxMessagesPerAppend), CodeTooLong)
	}
	for i, m := range msgs {
		field := fmt.Sprintf("messages[%d]", i)
		v.OneOf(field+".role", string(m.Role), []string{string(domain.RoleUser), string(domain.RoleBot)})
		if m.Role == "" {
			v.AddError(field+".role", "is required", CodeRequired)
		}
		v.MaxLength(field+".text", m.Text, MaxMessageLength)
		if !m.Action.IsValid() {
			v.AddError(field+".action", "unknown action", CodeInvalidValue)
		}
		v.URL(field+".image_url", absoluteOrEmpty(m.ImageURL))
	}
	return v.Err()
}

// Project validates a tenant project payload.
func Project(nombre, apiBaseURL, logoURL string) error {
	v := New()
	v.Text("nombre", nombre, MaxNameLength, true)
	v.URL("api_base_url", apiBaseURL)
	v.URL("logo_url", absoluteOrEmpty(logoURL))
	return v.Err()
}

// Contact validates a contact registration.
func Contact(email, nombre string) error {
	v := New()
	if v.Required("email", email) {
		v.Email("email", email)
	}
	v.Text("nombre", nombre, MaxNameLength, false)
	return v.Err()
}

// absoluteOrEmpty lets site-relative paths such as /uploads/... through URL checks.
func absoluteOrEmpty(s string) string {
	if strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		return ""
	}
	return s
}

func stateValues() []string {
	out := make([]string, len(domain.TicketStates))
	for i, s := range domain.TicketStates {
		out[i] = string(s)
	}
	return out
}

func priorityValues() []string {
	out := make([]string, len(domain.Priorities))
	for i, p := range domain.Priorities {
		out[i] = string(p)
	}
	return out
}
