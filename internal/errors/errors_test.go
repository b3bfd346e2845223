package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "simple message",
			err:      New(CodeNotFound, "ticket not found"),
			expected: "ticket not found",
		},
		{
			name:     "with operation",
			err:      &Error{Code: CodeNotFound, Message: "ticket not found", Op: "tickets.Get"},
			expected: "tickets.Get: ticket not found",
		},
		{
			name:     "with underlying error",
			err:      &Error{Code: CodeDatabase, Message: "query failed", Err: errors.New("connection refused")},
			expected: "query failed: connection refused",
		},
		{
			name: "with operation and underlying error",
			err: &Error{
				Code:    CodeDatabase,
				Message: "query failed",
				Op:      "chats.Append",
				Err:     errors.New("connection refused"),
			},
			expected: "chats.Append: query failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("root cause")
	err := Wrap(underlying, "op", CodeInternal, "wrapped")

	if !errors.Is(err, underlying) {
		t.Error("Unwrap should allow errors.Is to find underlying error")
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeNotFound, "resource not found")
	err2 := New(CodeNotFound, "different message")
	err3 := New(CodeUnauthorized, "not authorized")

	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match")
	}
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code     Code
		expected int
	}{
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeSessionExpired, http.StatusUnauthorized},
		{CodeValidation, http.StatusBadRequest},
		{CodeMissingField, http.StatusBadRequest},
		{CodeInvalidFormat, http.StatusBadRequest},
		{CodeUnknownItem, http.StatusBadRequest},
		{CodeTooLarge, http.StatusRequestEntityTooLarge},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeUpstream, http.StatusBadGateway},
		{CodeCircuitOpen, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{CodeDatabase, http.StatusInternalServerError},
		{CodeRender, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			if got := err.HTTPStatus(); got != tt.expected {
				t.Errorf("HTTPStatus() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestError_IsRetriable(t *testing.T) {
	tests := []struct {
		code      Code
		retriable bool
	}{
		{CodeTimeout, true},
		{CodeRateLimited, true},
		{CodeUpstream, true},
		{CodeCircuitOpen, true},
		{CodeValidation, false},
		{CodeNotFound, false},
		{CodeDatabase, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").IsRetriable(); got != tt.retriable {
				t.Errorf("IsRetriable() = %v, expected %v", got, tt.retriable)
			}
		})
	}
}

func TestWrapWithOp(t *testing.T) {
	t.Run("preserves app error code", func(t *testing.T) {
		wrapped := WrapWithOp(NotFound("ticket"), "tickets.Get")
		if wrapped.Code != CodeNotFound {
			t.Errorf("Code = %s, expected %s", wrapped.Code, CodeNotFound)
		}
		if wrapped.Op != "tickets.Get" {
			t.Errorf("Op = %q", wrapped.Op)
		}
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		wrapped := WrapWithOp(errors.New("boom"), "quote.Render")
		if wrapped.Code != CodeInternal {
			t.Errorf("Code = %s, expected %s", wrapped.Code, CodeInternal)
		}
		if wrapped.Kind != KindSystem {
			t.Errorf("Kind = %v, expected KindSystem", wrapped.Kind)
		}
	})
}

func TestHelpers(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", UnknownItem("module", "crm2"))

	if GetCode(wrapped) != CodeUnknownItem {
		t.Errorf("GetCode() = %s", GetCode(wrapped))
	}
	if GetHTTPStatus(wrapped) != http.StatusBadRequest {
		t.Errorf("GetHTTPStatus() = %d", GetHTTPStatus(wrapped))
	}
	if !IsUserError(wrapped) {
		t.Error("expected user error")
	}
	if IsNotFound(wrapped) {
		t.Error("did not expect not found")
	}
	if GetHTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Error("plain errors should map to 500")
	}
	if !IsNotFound(NotFound("chat")) {
		t.Error("expected not found")
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"user error keeps message", MissingField("email"), "missing required field: email"},
		{"system error is hidden", DatabaseError("op", errors.New("dsn leaked")), "internal server error"},
		{"plain error is hidden", errors.New("boom"), "internal server error"},
		{"transient keeps message", UpstreamError("tienda", errors.New("eof")), "tienda upstream error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicMessage(tt.err); got != tt.expected {
				t.Errorf("PublicMessage() = %q, expected %q", got, tt.expected)
			}
		})
	}
}
