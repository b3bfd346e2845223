package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if !errors.As(err, &tooLarge) {
				t.Errorf("unexpected read error: %v", err)
			}
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.Write(body)
	})
}

func TestBodySizeLimiter(t *testing.T) {
	tests := []struct {
		name          string
		limit         int64
		body          string
		contentLength int64
		wantStatus    int
	}{
		{"small body", 1024, "small body", 0, http.StatusOK},
		{"empty body", 100, "", 0, http.StatusOK},
		{"declared length over limit", 100, "small", 200, http.StatusRequestEntityTooLarge},
		{"chunked body over limit", 10, strings.Repeat("x", 20), -1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader(tt.body))
			if tt.contentLength != 0 {
				req.ContentLength = tt.contentLength
			}
			rec := httptest.NewRecorder()

			BodySizeLimiter(tt.limit)(echoHandler(t)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestBodySizeLimiter_RejectionIsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	req.ContentLength = 1 << 30
	rec := httptest.NewRecorder()

	BodySizeLimiterJSON()(echoHandler(t)).ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"error":"request body too large"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBodySizeLimiter_NoBody(t *testing.T) {
	called := false
	handler := BodySizeLimiter(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Error("handler should have been called")
	}
}

func TestBodySizeLimiterUpload(t *testing.T) {
	handler := BodySizeLimiterUpload(0)(echoHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/api/soporte/upload", strings.NewReader("x"))
	req.ContentLength = DefaultMaxUploadSize + 1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("a file at the limit plus envelope should pass, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/soporte/upload", strings.NewReader("x"))
	req.ContentLength = DefaultMaxUploadSize + 1<<20
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
