package middleware

import (
	"net/http"
)

const (
	// MaxJSONBodySize bounds JSON API bodies, including chat appends.
	MaxJSONBodySize = 1 << 20

	// MaxLoginBodySize bounds the console login form.
	MaxLoginBodySize = 8 << 10

	// DefaultMaxUploadSize bounds support screenshots when storage config is unset.
	DefaultMaxUploadSize = 10 << 20
)

// BodySizeLimiter rejects bodies larger than maxBytes with 413.
// Chunked bodies are capped through http.MaxBytesReader.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// BodySizeLimiterJSON limits JSON API bodies.
func BodySizeLimiterJSON() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxJSONBodySize)
}

// BodySizeLimiterLogin limits the login body.
func BodySizeLimiterLogin() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxLoginBodySize)
}

// BodySizeLimiterUpload limits multipart uploads. A non-positive max uses
// DefaultMaxUploadSize plus room for the multipart envelope.
func BodySizeLimiterUpload(maxFileBytes int64) func(http.Handler) http.Handler {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxUploadSize
	}
	return BodySizeLimiter(maxFileBytes + 64<<10)
}
