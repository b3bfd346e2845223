// Package handler provides HTTP handlers for the application.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/audit"
	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/middleware"
)

// BaseHandler provides shared functionality for all handlers.
type BaseHandler struct {
	logger *zap.Logger
}

// NewBaseHandler creates a new BaseHandler.
func NewBaseHandler(logger *zap.Logger) *BaseHandler {
	if logger == nil {
		panic("logger is required")
	}
	return &BaseHandler{logger: logger}
}

// Logger returns the handler's logger.
func (b *BaseHandler) Logger() *zap.Logger {
	return b.logger
}

// WriteJSON writes a JSON response with the appropriate headers.
func (b *BaseHandler) WriteJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}

	w.WriteHeader(status)
	if data != nil {
		if err := encodeJSON(w, data); err != nil {
			b.logger.Debug("failed to write JSON response", zap.Error(err))
		}
	}
}

// WriteError translates err into a status code and a flat {error} body.
// System errors are logged with the request context and hidden from the client.
func (b *BaseHandler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.GetHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		middleware.LoggerWithCorrelation(r.Context(), b.logger).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	b.WriteJSON(w, r, status, apperrors.ErrorResponse{Error: apperrors.PublicMessage(err)})
}

// decodeJSON reads a single JSON document from the request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.New(apperrors.CodeTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			return apperrors.New(apperrors.CodeValidation, "request body is empty")
		default:
			return apperrors.New(apperrors.CodeValidation, "invalid request body")
		}
	}
	return nil
}

func encodeJSON(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

// uuidParam parses a UUID path parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.InvalidFormat(name, "a UUID")
	}
	return id, nil
}

// pagination reads limit and offset query parameters. Missing or
// malformed values are left at zero for the repository defaults.
func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// actorFrom describes who issued the request for the activity log.
func actorFrom(r *http.Request) audit.Actor {
	actor := audit.Actor{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetRequestID(r.Context()),
	}
	if op, ok := middleware.OperatorFromContext(r.Context()); ok {
		actor.ID = op.ID.String()
		actor.Email = op.Email
	}
	return actor
}
