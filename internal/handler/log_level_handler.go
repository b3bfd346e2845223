package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/logging"
)

// LogLevelHandler changes the process log level at runtime.
type LogLevelHandler struct {
	*BaseHandler
	level zap.AtomicLevel
}

// NewLogLevelHandler creates a handler for log level management.
func NewLogLevelHandler(level zap.AtomicLevel, logger *zap.Logger) *LogLevelHandler {
	return &LogLevelHandler{
		BaseHandler: NewBaseHandler(logger),
		level:       level,
	}
}

// RegisterRoutes registers the log level endpoint. guard protects changes.
func (h *LogLevelHandler) RegisterRoutes(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Route("/admin/log-level", func(r chi.Router) {
		r.Use(guard)
		r.Get("/", h.GetLevel)
		r.Put("/", h.SetLevel)
		r.Post("/", h.SetLevel)
	})
}

// LogLevelResponse is the response for log level queries.
type LogLevelResponse struct {
	Level           string   `json:"level"`
	AvailableLevels []string `json:"available_levels,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// LogLevelRequest is the request body for changing log level.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// GetLevel handles GET requests to return current log level.
func (h *LogLevelHandler) GetLevel(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, r, http.StatusOK, LogLevelResponse{
		Level:           h.level.Level().String(),
		AvailableLevels: logging.Levels,
	})
}

// SetLevel handles PUT/POST requests to change log level. The level is
// read from the query string, then a form value, then a JSON body.
func (h *LogLevelHandler) SetLevel(w http.ResponseWriter, r *http.Request) {
	levelStr := r.URL.Query().Get("level")

	if levelStr == "" && r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err == nil {
			levelStr = r.PostFormValue("level")
		}
	}

	if levelStr == "" {
		var req LogLevelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			levelStr = req.Level
		}
	}

	if levelStr == "" {
		h.WriteError(w, r, apperrors.MissingField("level"))
		return
	}

	newLevel, err := logging.ParseLevel(levelStr)
	if err != nil {
		h.WriteError(w, r, apperrors.Wrap(err, "LogLevelHandler.SetLevel", apperrors.CodeValidation, err.Error()))
		return
	}

	previous := h.level.Level().String()
	h.level.SetLevel(newLevel)

	h.logger.Info("log level changed",
		zap.String("previous_level", previous),
		zap.String("new_level", newLevel.String()),
	)

	h.WriteJSON(w, r, http.StatusOK, LogLevelResponse{
		Level:   newLevel.String(),
		Message: fmt.Sprintf("log level changed from %s to %s", previous, newLevel.String()),
	})
}
