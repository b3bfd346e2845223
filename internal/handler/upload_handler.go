package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/middleware"
	"github.com/andresdev/backstage/internal/storage"
)

// uploadField is the multipart field carrying the file.
const uploadField = "file"

// UploadHandler accepts support screenshots and serves stored files.
type UploadHandler struct {
	*BaseHandler
	uploads    UploadService
	files      storage.Store
	maxBytes   int64
	publicPath string
}

// UploadHandlerConfig holds configuration for UploadHandler.
type UploadHandlerConfig struct {
	Uploads UploadService
	// MaxBytes bounds a single file.
	MaxBytes int64
	// Files is served under PublicPath. Nil disables serving.
	Files      storage.Store
	PublicPath string
	Logger     *zap.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(cfg UploadHandlerConfig) *UploadHandler {
	if cfg.Uploads == nil {
		panic("upload service is required")
	}
	if cfg.PublicPath == "" {
		cfg.PublicPath = "/uploads"
	}
	return &UploadHandler{
		BaseHandler: NewBaseHandler(cfg.Logger),
		uploads:     cfg.Uploads,
		files:       cfg.Files,
		maxBytes:    cfg.MaxBytes,
		publicPath:  "/" + strings.Trim(cfg.PublicPath, "/"),
	}
}

// RegisterRoutes registers the upload endpoint.
func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.BodySizeLimiterUpload(h.maxBytes)).Post("/soporte/upload", h.Upload)
}

// RegisterFileServer serves stored files under the public path.
func (h *UploadHandler) RegisterFileServer(r chi.Router) {
	if h.files == nil {
		return
	}
	r.Get(h.publicPath+"/*", h.Serve)
}

// Serve streams a stored file. Keys without a known extension are refused.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	contentType := mime.TypeByExtension(path.Ext(key))
	if key == "" || contentType == "" {
		http.NotFound(w, r)
		return
	}

	rc, err := h.files.Open(r.Context(), key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("failed to open stored file", zap.String("key", key), zap.Error(err))
		}
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("failed to stream stored file", zap.String("key", key), zap.Error(err))
	}
}

// Upload handles POST /api/soporte/upload
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			h.WriteError(w, r, apperrors.New(apperrors.CodeTooLarge, "file too large"))
		case errors.Is(err, http.ErrMissingFile):
			h.WriteError(w, r, apperrors.MissingField(uploadField))
		default:
			h.WriteError(w, r, apperrors.New(apperrors.CodeValidation, "invalid multipart body"))
		}
		return
	}
	defer file.Close()

	obj, err := h.uploads.UploadImage(r.Context(), file)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, r, http.StatusCreated, UploadResponse{URL: obj.URL})
}
