package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	apperrors "github.com/andresdev/backstage/internal/errors"
	"github.com/andresdev/backstage/internal/imaging"
	"github.com/andresdev/backstage/internal/metrics"
	"github.com/andresdev/backstage/internal/storage"
)

// uploadPrefix is the storage folder for support screenshots.
const uploadPrefix = "soporte"

// UploadService stores support screenshots.
type UploadService struct {
	store    storage.Store
	opts     imaging.Options
	maxBytes int64
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewUploadService creates a new UploadService. maxBytes bounds the
// original file size.
func NewUploadService(store storage.Store, opts imaging.Options, maxBytes int64, m *metrics.Metrics, logger *zap.Logger) *UploadService {
	return &UploadService{store: store, opts: opts, maxBytes: maxBytes, metrics: m, logger: logger}
}

// UploadImage validates r as an image, scales it down and stores it.
// Images that cannot be re-encoded are stored as received.
func (s *UploadService) UploadImage(ctx context.Context, r io.Reader) (*storage.Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		s.metrics.RecordUpload(false, false, 0)
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		s.metrics.RecordUpload(false, false, int64(len(data)))
		return nil, apperrors.New(apperrors.CodeTooLarge, fmt.Sprintf("image exceeds %d bytes", s.maxBytes))
	}
	if len(data) == 0 {
		s.metrics.RecordUpload(false, false, 0)
		return nil, apperrors.MissingField("file")
	}
	if !imaging.IsImage(data) {
		s.metrics.RecordUpload(false, false, int64(len(data)))
		return nil, apperrors.InvalidFormat("file", "an image")
	}

	res := imaging.Compress(data, s.opts)
	obj, err := s.store.Put(ctx, uploadPrefix, storage.ExtensionFor(res.ContentType), res.ContentType, bytes.NewReader(res.Data))
	if err != nil {
		s.metrics.RecordUpload(false, res.Compressed, int64(len(data)))
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	s.metrics.RecordUpload(true, res.Compressed, obj.Size)
	s.logger.Debug("support image stored",
		zap.String("key", obj.Key),
		zap.Int("original_bytes", len(data)),
		zap.Int64("stored_bytes", obj.Size),
		zap.Bool("compressed", res.Compressed),
	)
	return obj, nil
}
