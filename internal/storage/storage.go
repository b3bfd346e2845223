// Package storage keeps uploaded files on the local filesystem and serves
// them under a public URL prefix.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object describes a stored file.
type Object struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"stored_at"`
}

// Store persists uploaded files.
type Store interface {
	// Put writes r under a generated key in prefix and returns its public URL.
	Put(ctx context.Context, prefix, ext, contentType string, r io.Reader) (*Object, error)
	// Open returns a reader for key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// FS stores files below a root directory.
type FS struct {
	root      string
	publicURL string
	now       func() time.Time
}

// NewFS creates the root directory if needed. publicURL is the absolute or
// path prefix under which the root is served, e.g. "http://host/uploads".
func NewFS(root, publicURL string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	return &FS{
		root:      abs,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}, nil
}

// Root returns the absolute storage directory.
func (s *FS) Root() string {
	return s.root
}

// Put implements Store. Keys look like prefix/2026/05/<uuid>.jpg.
func (s *FS) Put(ctx context.Context, prefix, ext, contentType string, r io.Reader) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := filepath.ToSlash(filepath.Join(
		cleanSegment(prefix),
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		uuid.NewString()+cleanExt(ext),
	))

	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &Object{
		Key:         key,
		URL:         s.publicURL + "/" + key,
		ContentType: contentType,
		Size:        size,
		StoredAt:    now,
	}, nil
}

// Open implements Store.
func (s *FS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = fmt.Errorf("storage: object not found")

// path resolves key inside root, rejecting traversal.
func (s *FS) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	full := filepath.Join(s.root, clean)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return full, nil
}

func cleanSegment(s string) string {
	s = strings.Trim(strings.ToLower(s), "/ ")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '/':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "misc"
	}
	return b.String()
}

func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	if ext == "" || len(ext) > 5 {
		return ""
	}
	return "." + ext
}

// ExtensionFor maps a content type to a file extension.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}
