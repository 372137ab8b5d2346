// Package media hosts message attachments. The delivery core never looks
// inside a payload; by the time a message is persisted its image or file
// content has been reduced to an opaque URL by a Storage implementation.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidDataURI = errors.New("media: invalid data URI")

// Storage resolves raw payloads into URLs.
type Storage interface {
	// SaveImage decodes a base64 data URI and returns a URL for it.
	SaveImage(ctx context.Context, dataURI string) (string, error)
	// SaveBlob stores raw bytes under a generated name and returns a URL.
	SaveBlob(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// DiskStorage writes media to a local directory served under baseURL.
type DiskStorage struct {
	dir     string
	baseURL string
}

// NewDiskStorage creates the media directory if needed.
func NewDiskStorage(dir, baseURL string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create dir: %w", err)
	}
	return &DiskStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the directory media files are written to.
func (s *DiskStorage) Dir() string {
	return s.dir
}

func (s *DiskStorage) SaveImage(ctx context.Context, dataURI string) (string, error) {
	mimeType, data, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	return s.SaveBlob(ctx, "image", mimeType, data)
}

func (s *DiskStorage) SaveBlob(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	filename := uuid.New().String() + extensionFor(mimeType)
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("media: write %s: %w", name, err)
	}
	return s.baseURL + "/" + filename, nil
}

// decodeDataURI splits "data:<mime>;base64,<payload>" into its parts.
func decodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, ErrInvalidDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURI
	}
	return strings.TrimSuffix(meta, ";base64"), data, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/webm":
		return ".webm"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
