package imagestore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no image is stored under a key.
var ErrNotFound = errors.New("image not found")

// Store keeps card images keyed by card id.
type Store interface {
	Save(ctx context.Context, key, mimeType string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
