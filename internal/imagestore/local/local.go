package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vbonduro/cardledger/internal/imagestore"
)

// ErrInvalidKey is returned for keys that are empty, contain a path
// separator, or would resolve outside the base directory.
var ErrInvalidKey = errors.New("invalid image key")

type Store struct {
	basePath string
}

var _ imagestore.Store = (*Store)(nil)

func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Save writes to a temp file and renames it into place so readers never see
// a partial image. Any previous image for the key is replaced.
func (s *Store) Save(ctx context.Context, key, mimeType string, r io.Reader) error {
	filePath, err := s.safeJoin(key + mimeTypeToExt(mimeType))
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(tmpPath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(tmpPath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return fmt.Errorf("failed to close file: %w", err)
	}

	if existing, err := s.find(key); err == nil && existing != filePath {
		if rerr := os.Remove(existing); rerr != nil {
			slog.Warn("failed to remove replaced image", "key", key, "error", rerr)
		}
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath, err := s.find(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", imagestore.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return f, extToMimeType(filePath), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	filePath, err := s.find(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return imagestore.ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// find locates the stored file for key regardless of its extension.
func (s *Store) find(key string) (string, error) {
	for _, ext := range []string{".jpg", ".png", ".gif", ".webp"} {
		filePath, err := s.safeJoin(key + ext)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(filePath); err == nil {
			return filePath, nil
		}
	}
	return "", imagestore.ErrNotFound
}

// safeJoin resolves name relative to basePath and rejects directory traversal.
func (s *Store) safeJoin(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidKey
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return absPath, nil
}

func mimeTypeToExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func extToMimeType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
