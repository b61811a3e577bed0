// Package blob stores weighing photos and hands back a stable reference
// for the persisted record.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Uploader stores one named blob and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// LocalStore writes blobs to a directory on disk. The returned reference is
// the absolute file path.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("LocalStore failed to create blob directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create blob directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob directory %s: %w", dir, err)
	}
	slog.Debug("LocalStore blob directory ready", "dir", abs)
	return &LocalStore{dir: abs}, nil
}

// Upload writes the blob and returns its absolute path.
func (s *LocalStore) Upload(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Error("LocalStore upload failed", "path", path, "error", err)
		return "", fmt.Errorf("failed to write blob %s: %w", path, err)
	}
	slog.Debug("LocalStore upload succeeded", "path", path, "bytes", len(data))
	return path, nil
}
