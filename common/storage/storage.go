package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixeon/renderplane/common/logger"
)

// Store is the object-store abstraction for user inputs and merged artifacts.
// Paths are relative to the store root; absolute paths outside the root are
// rejected.
type Store interface {
	Save(ctx context.Context, rel string, data []byte) (string, error)
	Read(ctx context.Context, rel string) ([]byte, error)
	Exists(ctx context.Context, rel string) bool
}

// LocalStore stores files on the local filesystem under a single root
type LocalStore struct {
	root string
	log  *logger.Logger
}

// NewLocalStore creates a filesystem-backed store rooted at root
func NewLocalStore(root string, log *logger.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &LocalStore{root: abs, log: log}, nil
}

// Save writes data under rel and returns the normalized relative path
func (s *LocalStore) Save(ctx context.Context, rel string, data []byte) (string, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	s.log.Debug("stored file", "path", rel, "bytes", len(data))
	return filepath.ToSlash(rel), nil
}

// Read returns the contents of the file at rel
func (s *LocalStore) Read(ctx context.Context, rel string) ([]byte, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether rel is present in the store
func (s *LocalStore) Exists(ctx context.Context, rel string) bool {
	abs, err := s.resolve(rel)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(abs)
	return statErr == nil
}

// resolve joins rel onto the root and rejects traversal outside it
func (s *LocalStore) resolve(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	abs := filepath.Join(s.root, cleaned)
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) && abs != s.root {
		return "", fmt.Errorf("path escapes storage root: %s", rel)
	}
	return abs, nil
}
