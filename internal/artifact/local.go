package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes artifacts to a directory on disk. The default
// backend for single-node deployments.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes the artifact and returns its path on disk.
func (s *LocalStore) Save(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return path, nil
}
