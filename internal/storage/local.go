package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps documents as plain files in a directory.
// It doubles as the fallback target when a remote save fails.
type LocalStore struct {
	dir string
}

// NewLocalStore returns a store rooted at dir, creating it lazily on first save.
func NewLocalStore(dir string) *LocalStore {
	if dir == "" {
		dir = "data"
	}
	return &LocalStore{dir: dir}
}

// Backend identifies the backend kind for logging.
func (s *LocalStore) Backend() string { return "local" }

// Load reads a document from disk.
func (s *LocalStore) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("local load %s: %w", name, err)
	}
	return data, nil
}

// Save writes a document atomically via a temp file rename.
func (s *LocalStore) Save(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("local mkdir: %w", err)
	}
	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("local write %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("local rename %s: %w", name, err)
	}
	return nil
}
