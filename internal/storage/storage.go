package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/quicknotes/studybot/core/config"
)

// ErrNotFound is returned when a named document does not exist in the backend.
var ErrNotFound = errors.New("storage: document not found")

// Store persists named JSON documents in a remote or local backend.
// Implementations must treat document bodies as opaque bytes.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Backend() string
}

// New constructs the document store selected by configuration.
// The sqlx handle is only required for the postgres backend.
func New(cfg coreconfig.StorageConfig, db *sqlx.DB) (Store, error) {
	switch cfg.Backend {
	case coreconfig.StorageGitHub:
		return NewGitHubStore(cfg.GitHub), nil
	case coreconfig.StoragePostgres:
		if db == nil {
			return nil, fmt.Errorf("storage: postgres backend requires a database connection")
		}
		return NewPostgresStore(db), nil
	case coreconfig.StorageLocal:
		return NewLocalStore(cfg.LocalDir), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
