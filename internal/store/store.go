// Package store persists union records and the shared application config.
//
// Two backends implement the same interfaces:
//   - SQLiteStore keeps everything in a local SQLite file, with an append-only
//     change log per entity.
//   - FirebaseStore talks to a Firebase Realtime Database over REST, the
//     document store the dashboard reads from.
//
// View sits in front of either backend and holds the in-memory snapshot the
// rest of the program works against.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/model"
)

// ErrNotFound is returned when a slug is not in the store.
var ErrNotFound = errors.New("entity not found")

// Store is the entity collection of a backend.
type Store interface {
	PutEntity(ctx context.Context, e *model.Entity) error
	GetAllEntities(ctx context.Context) ([]*model.Entity, error)
	DeleteEntity(ctx context.Context, slug string) error
}

// ConfigStore holds the deployment-wide AppConfig. GetAppConfig returns the
// defaults when nothing has been stored yet.
type ConfigStore interface {
	GetAppConfig(ctx context.Context) (*config.AppConfig, error)
	PutAppConfig(ctx context.Context, cfg *config.AppConfig) error
}

// Backend is a complete storage backend.
type Backend interface {
	Store
	ConfigStore
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend        string // "sqlite" or "firebase"
	DBPath         string
	FirebaseURL    string
	FirebaseSecret string
	Timeout        time.Duration
	Logger         *zap.Logger
}

// OptionsFromConfig maps resolved local configuration onto Options.
func OptionsFromConfig(cfg config.ResolvedConfig, logger *zap.Logger) Options {
	return Options{
		Backend:        cfg.Store.Value,
		DBPath:         cfg.DBPath.Value,
		FirebaseURL:    cfg.FirebaseURL.Value,
		FirebaseSecret: cfg.FirebaseSecret.Value,
		Logger:         logger,
	}
}

// Open returns the backend named by opts.Backend.
func Open(opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "sqlite":
		return NewSQLiteStore(SQLiteConfig{DBPath: opts.DBPath})
	case "firebase":
		return NewFirebaseStore(FirebaseConfig{
			URL:     opts.FirebaseURL,
			Secret:  opts.FirebaseSecret,
			Timeout: opts.Timeout,
			Logger:  opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

func checkIdentity(e *model.Entity) error {
	if e == nil {
		return &model.IncompleteEntityError{Missing: []string{"slug", "nombre"}}
	}
	if strings.TrimSpace(e.Slug) == "" {
		return &model.IncompleteEntityError{Missing: []string{"slug"}}
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
