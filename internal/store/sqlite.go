package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/model"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.gremio/gremio.db"

// Change log event types.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// SQLiteConfig holds configuration for NewSQLiteStore.
type SQLiteConfig struct {
	DBPath string
}

// SQLiteStore implements Backend on a single SQLite file. Entities are kept
// as JSON documents so extension fields survive untouched.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// EntityEvent is one entry of the per-entity change log.
type EntityEvent struct {
	ID        int64
	Slug      string
	EventType string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// Stats summarizes the store contents.
type Stats struct {
	EntityCount int64
	EventCount  int64
	DBSizeBytes int64
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store.
// Pass ":memory:" for in-memory databases (testing).
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	cfg.DBPath = expandPath(cfg.DBPath)

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// PutEntity inserts or replaces the entity stored under e.Slug and appends
// the change to the log, in one transaction.
func (s *SQLiteStore) PutEntity(ctx context.Context, e *model.Entity) error {
	if err := checkIdentity(e); err != nil {
		return err
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Slug, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var old sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT doc FROM entities WHERE slug = ?`, e.Slug).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading %s: %w", e.Slug, err)
	}
	if old.Valid && old.String == string(doc) {
		return tx.Commit()
	}

	now := s.now().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (slug, name, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET name = excluded.name, doc = excluded.doc, updated_at = excluded.updated_at`,
		e.Slug, e.Name, string(doc), now, now,
	); err != nil {
		return fmt.Errorf("writing %s: %w", e.Slug, err)
	}

	eventType := EventCreated
	if old.Valid {
		eventType = EventUpdated
	}
	if err := logEvent(ctx, tx, e.Slug, eventType, old.String, string(doc), now); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEntity returns one entity or ErrNotFound.
func (s *SQLiteStore) GetEntity(ctx context.Context, slug string) (*model.Entity, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM entities WHERE slug = ?`, slug).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", slug, err)
	}
	var e model.Entity
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", slug, err)
	}
	if strings.TrimSpace(e.Slug) == "" {
		e.Slug = slug
	}
	return model.Sanitize(&e), nil
}

// GetAllEntities returns every stored entity, sanitized, ordered by slug.
func (s *SQLiteStore) GetAllEntities(ctx context.Context) ([]*model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, doc FROM entities ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	out := []*model.Entity{}
	for rows.Next() {
		var slug, doc string
		if err := rows.Scan(&slug, &doc); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		var e model.Entity
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", slug, err)
		}
		if strings.TrimSpace(e.Slug) == "" {
			e.Slug = slug
		}
		out = append(out, model.Sanitize(&e))
	}
	return out, rows.Err()
}

// DeleteEntity removes slug. Deleting a missing slug is not an error.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, slug string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var old string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM entities WHERE slug = ?`, slug).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", slug, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("deleting %s: %w", slug, err)
	}
	if err := logEvent(ctx, tx, slug, EventDeleted, old, "", s.now().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// GetAppConfig returns the stored config with defaults filled in, or the
// default config when none is stored.
func (s *SQLiteStore) GetAppConfig(ctx context.Context) (*config.AppConfig, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM app_config WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return config.DefaultAppConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading app config: %w", err)
	}
	var cfg config.AppConfig
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, fmt.Errorf("decoding app config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// PutAppConfig replaces the stored config.
func (s *SQLiteStore) PutAppConfig(ctx context.Context, cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("nil app config")
	}
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding app config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO app_config (id, doc, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		string(doc), s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing app config: %w", err)
	}
	return nil
}

// History returns the change log of slug, newest first. limit <= 0 means
// no limit.
func (s *SQLiteStore) History(ctx context.Context, slug string, limit int) ([]EntityEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, event_type, old_value, new_value, created_at
		 FROM entity_events WHERE slug = ? ORDER BY id DESC LIMIT ?`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []EntityEvent
	for rows.Next() {
		var ev EntityEvent
		var created string
		if err := rows.Scan(&ev.ID, &ev.Slug, &ev.EventType, &ev.OldValue, &ev.NewValue, &created); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Stats returns current database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM entities", &stats.EntityCount},
		{"SELECT COUNT(*) FROM entity_events", &stats.EventCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}
	return stats, nil
}

func logEvent(ctx context.Context, tx *sql.Tx, slug, eventType, oldValue, newValue, at string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO entity_events (slug, event_type, old_value, new_value, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		slug, eventType, oldValue, newValue, at,
	)
	if err != nil {
		return fmt.Errorf("logging %s event for %s: %w", eventType, slug, err)
	}
	return nil
}
