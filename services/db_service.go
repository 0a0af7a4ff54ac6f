package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"hookrunner-server/models"
)

// PostgresStore persists handler records and API key records. Handler source
// text lives in the source store; rows only carry the storage key.
type PostgresStore struct {
	db      *sql.DB
	sources SourceStore
}

// NewPostgresStore opens the connection and verifies it.
func NewPostgresStore(host string, port int, user, password, dbname string, sources SourceStore) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db, sources: sources}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates tables if they don't exist
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS handlers (
		uri VARCHAR(255) PRIMARY KEY,
		api_key VARCHAR(255) NOT NULL,
		source_key TEXT NOT NULL,
		revision BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS api_keys (
		key_value VARCHAR(255) PRIMARY KEY,
		tenant VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_handlers_updated_at ON handlers(updated_at DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save writes the source text to the source store, then upserts the row.
func (s *PostgresStore) Save(ctx context.Context, h models.Handler) error {
	sourceKey := GenerateSourceKey(h.URI)
	if err := s.sources.SaveSource(ctx, sourceKey, h.Source); err != nil {
		return fmt.Errorf("saving source for %s: %w", h.URI, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handlers (uri, api_key, source_key, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uri) DO UPDATE
		SET api_key = EXCLUDED.api_key,
		    source_key = EXCLUDED.source_key,
		    revision = EXCLUDED.revision,
		    updated_at = EXCLUDED.updated_at
	`, h.URI, h.APIKey, sourceKey, h.Revision, h.CreatedAt, h.UpdatedAt)
	return err
}

// LoadAll returns every handler with its source text loaded.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]models.Handler, error) {
	return s.load(ctx, `
		SELECT uri, api_key, source_key, revision, created_at, updated_at
		FROM handlers
	`)
}

// LoadSince returns handlers updated after the given instant. Used by the
// registry syncer to fold in writes from other instances.
func (s *PostgresStore) LoadSince(ctx context.Context, since time.Time) ([]models.Handler, error) {
	return s.load(ctx, `
		SELECT uri, api_key, source_key, revision, created_at, updated_at
		FROM handlers
		WHERE updated_at > $1
	`, since)
}

func (s *PostgresStore) load(ctx context.Context, query string, args ...interface{}) ([]models.Handler, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var handlers []models.Handler
	for rows.Next() {
		var h models.Handler
		if err := rows.Scan(&h.URI, &h.APIKey, &h.SourceKey, &h.Revision, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}

		source, err := s.sources.GetSource(ctx, h.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("loading source for %s: %w", h.URI, err)
		}
		h.Source = source
		handlers = append(handlers, h)
	}

	return handlers, rows.Err()
}

// LoadKeys returns the known API keys and the tenants they identify.
func (s *PostgresStore) LoadKeys(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key_value, tenant FROM api_keys`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var key, tenant string
		if err := rows.Scan(&key, &tenant); err != nil {
			return nil, err
		}
		keys[key] = tenant
	}

	return keys, rows.Err()
}
