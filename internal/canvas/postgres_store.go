package canvas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS canvas_snapshots (
	project_id TEXT PRIMARY KEY,
	objects    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresConfig: connection pool settings
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore keeps canvas snapshots in Postgres (or CockroachDB)
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStoreFromDSN connects, pings and ensures the schema exists
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the snapshot table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create canvas_snapshots: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, projectID string) ([]Object, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT objects FROM canvas_snapshots WHERE project_id = $1`, projectID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load canvas snapshot: %w", err)
	}
	return decodeObjects(raw)
}

func (s *PostgresStore) Save(ctx context.Context, projectID string, objects []Object) error {
	raw, err := encodeObjects(objects)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO canvas_snapshots (project_id, objects, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE SET
			objects = EXCLUDED.objects,
			updated_at = EXCLUDED.updated_at
	`, projectID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save canvas snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
