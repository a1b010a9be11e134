package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS seed_records (
    position BIGSERIAL PRIMARY KEY,
    collection TEXT NOT NULL,
    record_id TEXT NOT NULL,
    protected BOOLEAN NOT NULL DEFAULT FALSE,
    data JSONB NOT NULL,
    UNIQUE (collection, record_id, protected)
);
`

// InitPostgres opens the seed database and creates its schema.
func InitPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// CreateSchema creates the seed_records table if it is missing.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
