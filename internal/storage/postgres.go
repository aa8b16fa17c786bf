package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const contactsSchema = `
	CREATE TABLE IF NOT EXISTS contacts (
		session_id VARCHAR(64) NOT NULL,
		position   INT NOT NULL,
		contact_id VARCHAR(255) NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name  TEXT NOT NULL DEFAULT '',
		addresses  JSONB NOT NULL DEFAULT '[]',
		synced_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session_id, position)
	);
	ALTER TABLE contacts ADD COLUMN IF NOT EXISTS synced_at TIMESTAMPTZ NOT NULL DEFAULT now();
	CREATE INDEX IF NOT EXISTS contacts_synced_at_idx ON contacts (synced_at);
`

// NewPostgresDB opens a lib/pq connection pool and makes sure the contacts
// table exists.
func NewPostgresDB(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, contactsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return db, nil
}
