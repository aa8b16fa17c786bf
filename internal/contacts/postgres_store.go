package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps address books in the contacts table created by
// storage.NewPostgresDB. Rows carry synced_at, refreshed by Touch, so
// DeleteStale can drop books whose Redis session has expired.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Replace(ctx context.Context, sessionID string, records []Record) error {
	if s.db == nil {
		return errors.New("contacts store: db is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace contacts: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("replace contacts: delete previous: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts (session_id, position, contact_id, first_name, last_name, addresses, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`)
	if err != nil {
		return fmt.Errorf("replace contacts: db prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		addresses, err := json.Marshal(r.Addresses)
		if err != nil {
			return fmt.Errorf("replace contacts: marshal addresses for %q: %w", r.ID, err)
		}

		if _, err := stmt.ExecContext(ctx, sessionID, i, r.ID, r.FirstName, r.LastName, string(addresses)); err != nil {
			return fmt.Errorf("replace contacts: insert %q: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace contacts: commit: %w", err)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string) ([]Record, error) {
	if s.db == nil {
		return nil, errors.New("contacts store: db is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT contact_id, first_name, last_name, addresses
		FROM contacts
		WHERE session_id = $1
		ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: query: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var addresses []byte
		if err := rows.Scan(&r.ID, &r.FirstName, &r.LastName, &addresses); err != nil {
			return nil, fmt.Errorf("list contacts: scan rows: %w", err)
		}
		if len(addresses) > 0 {
			if err := json.Unmarshal(addresses, &r.Addresses); err != nil {
				return nil, fmt.Errorf("list contacts: decode addresses for %q: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: row iteration: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) Touch(ctx context.Context, sessionID string) error {
	if s.db == nil {
		return errors.New("contacts store: db is nil")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE contacts SET synced_at = now() WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("touch contacts: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if s.db == nil {
		return errors.New("contacts store: db is nil")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete contacts: %w", err)
	}
	return nil
}

// DeleteStale removes every book not touched since before and reports how
// many rows went.
func (s *PostgresStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	if s.db == nil {
		return 0, errors.New("contacts store: db is nil")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE synced_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale contacts: %w", err)
	}
	return res.RowsAffected()
}
