package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freightdesk/convoy/internal/store"
)

// HistoryStore implements store.HistoryStore backed by SQLite.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Append(ctx context.Context, entry store.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_history (contact, role, kind, text, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.Contact, entry.Role, nullable(entry.Kind), entry.Text, entry.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *HistoryStore) Recent(ctx context.Context, contact string, limit int) ([]store.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT contact, role, kind, text, sent_at FROM (
			SELECT contact, role, kind, text, sent_at, id
			FROM message_history WHERE contact = ?
			ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, contact, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var out []store.HistoryEntry
	for rows.Next() {
		var entry store.HistoryEntry
		var kind sql.NullString
		if err := rows.Scan(&entry.Contact, &entry.Role, &kind, &entry.Text, &entry.SentAt); err != nil {
			return nil, fmt.Errorf("recent history: %w", err)
		}
		entry.Kind = kind.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *HistoryStore) IncrementResponses(ctx context.Context, contact string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_counters (contact, responses, updated_at)
		 VALUES (?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT (contact) DO UPDATE SET
			responses = responses + 1,
			updated_at = CURRENT_TIMESTAMP`, contact)
	if err != nil {
		return fmt.Errorf("increment responses: %w", err)
	}
	return nil
}
