package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freightdesk/convoy/internal/store"
)

// HistoryStore implements store.HistoryStore backed by Postgres.
type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Append(ctx context.Context, entry store.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_history (contact, role, kind, text, sent_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.Contact, entry.Role, nilStr(entry.Kind), entry.Text, entry.SentAt)
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
			FROM message_history WHERE contact = $1
			ORDER BY id DESC LIMIT $2
		 ) latest ORDER BY id ASC`, contact, limit)
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
		 VALUES ($1, 1, now())
		 ON CONFLICT (contact) DO UPDATE SET
			responses = response_counters.responses + 1,
			updated_at = now()`, contact)
	if err != nil {
		return fmt.Errorf("increment responses: %w", err)
	}
	return nil
}
