package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/store"
)

// DebounceStore implements store.DebounceStore backed by SQLite.
type DebounceStore struct {
	db *sql.DB
}

func NewDebounceStore(db *sql.DB) *DebounceStore {
	return &DebounceStore{db: db}
}

func (s *DebounceStore) Get(ctx context.Context, contact string) (*store.BatchRecord, error) {
	var rec store.BatchRecord
	var pendingJSON []byte
	var lastText sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT contact, pending, fencing_token, timer_active, last_message_at, last_text, updated_at
		 FROM debounce_batches WHERE contact = ?`, contact,
	).Scan(&rec.Contact, &pendingJSON, &rec.FencingToken, &rec.TimerActive,
		&rec.LastMessageAt, &lastText, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	if err := json.Unmarshal(pendingJSON, &rec.Pending); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	rec.LastText = lastText.String
	return &rec, nil
}

func (s *DebounceStore) Put(ctx context.Context, rec *store.BatchRecord) error {
	pending := rec.Pending
	if pending == nil {
		pending = []bus.InboundMessage{}
	}
	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO debounce_batches (contact, pending, fencing_token, timer_active, last_message_at, last_text, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (contact) DO UPDATE SET
			pending = excluded.pending,
			fencing_token = excluded.fencing_token,
			timer_active = excluded.timer_active,
			last_message_at = excluded.last_message_at,
			last_text = excluded.last_text,
			updated_at = CURRENT_TIMESTAMP`,
		rec.Contact, pendingJSON, rec.FencingToken, rec.TimerActive, rec.LastMessageAt, nullable(rec.LastText))
	if err != nil {
		return fmt.Errorf("put batch: %w", err)
	}
	return nil
}

func (s *DebounceStore) Drain(ctx context.Context, contact string, fencing float64) ([]bus.InboundMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}
	defer tx.Rollback()

	var stored float64
	var pendingJSON []byte
	err = tx.QueryRowContext(ctx,
		`SELECT fencing_token, pending FROM debounce_batches WHERE contact = ?`,
		contact,
	).Scan(&stored, &pendingJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}
	if !store.FencingMatch(stored, fencing) {
		return nil, store.ErrStaleFencing
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE debounce_batches
		 SET pending = '[]', timer_active = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE contact = ?`, contact); err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}

	var pending []bus.InboundMessage
	if err := json.Unmarshal(pendingJSON, &pending); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return pending, nil
}

func (s *DebounceStore) PurgeStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM debounce_batches WHERE updated_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge batches: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
