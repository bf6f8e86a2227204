package pg

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

// DebounceStore implements store.DebounceStore backed by Postgres.
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
		 FROM debounce_batches WHERE contact = $1`, contact,
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
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (contact) DO UPDATE SET
			pending = EXCLUDED.pending,
			fencing_token = EXCLUDED.fencing_token,
			timer_active = EXCLUDED.timer_active,
			last_message_at = EXCLUDED.last_message_at,
			last_text = EXCLUDED.last_text,
			updated_at = now()`,
		rec.Contact, pendingJSON, rec.FencingToken, rec.TimerActive, rec.LastMessageAt, nilStr(rec.LastText))
	if err != nil {
		return fmt.Errorf("put batch: %w", err)
	}
	return nil
}

// Drain clears the batch in one statement guarded by the fencing token, so
// concurrent wakeups race on the database row rather than in memory.
func (s *DebounceStore) Drain(ctx context.Context, contact string, fencing float64) ([]bus.InboundMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}
	defer tx.Rollback()

	var stored float64
	var pendingJSON []byte
	err = tx.QueryRowContext(ctx,
		`SELECT fencing_token, pending FROM debounce_batches WHERE contact = $1 FOR UPDATE`,
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
		 SET pending = '[]'::jsonb, timer_active = FALSE, updated_at = now()
		 WHERE contact = $1`, contact); err != nil {
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
		`DELETE FROM debounce_batches WHERE updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge batches: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
