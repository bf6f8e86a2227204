package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freightdesk/convoy/internal/store"
)

// LedgerStore implements store.LedgerStore backed by SQLite.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const negotiationCols = `contact, session_bucket, session_pointer, session_started_at, memory_stamp, facts, updated_at`

func (s *LedgerStore) Latest(ctx context.Context, contact string) (*store.NegotiationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+negotiationCols+` FROM negotiations
		 WHERE contact = ? ORDER BY updated_at DESC LIMIT 1`, contact)
	rec, err := scanNegotiation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest negotiation: %w", err)
	}
	return rec, nil
}

func (s *LedgerStore) Buckets(ctx context.Context, contact string, buckets []string) ([]store.NegotiationRecord, error) {
	if len(buckets) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(buckets)), ",")
	args := make([]any, 0, len(buckets)+1)
	args = append(args, contact)
	for _, b := range buckets {
		args = append(args, b)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+negotiationCols+` FROM negotiations
		 WHERE contact = ? AND session_bucket IN (`+placeholders+`)
		 ORDER BY updated_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("negotiations by bucket: %w", err)
	}
	defer rows.Close()

	var out []store.NegotiationRecord
	for rows.Next() {
		rec, err := scanNegotiation(rows)
		if err != nil {
			return nil, fmt.Errorf("negotiations by bucket: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *LedgerStore) Put(ctx context.Context, rec *store.NegotiationRecord) error {
	factsJSON, err := json.Marshal(rec.Facts)
	if err != nil {
		return fmt.Errorf("encode facts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO negotiations (contact, session_bucket, session_pointer, session_started_at, memory_stamp, facts, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (contact, session_bucket) DO UPDATE SET
			session_pointer = excluded.session_pointer,
			session_started_at = excluded.session_started_at,
			memory_stamp = excluded.memory_stamp,
			facts = excluded.facts,
			updated_at = CURRENT_TIMESTAMP`,
		rec.Contact, rec.SessionBucket, rec.SessionPointer,
		nullable(rec.SessionStartedAt), nullable(rec.MemoryStamp), factsJSON)
	if err != nil {
		return fmt.Errorf("put negotiation: %w", err)
	}
	return nil
}

func (s *LedgerStore) SetMemoryStamp(ctx context.Context, contact, bucket, stamp string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE negotiations SET memory_stamp = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE contact = ? AND session_bucket = ?`, stamp, contact, bucket)
	if err != nil {
		return fmt.Errorf("set memory stamp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *LedgerStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM negotiations WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge negotiations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNegotiation(row rowScanner) (*store.NegotiationRecord, error) {
	var rec store.NegotiationRecord
	var startedAt, memoryStamp sql.NullString
	var factsJSON []byte
	if err := row.Scan(&rec.Contact, &rec.SessionBucket, &rec.SessionPointer,
		&startedAt, &memoryStamp, &factsJSON, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.SessionStartedAt = startedAt.String
	rec.MemoryStamp = memoryStamp.String
	if len(factsJSON) > 0 {
		if err := json.Unmarshal(factsJSON, &rec.Facts); err != nil {
			return nil, fmt.Errorf("decode facts: %w", err)
		}
	}
	return &rec, nil
}
