package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freightdesk/convoy/internal/store"
)

// LedgerStore implements store.LedgerStore backed by Postgres.
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
		 WHERE contact = $1 ORDER BY updated_at DESC LIMIT 1`, contact)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+negotiationCols+` FROM negotiations
		 WHERE contact = $1 AND session_bucket = ANY($2)
		 ORDER BY updated_at DESC`, contact, buckets)
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
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (contact, session_bucket) DO UPDATE SET
			session_pointer = EXCLUDED.session_pointer,
			session_started_at = EXCLUDED.session_started_at,
			memory_stamp = EXCLUDED.memory_stamp,
			facts = EXCLUDED.facts,
			updated_at = now()`,
		rec.Contact, rec.SessionBucket, rec.SessionPointer,
		nilStr(rec.SessionStartedAt), nilStr(rec.MemoryStamp), factsJSON)
	if err != nil {
		return fmt.Errorf("put negotiation: %w", err)
	}
	return nil
}

func (s *LedgerStore) SetMemoryStamp(ctx context.Context, contact, bucket, stamp string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE negotiations SET memory_stamp = $3, updated_at = now()
		 WHERE contact = $1 AND session_bucket = $2`, contact, bucket, stamp)
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
		`DELETE FROM negotiations WHERE updated_at < $1`, cutoff)
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
