package store

import (
	"context"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
)

// DebounceStore persists per-contact message accumulation between wakeups.
type DebounceStore interface {
	// Get returns the batch row for a contact, or ErrNotFound.
	Get(ctx context.Context, contact string) (*BatchRecord, error)
	// Put upserts the batch row.
	Put(ctx context.Context, rec *BatchRecord) error
	// Drain atomically claims and clears the pending batch when the stored
	// fencing token still matches the caller's. A mismatch returns
	// ErrStaleFencing and leaves the row untouched.
	Drain(ctx context.Context, contact string, fencing float64) ([]bus.InboundMessage, error)
	// PurgeStale removes rows whose timer died without firing.
	PurgeStale(ctx context.Context, olderThan time.Time) (int, error)
}

// LedgerStore persists the negotiation ledger keyed by contact and hour
// bucket.
type LedgerStore interface {
	// Latest returns the most recently updated row for a contact, or
	// ErrNotFound.
	Latest(ctx context.Context, contact string) (*NegotiationRecord, error)
	// Buckets returns the rows for the given bucket keys, newest first.
	// Missing buckets are simply absent from the result.
	Buckets(ctx context.Context, contact string, buckets []string) ([]NegotiationRecord, error)
	// Put upserts a ledger row.
	Put(ctx context.Context, rec *NegotiationRecord) error
	// SetMemoryStamp updates only the memory timestamp of a row.
	SetMemoryStamp(ctx context.Context, contact, bucket, stamp string) error
	// PurgeOlderThan removes rows last touched before the cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// HistoryStore persists the per-driver conversation log used for context
// reconstruction after channel transitions.
type HistoryStore interface {
	Append(ctx context.Context, entry HistoryEntry) error
	// Recent returns up to limit entries, oldest first.
	Recent(ctx context.Context, contact string, limit int) ([]HistoryEntry, error)
	// IncrementResponses bumps the per-driver processed-response counter.
	IncrementResponses(ctx context.Context, contact string) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Debounce DebounceStore
	Ledger   LedgerStore
	History  HistoryStore

	// Close releases the underlying connection, when there is one.
	Close func() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Backend is "postgres", "sqlite" or "memory".
	Backend string
	// DSN is the Postgres connection string (managed mode).
	DSN string
	// Path is the SQLite database file (standalone mode).
	Path string
}
