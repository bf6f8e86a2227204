package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
)

// NewMemoryStores builds a fully in-memory Stores container. Used by tests
// and by the "memory" backend for local experimentation; nothing survives a
// restart.
func NewMemoryStores() *Stores {
	return &Stores{
		Debounce: NewMemoryDebounceStore(),
		Ledger:   NewMemoryLedgerStore(),
		History:  NewMemoryHistoryStore(),
		Close:    func() error { return nil },
	}
}

// MemoryDebounceStore is a map-backed DebounceStore.
type MemoryDebounceStore struct {
	mu   sync.RWMutex
	rows map[string]*BatchRecord
}

func NewMemoryDebounceStore() *MemoryDebounceStore {
	return &MemoryDebounceStore{rows: make(map[string]*BatchRecord)}
}

func (s *MemoryDebounceStore) Get(_ context.Context, contact string) (*BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[contact]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Pending = append([]bus.InboundMessage(nil), rec.Pending...)
	return &cp, nil
}

func (s *MemoryDebounceStore) Put(_ context.Context, rec *BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.Pending = append([]bus.InboundMessage(nil), rec.Pending...)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.rows[rec.Contact] = &cp
	return nil
}

func (s *MemoryDebounceStore) Drain(_ context.Context, contact string, fencing float64) ([]bus.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[contact]
	if !ok {
		return nil, ErrNotFound
	}
	if !FencingMatch(rec.FencingToken, fencing) {
		return nil, ErrStaleFencing
	}
	pending := rec.Pending
	rec.Pending = nil
	rec.TimerActive = false
	rec.UpdatedAt = time.Now()
	return pending, nil
}

func (s *MemoryDebounceStore) PurgeStale(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for contact, rec := range s.rows {
		if rec.UpdatedAt.Before(olderThan) {
			delete(s.rows, contact)
			n++
		}
	}
	return n, nil
}

// MemoryLedgerStore is a map-backed LedgerStore keyed by contact and bucket.
type MemoryLedgerStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]*NegotiationRecord // contact -> bucket -> row
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{rows: make(map[string]map[string]*NegotiationRecord)}
}

func (s *MemoryLedgerStore) Latest(_ context.Context, contact string) (*NegotiationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buckets := s.rows[contact]
	var latest *NegotiationRecord
	for _, rec := range buckets {
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryLedgerStore) Buckets(_ context.Context, contact string, buckets []string) ([]NegotiationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byBucket := s.rows[contact]
	var out []NegotiationRecord
	for _, b := range buckets {
		if rec, ok := byBucket[b]; ok {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryLedgerStore) Put(_ context.Context, rec *NegotiationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byBucket, ok := s.rows[rec.Contact]
	if !ok {
		byBucket = make(map[string]*NegotiationRecord)
		s.rows[rec.Contact] = byBucket
	}
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	byBucket[rec.SessionBucket] = &cp
	return nil
}

func (s *MemoryLedgerStore) SetMemoryStamp(_ context.Context, contact, bucket, stamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[contact][bucket]
	if !ok {
		return ErrNotFound
	}
	rec.MemoryStamp = stamp
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryLedgerStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for contact, byBucket := range s.rows {
		for bucket, rec := range byBucket {
			if rec.UpdatedAt.Before(cutoff) {
				delete(byBucket, bucket)
				n++
			}
		}
		if len(byBucket) == 0 {
			delete(s.rows, contact)
		}
	}
	return n, nil
}

// MemoryHistoryStore is a map-backed HistoryStore.
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	entries   map[string][]HistoryEntry
	responses map[string]int
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		entries:   make(map[string][]HistoryEntry),
		responses: make(map[string]int),
	}
}

func (s *MemoryHistoryStore) Append(_ context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Contact] = append(s.entries[entry.Contact], entry)
	return nil
}

func (s *MemoryHistoryStore) Recent(_ context.Context, contact string, limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[contact]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]HistoryEntry(nil), all...), nil
}

func (s *MemoryHistoryStore) IncrementResponses(_ context.Context, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[contact]++
	return nil
}

// ResponseCount is a test hook.
func (s *MemoryHistoryStore) ResponseCount(contact string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responses[contact]
}
