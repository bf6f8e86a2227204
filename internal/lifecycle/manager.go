// Package lifecycle manages the two independently aging identifiers each
// driver conversation runs under: the session pointer (short window,
// resets on inactivity) and the memory pointer (long window, survives many
// sessions). Both live in the negotiation ledger.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freightdesk/convoy/internal/ident"
	"github.com/freightdesk/convoy/internal/store"
)

// Manager applies the session and memory windows to ledger rows.
type Manager struct {
	ledger       store.LedgerStore
	window       time.Duration
	memoryWindow time.Duration
	now          func() time.Time
}

func NewManager(ledger store.LedgerStore, window, memoryWindow time.Duration) *Manager {
	return &Manager{
		ledger:       ledger,
		window:       window,
		memoryWindow: memoryWindow,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// SessionResult is the outcome of a session resolution.
type SessionResult struct {
	Contact string
	Bucket  string
	Pointer string
	// StartedAt is the pointer that opened this negotiation; it survives
	// bucket rotation and anchors reply-to offer matching.
	StartedAt string
	// Renewed is true when a previous session existed and its pointer
	// expired, which is the cue for context reconstruction.
	Renewed bool
}

// GetOrCreateSession resolves the live session for a contact, creating,
// rotating or renewing the ledger row as the windows dictate.
//
// Three regimes:
//   - live pointer, same hour: reuse the row as-is.
//   - live pointer, hour rolled over: copy the row into the new bucket,
//     pointer and start time unchanged (rotation, not renewal).
//   - expired or unreadable pointer: mint a fresh pointer; only the
//     immutable facts and a still-valid memory stamp carry over.
func (m *Manager) GetOrCreateSession(ctx context.Context, contact string) (SessionResult, error) {
	contact = m.ensureContact(contact)
	now := m.now()
	bucket := ident.CurrentSessionBucket(now)

	prev, err := m.ledger.Latest(ctx, contact)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return SessionResult{}, fmt.Errorf("resolve session: %w", err)
	}

	if prev == nil {
		pointer := ident.FreshPointer(now)
		rec := &store.NegotiationRecord{
			Contact:          contact,
			SessionBucket:    bucket,
			SessionPointer:   pointer,
			SessionStartedAt: pointer,
		}
		if err := m.ledger.Put(ctx, rec); err != nil {
			return SessionResult{}, fmt.Errorf("create session: %w", err)
		}
		slog.Info("session created", "contact", contact, "bucket", bucket)
		return SessionResult{Contact: contact, Bucket: bucket, Pointer: pointer, StartedAt: pointer}, nil
	}

	age, ageErr := ident.PointerAge(prev.SessionPointer, now)
	if ageErr == nil && age < m.window {
		if prev.SessionBucket == bucket {
			return SessionResult{
				Contact: contact, Bucket: bucket,
				Pointer: prev.SessionPointer, StartedAt: prev.SessionStartedAt,
			}, nil
		}
		// Hour rolled over mid-conversation: same session, new bucket.
		rec := &store.NegotiationRecord{
			Contact:          contact,
			SessionBucket:    bucket,
			SessionPointer:   prev.SessionPointer,
			SessionStartedAt: prev.SessionStartedAt,
			MemoryStamp:      prev.MemoryStamp,
			Facts:            prev.Facts,
		}
		if err := m.ledger.Put(ctx, rec); err != nil {
			return SessionResult{}, fmt.Errorf("rotate session bucket: %w", err)
		}
		slog.Debug("session bucket rotated", "contact", contact, "bucket", bucket)
		return SessionResult{
			Contact: contact, Bucket: bucket,
			Pointer: prev.SessionPointer, StartedAt: prev.SessionStartedAt,
		}, nil
	}
	if ageErr != nil {
		slog.Warn("unreadable session pointer, renewing",
			"contact", contact, "pointer", prev.SessionPointer, "error", ageErr)
	}

	pointer := ident.FreshPointer(now)
	rec := &store.NegotiationRecord{
		Contact:          contact,
		SessionBucket:    bucket,
		SessionPointer:   pointer,
		SessionStartedAt: pointer,
		MemoryStamp:      m.inheritableMemoryStamp(prev.MemoryStamp, now),
		Facts:            prev.Facts,
	}
	if err := m.ledger.Put(ctx, rec); err != nil {
		return SessionResult{}, fmt.Errorf("renew session: %w", err)
	}
	slog.Info("session renewed", "contact", contact, "bucket", bucket)
	return SessionResult{
		Contact: contact, Bucket: bucket,
		Pointer: pointer, StartedAt: pointer, Renewed: true,
	}, nil
}

// GetOrCreateMemory resolves the memory pointer for a contact's current
// ledger row, minting a fresh stamp when the stored one is absent, expired
// or unreadable.
func (m *Manager) GetOrCreateMemory(ctx context.Context, contact, bucket string) (string, error) {
	now := m.now()

	recs, err := m.ledger.Buckets(ctx, contact, []string{bucket})
	if err != nil {
		return "", fmt.Errorf("resolve memory: %w", err)
	}
	var stamp string
	if len(recs) > 0 {
		stamp = m.inheritableMemoryStamp(recs[0].MemoryStamp, now)
	}

	if stamp == "" {
		stamp = ident.FreshPointer(now)
		if err := m.ledger.SetMemoryStamp(ctx, contact, bucket, stamp); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return "", fmt.Errorf("persist memory stamp: %w", err)
			}
			if err := m.ledger.Put(ctx, &store.NegotiationRecord{
				Contact:        contact,
				SessionBucket:  bucket,
				SessionPointer: ident.FreshPointer(now),
				MemoryStamp:    stamp,
			}); err != nil {
				return "", fmt.Errorf("persist memory stamp: %w", err)
			}
		}
		slog.Info("memory pointer minted", "contact", contact, "bucket", bucket)
	}

	return ident.MemoryPointer(contact, ident.NormalizeToISO(stamp)), nil
}

// UpdateFacts merges non-empty incoming fact fields into the contact's
// current row. Zero-valued fields leave the stored value alone.
func (m *Manager) UpdateFacts(ctx context.Context, contact, bucket string, facts store.Facts) error {
	recs, err := m.ledger.Buckets(ctx, contact, []string{bucket})
	if err != nil {
		return fmt.Errorf("update facts: %w", err)
	}
	if len(recs) == 0 {
		return store.ErrNotFound
	}
	rec := recs[0]
	mergeFacts(&rec.Facts, facts)
	if err := m.ledger.Put(ctx, &rec); err != nil {
		return fmt.Errorf("update facts: %w", err)
	}
	return nil
}

// inheritableMemoryStamp returns the stamp if it is still inside the
// memory window, otherwise empty.
func (m *Manager) inheritableMemoryStamp(stamp string, now time.Time) string {
	if stamp == "" {
		return ""
	}
	age, err := ident.PointerAge(stamp, now)
	if err != nil {
		slog.Warn("unreadable memory stamp dropped", "stamp", stamp, "error", err)
		return ""
	}
	if age >= m.memoryWindow {
		return ""
	}
	return stamp
}

// ensureContact substitutes a synthetic identifier when the channel failed
// to supply one, so a broken webhook payload still gets a reply path.
func (m *Manager) ensureContact(contact string) string {
	if contact != "" {
		return contact
	}
	synthetic := "anon-" + uuid.NewString()
	slog.Warn("missing contact, using synthetic identifier", "contact", synthetic)
	return synthetic
}

func mergeFacts(dst *store.Facts, src store.Facts) {
	if src.CargoID != "" {
		dst.CargoID = src.CargoID
	}
	if src.TractorVehicle != "" {
		dst.TractorVehicle = src.TractorVehicle
	}
	if src.TractorVehicleID != "" {
		dst.TractorVehicleID = src.TractorVehicleID
	}
	if src.VehicleEquipmentID != "" {
		dst.VehicleEquipmentID = src.VehicleEquipmentID
	}
	if len(src.EquipmentIDs) > 0 {
		dst.EquipmentIDs = src.EquipmentIDs
	}
	if src.VehicleTypeID != "" {
		dst.VehicleTypeID = src.VehicleTypeID
	}
	if src.EquipmentTypeID != "" {
		dst.EquipmentTypeID = src.EquipmentTypeID
	}
	if src.TractorPlate != "" {
		dst.TractorPlate = src.TractorPlate
	}
	if src.EquipmentPlate != "" {
		dst.EquipmentPlate = src.EquipmentPlate
	}
}
