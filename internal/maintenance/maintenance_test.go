package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/freightdesk/convoy/internal/store"
)

func TestRunPurgesExpiredRows(t *testing.T) {
	ctx := context.Background()
	stores := store.NewMemoryStores()
	now := time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)

	stores.Debounce.Put(ctx, &store.BatchRecord{
		Contact:   "5511999990000",
		UpdatedAt: now.Add(-2 * time.Hour),
	})
	stores.Debounce.Put(ctx, &store.BatchRecord{
		Contact:   "5511999990001",
		UpdatedAt: now.Add(-5 * time.Minute),
	})
	stores.Ledger.Put(ctx, &store.NegotiationRecord{
		Contact:       "5511999990000",
		SessionBucket: "2025-03-01T10:00:00Z",
		UpdatedAt:     now.Add(-10 * 24 * time.Hour),
	})
	stores.Ledger.Put(ctx, &store.NegotiationRecord{
		Contact:       "5511999990000",
		SessionBucket: "2025-03-14T15:00:00Z",
		UpdatedAt:     now.Add(-time.Hour),
	})

	job := NewJob(stores, 30*time.Minute, 7*24*time.Hour).
		WithClock(func() time.Time { return now })
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := stores.Debounce.Get(ctx, "5511999990000"); err != store.ErrNotFound {
		t.Error("stale batch survived the purge")
	}
	if _, err := stores.Debounce.Get(ctx, "5511999990001"); err != nil {
		t.Errorf("fresh batch was purged: %v", err)
	}

	recs, err := stores.Ledger.Buckets(ctx, "5511999990000",
		[]string{"2025-03-01T10:00:00Z", "2025-03-14T15:00:00Z"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].SessionBucket != "2025-03-14T15:00:00Z" {
		t.Errorf("surviving ledger rows = %+v, want only the recent bucket", recs)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	job := NewJob(store.NewMemoryStores(), time.Hour, time.Hour)
	if err := job.Start("not a cron spec"); err == nil {
		t.Error("bad cron spec accepted")
	}
}

func TestStartEmptySpecDisables(t *testing.T) {
	job := NewJob(store.NewMemoryStores(), time.Hour, time.Hour)
	if err := job.Start(""); err != nil {
		t.Errorf("empty spec should disable quietly: %v", err)
	}
	job.Stop()
}
