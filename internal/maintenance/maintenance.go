// Package maintenance runs the periodic purges: debounce batches whose
// timers died without firing, and ledger rows past the memory window.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/freightdesk/convoy/internal/store"
)

// Job purges expired storage rows on a schedule.
type Job struct {
	stores          *store.Stores
	batchStaleAfter time.Duration
	memoryWindow    time.Duration
	now             func() time.Time

	cron *rcron.Cron
}

func NewJob(stores *store.Stores, batchStaleAfter, memoryWindow time.Duration) *Job {
	return &Job{
		stores:          stores,
		batchStaleAfter: batchStaleAfter,
		memoryWindow:    memoryWindow,
		now:             time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (j *Job) WithClock(now func() time.Time) *Job {
	j.now = now
	return j
}

// Run executes one purge pass.
func (j *Job) Run(ctx context.Context) error {
	now := j.now()

	batches, err := j.stores.Debounce.PurgeStale(ctx, now.Add(-j.batchStaleAfter))
	if err != nil {
		return fmt.Errorf("maintenance: purge stale batches: %w", err)
	}

	ledger, err := j.stores.Ledger.PurgeOlderThan(ctx, now.Add(-j.memoryWindow))
	if err != nil {
		return fmt.Errorf("maintenance: purge expired ledger rows: %w", err)
	}

	if batches > 0 || ledger > 0 {
		slog.Info("maintenance purge", "stale_batches", batches, "expired_ledger_rows", ledger)
	}
	return nil
}

// Start schedules recurring purges per the cron spec. An empty spec
// disables maintenance.
func (j *Job) Start(spec string) error {
	if spec == "" {
		slog.Info("maintenance disabled, no cron spec")
		return nil
	}

	j.cron = rcron.New()
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := j.Run(ctx); err != nil {
			slog.Error("maintenance pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance: bad cron spec %q: %w", spec, err)
	}

	j.cron.Start()
	slog.Info("maintenance scheduled", "spec", spec)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}
