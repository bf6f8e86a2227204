// Package debounce implements per-driver message accumulation. Rapid
// message bursts collapse into one batch: the first message arms a timer,
// later messages extend it, and only the wakeup holding the current fencing
// token may drain the batch.
package debounce

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/store"
)

// Decision tells the caller what Accept did with the message.
type Decision int

const (
	// DecisionArmed means this was the first message of a burst; a timer
	// was armed with the initial delay.
	DecisionArmed Decision = iota
	// DecisionExtended means the message joined a pending batch and the
	// timer was re-armed with the extension delay.
	DecisionExtended
	// DecisionProcessNow means the store is unavailable; the caller must
	// process the message immediately without debouncing.
	DecisionProcessNow
)

// Scheduler arranges a future wakeup carrying a fencing token. The in
// process implementation sleeps on a timer; a cross-process one posts a
// wakeup request back to the service.
type Scheduler interface {
	ScheduleWakeup(ctx context.Context, contact string, fencing float64, delay time.Duration) error
}

// Coordinator drives the accumulate/extend/drain cycle against a
// DebounceStore.
type Coordinator struct {
	store          store.DebounceStore
	sched          Scheduler
	initialDelay   time.Duration
	extensionDelay time.Duration
	now            func() time.Time
}

func NewCoordinator(st store.DebounceStore, sched Scheduler, initial, extension time.Duration) *Coordinator {
	return &Coordinator{
		store:          st,
		sched:          sched,
		initialDelay:   initial,
		extensionDelay: extension,
		now:            time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Accept records an inbound message and arms or extends the contact's
// timer. Storage trouble degrades to immediate processing rather than
// dropping the message.
func (c *Coordinator) Accept(ctx context.Context, msg bus.InboundMessage) (Decision, error) {
	contact := msg.Contact
	fencing := c.fencingToken()

	rec, err := c.store.Get(ctx, contact)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = &store.BatchRecord{Contact: contact}
	case err != nil:
		slog.Error("debounce store unavailable, processing message immediately",
			"contact", contact, "error", err)
		return DecisionProcessNow, nil
	}

	armed := rec.TimerActive && len(rec.Pending) > 0
	rec.Pending = append(rec.Pending, msg)
	rec.FencingToken = fencing
	rec.TimerActive = true
	rec.LastMessageAt = c.now().Unix()
	if msg.Text != "" {
		rec.LastText = msg.Text
	}

	if err := c.store.Put(ctx, rec); err != nil {
		slog.Error("debounce store write failed, processing message immediately",
			"contact", contact, "error", err)
		return DecisionProcessNow, nil
	}

	delay := c.initialDelay
	decision := DecisionArmed
	if armed {
		delay = c.extensionDelay
		decision = DecisionExtended
	}

	if err := c.sched.ScheduleWakeup(ctx, contact, fencing, delay); err != nil {
		// The batch row is written; a later message or the maintenance
		// purge will pick it up. Still worth shouting about.
		slog.Error("wakeup scheduling failed", "contact", contact, "error", err)
	}

	slog.Debug("message accepted",
		"contact", contact, "pending", len(rec.Pending), "delay", delay, "fencing", fencing)
	return decision, nil
}

// Fire claims the batch for a wakeup. A nil, nil return means the wakeup
// was stale (a later message re-armed the timer) or the batch vanished;
// either way there is nothing to process.
func (c *Coordinator) Fire(ctx context.Context, contact string, fencing float64) ([]bus.InboundMessage, error) {
	pending, err := c.store.Drain(ctx, contact, fencing)
	switch {
	case errors.Is(err, store.ErrStaleFencing):
		slog.Debug("stale wakeup ignored", "contact", contact, "fencing", fencing)
		return nil, nil
	case errors.Is(err, store.ErrNotFound):
		slog.Debug("wakeup for missing batch ignored", "contact", contact)
		return nil, nil
	case err != nil:
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return pending, nil
}

// fencingToken is epoch seconds with sub-second precision, unique enough to
// distinguish timer armings a few milliseconds apart.
func (c *Coordinator) fencingToken() float64 {
	return float64(c.now().UnixNano()) / float64(time.Second)
}
