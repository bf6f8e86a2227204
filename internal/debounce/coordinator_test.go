package debounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/store"
)

type recordedWakeup struct {
	contact string
	fencing float64
	delay   time.Duration
}

type fakeScheduler struct {
	mu      sync.Mutex
	wakeups []recordedWakeup
	err     error
}

func (f *fakeScheduler) ScheduleWakeup(_ context.Context, contact string, fencing float64, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.wakeups = append(f.wakeups, recordedWakeup{contact, fencing, delay})
	return nil
}

func (f *fakeScheduler) last(t *testing.T) recordedWakeup {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.wakeups) == 0 {
		t.Fatal("no wakeups scheduled")
	}
	return f.wakeups[len(f.wakeups)-1]
}

func msg(contact, text string) bus.InboundMessage {
	return bus.InboundMessage{Contact: contact, Kind: bus.KindText, Text: text}
}

func testClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(250 * time.Millisecond)
		return t
	}
}

func TestAcceptFirstMessageArmsInitialDelay(t *testing.T) {
	st := store.NewMemoryDebounceStore()
	sched := &fakeScheduler{}
	c := NewCoordinator(st, sched, 10*time.Second, 3*time.Second).
		WithClock(testClock(time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)))

	d, err := c.Accept(context.Background(), msg("5511999990000", "hello"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if d != DecisionArmed {
		t.Errorf("decision = %v, want DecisionArmed", d)
	}
	if w := sched.last(t); w.delay != 10*time.Second {
		t.Errorf("delay = %v, want 10s", w.delay)
	}

	rec, err := st.Get(context.Background(), "5511999990000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.TimerActive || len(rec.Pending) != 1 {
		t.Errorf("record = active:%v pending:%d, want active with 1 pending", rec.TimerActive, len(rec.Pending))
	}
}

func TestAcceptSecondMessageExtendsAndRefences(t *testing.T) {
	st := store.NewMemoryDebounceStore()
	sched := &fakeScheduler{}
	c := NewCoordinator(st, sched, 10*time.Second, 3*time.Second).
		WithClock(testClock(time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)))

	ctx := context.Background()
	if _, err := c.Accept(ctx, msg("5511999990000", "first")); err != nil {
		t.Fatal(err)
	}
	firstFencing := sched.last(t).fencing

	d, err := c.Accept(ctx, msg("5511999990000", "second"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if d != DecisionExtended {
		t.Errorf("decision = %v, want DecisionExtended", d)
	}
	w := sched.last(t)
	if w.delay != 3*time.Second {
		t.Errorf("delay = %v, want 3s", w.delay)
	}
	if store.FencingMatch(w.fencing, firstFencing) {
		t.Error("extension reused the previous fencing token")
	}

	rec, _ := st.Get(ctx, "5511999990000")
	if len(rec.Pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(rec.Pending))
	}
	if rec.Pending[0].Text != "first" || rec.Pending[1].Text != "second" {
		t.Error("batch lost arrival order")
	}
}

func TestFireStaleFencingNoops(t *testing.T) {
	st := store.NewMemoryDebounceStore()
	sched := &fakeScheduler{}
	c := NewCoordinator(st, sched, 10*time.Second, 3*time.Second).
		WithClock(testClock(time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)))

	ctx := context.Background()
	c.Accept(ctx, msg("5511999990000", "first"))
	stale := sched.last(t).fencing
	c.Accept(ctx, msg("5511999990000", "second"))
	current := sched.last(t).fencing

	got, err := c.Fire(ctx, "5511999990000", stale)
	if err != nil {
		t.Fatalf("Fire(stale): %v", err)
	}
	if got != nil {
		t.Fatalf("stale wakeup drained %d messages", len(got))
	}

	got, err = c.Fire(ctx, "5511999990000", current)
	if err != nil {
		t.Fatalf("Fire(current): %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("drained %d messages, want 2", len(got))
	}

	// Batch is gone now; a repeat of the same wakeup finds nothing.
	got, err = c.Fire(ctx, "5511999990000", current)
	if err != nil || got != nil {
		t.Errorf("repeat fire = %v messages, err %v; want none", got, err)
	}
}

func TestFireUnknownContactNoops(t *testing.T) {
	c := NewCoordinator(store.NewMemoryDebounceStore(), &fakeScheduler{}, time.Second, time.Second)
	got, err := c.Fire(context.Background(), "5511999990000", 1234.5)
	if err != nil || got != nil {
		t.Errorf("Fire on missing batch = %v, %v; want nil, nil", got, err)
	}
}

type failingStore struct {
	store.DebounceStore
}

func (f *failingStore) Get(context.Context, string) (*store.BatchRecord, error) {
	return nil, errors.New("connection refused")
}

func TestAcceptStoreFailureDegradesToImmediate(t *testing.T) {
	c := NewCoordinator(&failingStore{}, &fakeScheduler{}, time.Second, time.Second)
	d, err := c.Accept(context.Background(), msg("5511999990000", "hello"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if d != DecisionProcessNow {
		t.Errorf("decision = %v, want DecisionProcessNow", d)
	}
}

func TestAcceptIndependentContacts(t *testing.T) {
	st := store.NewMemoryDebounceStore()
	sched := &fakeScheduler{}
	c := NewCoordinator(st, sched, 10*time.Second, 3*time.Second).
		WithClock(testClock(time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)))

	ctx := context.Background()
	c.Accept(ctx, msg("5511999990000", "a"))
	d, _ := c.Accept(ctx, msg("5521888880000", "b"))
	if d != DecisionArmed {
		t.Errorf("second contact decision = %v, want DecisionArmed", d)
	}
}

func TestTimerSchedulerFires(t *testing.T) {
	fired := make(chan recordedWakeup, 1)
	s := NewTimerScheduler(func(_ context.Context, contact string, fencing float64) {
		fired <- recordedWakeup{contact: contact, fencing: fencing}
	})
	defer s.Close()

	if err := s.ScheduleWakeup(context.Background(), "5511999990000", 42.5, 10*time.Millisecond); err != nil {
		t.Fatalf("ScheduleWakeup: %v", err)
	}
	select {
	case w := <-fired:
		if w.contact != "5511999990000" || w.fencing != 42.5 {
			t.Errorf("wakeup = %+v", w)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}
