package history

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/freightdesk/convoy/internal/store"
)

func TestContextPrefixOrdersAndDelimits(t *testing.T) {
	st := store.NewMemoryHistoryStore()
	svc := NewService(st, 10).WithClock(func() time.Time {
		return time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)
	})
	ctx := context.Background()

	svc.RecordInbound(ctx, "5511999990000", "text", "any loads to Recife?")
	svc.RecordReply(ctx, "5511999990000", "Yes, two options today.")
	svc.RecordInbound(ctx, "5511999990000", "text", "what do they pay?")

	prefix := svc.ContextPrefix(ctx, "5511999990000")
	if !strings.HasSuffix(strings.TrimSpace(prefix), Delimiter) {
		t.Errorf("prefix does not end with delimiter:\n%s", prefix)
	}
	iDriver := strings.Index(prefix, "DRIVER: any loads to Recife?")
	iReply := strings.Index(prefix, "ASSISTANT: Yes, two options today.")
	iSecond := strings.Index(prefix, "DRIVER: what do they pay?")
	if iDriver < 0 || iReply < 0 || iSecond < 0 {
		t.Fatalf("missing entries:\n%s", prefix)
	}
	if !(iDriver < iReply && iReply < iSecond) {
		t.Error("entries out of chronological order")
	}
}

func TestContextPrefixEmptyHistory(t *testing.T) {
	svc := NewService(store.NewMemoryHistoryStore(), 10)
	if got := svc.ContextPrefix(context.Background(), "5511999990000"); got != "" {
		t.Errorf("prefix for empty history = %q, want empty", got)
	}
}

func TestRecordReplyBumpsCounter(t *testing.T) {
	st := store.NewMemoryHistoryStore()
	svc := NewService(st, 10)
	ctx := context.Background()

	svc.RecordReply(ctx, "5511999990000", "done")
	svc.RecordReply(ctx, "5511999990000", "and again")
	if n := st.ResponseCount("5511999990000"); n != 2 {
		t.Errorf("response count = %d, want 2", n)
	}
}

func TestRecordInboundSkipsEmptyText(t *testing.T) {
	st := store.NewMemoryHistoryStore()
	svc := NewService(st, 10)
	ctx := context.Background()

	svc.RecordInbound(ctx, "5511999990000", "audio", "")
	entries, _ := st.Recent(ctx, "5511999990000", 10)
	if len(entries) != 0 {
		t.Errorf("empty inbound recorded: %d entries", len(entries))
	}
}
