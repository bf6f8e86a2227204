// Package history records the per-driver conversation log and rebuilds
// agent context from it after a channel transition, when the fresh session
// has no memory of the exchange that happened elsewhere.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freightdesk/convoy/internal/store"
)

// Delimiter separates reconstructed history from the live message in the
// agent prompt.
const Delimiter = "===== NEW MESSAGE FROM DRIVER ====="

// Service wraps the history store with recording and digest building.
type Service struct {
	store store.HistoryStore
	limit int
	now   func() time.Time
}

func NewService(st store.HistoryStore, limit int) *Service {
	if limit <= 0 {
		limit = 30
	}
	return &Service{store: st, limit: limit, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordInbound logs a driver message. Failures are logged and swallowed;
// the log is an aid, not a dependency.
func (s *Service) RecordInbound(ctx context.Context, contact, kind, text string) {
	if text == "" {
		return
	}
	err := s.store.Append(ctx, store.HistoryEntry{
		Contact: contact,
		Role:    store.RoleDriver,
		Kind:    kind,
		Text:    text,
		SentAt:  s.now(),
	})
	if err != nil {
		slog.Warn("history append failed", "contact", contact, "error", err)
	}
}

// RecordReply logs an assistant response and bumps the per-driver response
// counter.
func (s *Service) RecordReply(ctx context.Context, contact, text string) {
	if text != "" {
		err := s.store.Append(ctx, store.HistoryEntry{
			Contact: contact,
			Role:    store.RoleAssistant,
			Text:    text,
			SentAt:  s.now(),
		})
		if err != nil {
			slog.Warn("history append failed", "contact", contact, "error", err)
		}
	}
	if err := s.store.IncrementResponses(ctx, contact); err != nil {
		slog.Warn("response counter increment failed", "contact", contact, "error", err)
	}
}

// ContextPrefix renders recent history into a prompt preamble ending in
// the delimiter. Empty when there is no usable history.
func (s *Service) ContextPrefix(ctx context.Context, contact string) string {
	entries, err := s.store.Recent(ctx, contact, s.limit)
	if err != nil {
		slog.Warn("history fetch failed, continuing without context",
			"contact", contact, "error", err)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, e := range entries {
		label := "DRIVER"
		if e.Role == store.RoleAssistant {
			label = "ASSISTANT"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, e.Text)
	}
	b.WriteString(Delimiter)
	b.WriteString("\n")
	return b.String()
}
