package coordinator

import (
	"strings"

	"github.com/freightdesk/convoy/internal/bus"
)

// Combine flattens a drained batch into one agent prompt. rendered holds
// the text form of each message, index-aligned with msgs. Quoted-message
// context leads, converted media follows, and the driver's typed lines
// close the prompt; within each group arrival order is preserved.
func Combine(msgs []bus.InboundMessage, rendered []string) (string, *bus.ReplyRef) {
	var replyRef *bus.ReplyRef
	var mediaParts, textParts []string

	for i, msg := range msgs {
		if replyRef == nil && msg.ReplyTo != nil {
			replyRef = msg.ReplyTo
		}
		if i >= len(rendered) || strings.TrimSpace(rendered[i]) == "" {
			continue
		}
		if msg.Kind == bus.KindText || msg.Kind == "" {
			textParts = append(textParts, rendered[i])
		} else {
			mediaParts = append(mediaParts, rendered[i])
		}
	}

	var parts []string
	if replyRef != nil && strings.TrimSpace(replyRef.Text) != "" {
		parts = append(parts, "In reply to: \""+strings.TrimSpace(replyRef.Text)+"\"")
	}
	parts = append(parts, mediaParts...)
	parts = append(parts, textParts...)

	return strings.Join(parts, "\n"), replyRef
}
