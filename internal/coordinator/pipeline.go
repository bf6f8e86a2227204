// Package coordinator is the top of the pipeline: it normalizes inbound
// messages, runs them through the debounce cycle, and turns drained
// batches into dispatched agent turns.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/debounce"
	"github.com/freightdesk/convoy/internal/dispatch"
	"github.com/freightdesk/convoy/internal/history"
	"github.com/freightdesk/convoy/internal/ident"
	"github.com/freightdesk/convoy/internal/media"
)

// UnreadFetcher pulls the messages a driver sent on the chat platform
// while the conversation lived on another channel.
type UnreadFetcher interface {
	UnreadMessages(ctx context.Context, contact string) ([]bus.InboundMessage, error)
}

// Dispatcher takes a combined batch the rest of the way to the driver.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) error
}

// Pipeline wires debounce, rendering and dispatch together.
type Pipeline struct {
	debounce   *debounce.Coordinator
	renderer   *media.Renderer
	dispatcher Dispatcher
	history    *history.Service
	chat       UnreadFetcher
	tracer     trace.Tracer
}

func NewPipeline(
	deb *debounce.Coordinator,
	renderer *media.Renderer,
	dispatcher Dispatcher,
	hist *history.Service,
	chat UnreadFetcher,
) *Pipeline {
	return &Pipeline{
		debounce:   deb,
		renderer:   renderer,
		dispatcher: dispatcher,
		history:    hist,
		chat:       chat,
		tracer:     otel.Tracer("convoy/coordinator"),
	}
}

// HandleInbound accepts one webhook message. Most messages just land in
// the debounce batch; channel transitions trigger the resume flow, and a
// degraded store processes the message immediately.
func (p *Pipeline) HandleInbound(ctx context.Context, msg bus.InboundMessage) error {
	msg.Contact = ident.NormalizeContact(msg.Contact)

	if msg.Kind == bus.KindTransition {
		return p.Resume(ctx, msg.Contact)
	}

	decision, err := p.debounce.Accept(ctx, msg)
	if err != nil {
		return fmt.Errorf("handle inbound: %w", err)
	}
	if decision == debounce.DecisionProcessNow {
		return p.ProcessBatch(ctx, msg.Contact, []bus.InboundMessage{msg}, false)
	}
	return nil
}

// HandleWakeup services a debounce timer firing, whether from the
// in-process scheduler or a cross-process wakeup request.
func (p *Pipeline) HandleWakeup(ctx context.Context, contact string, fencing float64) error {
	msgs, err := p.debounce.Fire(ctx, contact, fencing)
	if err != nil {
		return fmt.Errorf("handle wakeup: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.ProcessBatch(ctx, contact, msgs, false)
}

// Resume fetches unread chat-platform messages after a channel transition
// and processes them in order. The first one may rebuild context from the
// history log; the rest ride the fresh session.
func (p *Pipeline) Resume(ctx context.Context, contact string) error {
	if p.chat == nil {
		slog.Warn("channel transition without chat client, ignoring", "contact", contact)
		return nil
	}
	msgs, err := p.chat.UnreadMessages(ctx, contact)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if len(msgs) == 0 {
		slog.Info("channel transition with no unread messages", "contact", contact)
		return nil
	}
	slog.Info("resuming conversation", "contact", contact, "unread", len(msgs))

	for i, msg := range msgs {
		msg.Contact = contact
		if err := p.ProcessBatch(ctx, contact, []bus.InboundMessage{msg}, i == 0); err != nil {
			return fmt.Errorf("resume message %d: %w", i, err)
		}
	}
	return nil
}

// ProcessBatch combines a drained batch and dispatches it.
func (p *Pipeline) ProcessBatch(ctx context.Context, contact string, msgs []bus.InboundMessage, allowRebuild bool) error {
	ctx, span := p.tracer.Start(ctx, "coordinator.process_batch",
		trace.WithAttributes(
			attribute.String("contact", contact),
			attribute.Int("batch.size", len(msgs)),
		))
	defer span.End()

	rendered := make([]string, len(msgs))
	for i := range msgs {
		rendered[i] = p.renderer.Render(ctx, msgs[i])
	}

	text, replyRef := Combine(msgs, rendered)
	if text == "" {
		slog.Warn("batch rendered to nothing, skipping", "contact", contact, "size", len(msgs))
		return nil
	}

	for i, msg := range msgs {
		p.history.RecordInbound(ctx, contact, msg.Kind, rendered[i])
	}

	err := p.dispatcher.Dispatch(ctx, dispatch.Request{
		Contact:             contact,
		Text:                text,
		ReplyRef:            replyRef,
		AllowContextRebuild: allowRebuild,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("process batch: %w", err)
	}
	return nil
}
