// Package dispatch turns a combined driver message into a delivered reply:
// resolve identifiers, assemble agent attributes, invoke the agent, render
// the response and hand it to the delivery gateway.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/freightdesk/convoy/internal/agent"
	"github.com/freightdesk/convoy/internal/backend"
	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/history"
	"github.com/freightdesk/convoy/internal/lifecycle"
	"github.com/freightdesk/convoy/internal/media"
	"github.com/freightdesk/convoy/internal/store"
)

// Sender delivers a rendered reply.
type Sender interface {
	Send(ctx context.Context, reply bus.OutboundReply) error
}

// DriverDirectory looks up driver profiles.
type DriverDirectory interface {
	DriverByContact(ctx context.Context, contact string) (*backend.Driver, error)
}

// OfferSource looks up cargo offers.
type OfferSource interface {
	OfferByCargoID(ctx context.Context, cargoID string) (*backend.Offer, error)
}

// Request is one combined batch ready for the agent.
type Request struct {
	Contact string
	Text    string
	// ReplyRef is the quoted-message reference from the batch, when any.
	ReplyRef *bus.ReplyRef
	// AllowContextRebuild permits prepending the history digest if the
	// session turns out to be renewed. Set for the first message after a
	// channel transition.
	AllowContextRebuild bool
}

// Dispatcher wires the downstream half of the pipeline.
type Dispatcher struct {
	lifecycle *lifecycle.Manager
	history   *history.Service
	ledger    store.LedgerStore
	drivers   DriverDirectory
	offers    OfferSource
	agent     agent.Invoker
	sender    Sender
	tts       media.Synthesizer
	now       func() time.Time
}

func NewDispatcher(
	lc *lifecycle.Manager,
	hist *history.Service,
	ledger store.LedgerStore,
	drivers DriverDirectory,
	offers OfferSource,
	invoker agent.Invoker,
	sender Sender,
	tts media.Synthesizer,
) *Dispatcher {
	return &Dispatcher{
		lifecycle: lc,
		history:   hist,
		ledger:    ledger,
		drivers:   drivers,
		offers:    offers,
		agent:     invoker,
		sender:    sender,
		tts:       tts,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch runs one request through the agent and out to the driver.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	session, err := d.lifecycle.GetOrCreateSession(ctx, req.Contact)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	contact := session.Contact

	memoryPointer, err := d.lifecycle.GetOrCreateMemory(ctx, contact, session.Bucket)
	if err != nil {
		slog.Warn("memory pointer unavailable, continuing without",
			"contact", contact, "error", err)
		memoryPointer = ""
	}

	text := req.Text
	if req.AllowContextRebuild && session.Renewed {
		if prefix := d.history.ContextPrefix(ctx, contact); prefix != "" {
			text = prefix + text
		}
	}

	driver := d.lookupDriver(ctx, contact)
	attrs := d.buildAttributes(ctx, contact, session, driver, req.ReplyRef)

	reply, err := d.agent.Invoke(ctx, session.Pointer, memoryPointer, text, attrs)
	if err != nil {
		slog.Error("agent invocation failed, sending fallback",
			"contact", contact, "error", err)
		reply = agent.FallbackReply
	}
	reply = agent.Sanitize(reply)
	if reply == "" {
		slog.Warn("agent returned empty reply, nothing to deliver", "contact", contact)
		return nil
	}

	out := d.renderReply(ctx, contact, driver, reply)
	if err := d.sender.Send(ctx, out); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	d.history.RecordReply(ctx, contact, reply)
	return nil
}

func (d *Dispatcher) lookupDriver(ctx context.Context, contact string) *backend.Driver {
	if d.drivers == nil {
		return nil
	}
	driver, err := d.drivers.DriverByContact(ctx, contact)
	if err != nil {
		slog.Warn("driver lookup failed", "contact", contact, "error", err)
		return nil
	}
	return driver
}

// buildAttributes assembles the fixed session attribute set the agent
// expects, plus the optional offer summary when the batch replied to a
// negotiation message.
func (d *Dispatcher) buildAttributes(ctx context.Context, contact string, session lifecycle.SessionResult, driver *backend.Driver, replyRef *bus.ReplyRef) map[string]string {
	attrs := map[string]string{
		"contact":        contact,
		"weekday":        d.now().UTC().Weekday().String(),
		"sessionStarted": session.StartedAt,
	}
	if driver != nil {
		attrs["driverId"] = driver.ID
		attrs["driverName"] = driver.Name
		attrs["prefersAudio"] = strconv.FormatBool(driver.PrefersAudio)
	}
	if replyRef != nil && replyRef.SentAt != "" {
		if summary := d.resolveOfferSummary(ctx, contact, replyRef.SentAt); summary != "" {
			attrs["offer"] = summary
		}
	}
	return attrs
}

func (d *Dispatcher) resolveOfferSummary(ctx context.Context, contact, sentAt string) string {
	rec, err := ResolveNegotiation(ctx, d.ledger, contact, sentAt)
	if err != nil || rec == nil {
		slog.Debug("no negotiation for quoted message", "contact", contact, "error", err)
		return ""
	}
	if rec.Facts.CargoID == "" || d.offers == nil {
		return ""
	}
	offer, err := d.offers.OfferByCargoID(ctx, rec.Facts.CargoID)
	if err != nil {
		slog.Warn("offer lookup failed", "contact", contact, "cargo", rec.Facts.CargoID, "error", err)
		return ""
	}
	return offer.Summary()
}

// renderReply prefers an audio reply for drivers who asked for one; any
// synthesis trouble falls back to plain text.
func (d *Dispatcher) renderReply(ctx context.Context, contact string, driver *backend.Driver, reply string) bus.OutboundReply {
	out := bus.OutboundReply{Contact: contact, Text: reply}
	if driver == nil || !driver.PrefersAudio || d.tts == nil {
		return out
	}
	name, url, err := d.tts.Synthesize(ctx, reply)
	if err != nil {
		slog.Warn("speech synthesis failed, sending text", "contact", contact, "error", err)
		return out
	}
	out.Text = ""
	out.AudioName = name
	out.AudioURL = url
	return out
}
