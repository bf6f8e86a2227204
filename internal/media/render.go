package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/freightdesk/convoy/internal/bus"
)

// Tags prefixing converted content, so the agent can tell inferred text
// from what the driver literally typed.
const (
	TagAudio    = "Transcribed audio:"
	TagDocument = "Document content:"
	TagImage    = "Image content:"
	TagLocation = "Shared location:"
)

// Placeholders delivered when conversion fails. The batch always goes
// through; the agent just learns the message was unreadable.
const (
	PlaceholderAudio    = "[audio message could not be transcribed]"
	PlaceholderDocument = "[document could not be read]"
	PlaceholderImage    = "[image could not be read]"
	PlaceholderLocation = "[location could not be resolved]"
)

// Renderer converts one inbound message into agent-facing text.
type Renderer struct {
	transcriber Transcriber
	reader      Reader
	geocoder    Geocoder
}

func NewRenderer(transcriber Transcriber, reader Reader, geocoder Geocoder) *Renderer {
	return &Renderer{transcriber: transcriber, reader: reader, geocoder: geocoder}
}

// Render returns the text form of a message. Conversion failures degrade
// to placeholders and are logged; Render never fails.
func (r *Renderer) Render(ctx context.Context, msg bus.InboundMessage) string {
	switch msg.Kind {
	case bus.KindAudio:
		return r.renderAudio(ctx, msg)
	case bus.KindDocument:
		return r.renderVisual(ctx, msg, TagDocument, PlaceholderDocument)
	case bus.KindImage:
		return r.renderVisual(ctx, msg, TagImage, PlaceholderImage)
	case bus.KindLocation:
		return r.renderLocation(ctx, msg)
	default:
		return msg.Text
	}
}

func (r *Renderer) renderAudio(ctx context.Context, msg bus.InboundMessage) string {
	if r.transcriber == nil || msg.MediaURL == "" {
		return PlaceholderAudio
	}
	text, err := r.transcriber.Transcribe(ctx, msg.MediaURL)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("audio transcription failed", "contact", msg.Contact, "error", err)
		return PlaceholderAudio
	}
	return TagAudio + " " + strings.TrimSpace(text)
}

func (r *Renderer) renderVisual(ctx context.Context, msg bus.InboundMessage, tag, placeholder string) string {
	if r.reader == nil || msg.MediaURL == "" {
		return placeholder
	}
	text, err := r.reader.Read(ctx, msg.MediaURL)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("media read failed", "contact", msg.Contact, "kind", msg.Kind, "error", err)
		return placeholder
	}
	out := tag + " " + strings.TrimSpace(text)
	if msg.Text != "" {
		// Caption travels with the media; keep the driver's own words too.
		out += "\nCaption: " + msg.Text
	}
	return out
}

func (r *Renderer) renderLocation(ctx context.Context, msg bus.InboundMessage) string {
	loc := msg.Location
	if loc == nil {
		return PlaceholderLocation
	}

	address := strings.TrimSpace(loc.Address)
	if address == "" && r.geocoder != nil {
		resolved, err := r.geocoder.ReverseGeocode(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			slog.Warn("reverse geocoding failed", "contact", msg.Contact, "error", err)
		} else {
			address = strings.TrimSpace(resolved)
		}
	}

	var parts []string
	if loc.Name != "" {
		parts = append(parts, loc.Name)
	}
	if address != "" {
		parts = append(parts, address)
	}
	parts = append(parts, fmt.Sprintf("(%.6f, %.6f)", loc.Latitude, loc.Longitude))
	return TagLocation + " " + strings.Join(parts, ", ")
}
