package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/freightdesk/convoy/internal/bus"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeReader struct {
	text string
	err  error
}

func (f fakeReader) Read(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeGeocoder struct {
	address string
	err     error
}

func (f fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return f.address, f.err
}

func TestRenderText(t *testing.T) {
	r := NewRenderer(nil, nil, nil)
	got := r.Render(context.Background(), bus.InboundMessage{Kind: bus.KindText, Text: "hello"})
	if got != "hello" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderAudio(t *testing.T) {
	tests := []struct {
		name        string
		transcriber Transcriber
		mediaURL    string
		want        string
	}{
		{"tagged transcript", fakeTranscriber{text: "chego as 15h"}, "https://cdn/x.ogg",
			TagAudio + " chego as 15h"},
		{"failure degrades", fakeTranscriber{err: errors.New("boom")}, "https://cdn/x.ogg",
			PlaceholderAudio},
		{"empty transcript degrades", fakeTranscriber{text: "  "}, "https://cdn/x.ogg",
			PlaceholderAudio},
		{"missing url degrades", fakeTranscriber{text: "ignored"}, "", PlaceholderAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRenderer(tt.transcriber, nil, nil)
			got := r.Render(context.Background(), bus.InboundMessage{
				Kind: bus.KindAudio, MediaURL: tt.mediaURL,
			})
			if got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderDocumentWithCaption(t *testing.T) {
	r := NewRenderer(nil, fakeReader{text: "invoice 123"}, nil)
	got := r.Render(context.Background(), bus.InboundMessage{
		Kind: bus.KindDocument, MediaURL: "https://cdn/doc.pdf", Text: "my invoice",
	})
	if !strings.HasPrefix(got, TagDocument+" invoice 123") {
		t.Errorf("Render = %q", got)
	}
	if !strings.Contains(got, "Caption: my invoice") {
		t.Errorf("caption dropped: %q", got)
	}
}

func TestRenderImageFailureDegrades(t *testing.T) {
	r := NewRenderer(nil, fakeReader{err: errors.New("ocr down")}, nil)
	got := r.Render(context.Background(), bus.InboundMessage{
		Kind: bus.KindImage, MediaURL: "https://cdn/pic.jpg",
	})
	if got != PlaceholderImage {
		t.Errorf("Render = %q, want placeholder", got)
	}
}

func TestRenderLocation(t *testing.T) {
	loc := &bus.Location{Latitude: -23.5505, Longitude: -46.6333}

	t.Run("uses provided address", func(t *testing.T) {
		r := NewRenderer(nil, nil, fakeGeocoder{address: "should not be used"})
		withAddr := &bus.Location{Latitude: -23.5505, Longitude: -46.6333, Address: "Av. Paulista, SP"}
		got := r.Render(context.Background(), bus.InboundMessage{Kind: bus.KindLocation, Location: withAddr})
		if !strings.Contains(got, "Av. Paulista, SP") {
			t.Errorf("Render = %q", got)
		}
	})

	t.Run("geocodes missing address", func(t *testing.T) {
		r := NewRenderer(nil, nil, fakeGeocoder{address: "near Sao Paulo, SP"})
		got := r.Render(context.Background(), bus.InboundMessage{Kind: bus.KindLocation, Location: loc})
		if !strings.Contains(got, "near Sao Paulo, SP") {
			t.Errorf("Render = %q", got)
		}
	})

	t.Run("geocode failure keeps coordinates", func(t *testing.T) {
		r := NewRenderer(nil, nil, fakeGeocoder{err: errors.New("down")})
		got := r.Render(context.Background(), bus.InboundMessage{Kind: bus.KindLocation, Location: loc})
		if !strings.Contains(got, "(-23.550500, -46.633300)") {
			t.Errorf("Render = %q", got)
		}
	})

	t.Run("nil location degrades", func(t *testing.T) {
		r := NewRenderer(nil, nil, nil)
		got := r.Render(context.Background(), bus.InboundMessage{Kind: bus.KindLocation})
		if got != PlaceholderLocation {
			t.Errorf("Render = %q", got)
		}
	})
}
