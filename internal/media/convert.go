// Package media turns non-text driver messages into agent-readable text
// and renders text replies back to audio. The converters are opaque HTTP
// services; this package only frames requests and degrades gracefully when
// one misbehaves.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

// Reader extracts text from a document or image.
type Reader interface {
	Read(ctx context.Context, mediaURL string) (string, error)
}

// Synthesizer renders text to an audio file and returns its public name
// and URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (name, url string, err error)
}

// Geocoder resolves coordinates to an approximate address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// HTTPConverters implements every converter against configured endpoints.
type HTTPConverters struct {
	TranscribeURL string
	OCRURL        string
	SynthesizeURL string
	GeocodeURL    string
	Client        *http.Client
}

func NewHTTPConverters(transcribe, ocr, synthesize, geocode string, timeout time.Duration) *HTTPConverters {
	return &HTTPConverters{
		TranscribeURL: transcribe,
		OCRURL:        ocr,
		SynthesizeURL: synthesize,
		GeocodeURL:    geocode,
		Client:        &http.Client{Timeout: timeout},
	}
}

func (c *HTTPConverters) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, c.TranscribeURL, map[string]string{"url": mediaURL}, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return out.Text, nil
}

func (c *HTTPConverters) Read(ctx context.Context, mediaURL string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, c.OCRURL, map[string]string{"url": mediaURL}, &out); err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}
	return out.Text, nil
}

func (c *HTTPConverters) Synthesize(ctx context.Context, text string) (string, string, error) {
	var out struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := c.post(ctx, c.SynthesizeURL, map[string]string{"text": text}, &out); err != nil {
		return "", "", fmt.Errorf("synthesize: %w", err)
	}
	return out.Name, out.URL, nil
}

func (c *HTTPConverters) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	payload := map[string]float64{"latitude": lat, "longitude": lon}
	if err := c.postAny(ctx, c.GeocodeURL, payload, &out); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	return out.Address, nil
}

func (c *HTTPConverters) post(ctx context.Context, url string, payload map[string]string, out any) error {
	return c.postAny(ctx, url, payload, out)
}

func (c *HTTPConverters) postAny(ctx context.Context, url string, payload, out any) error {
	if url == "" {
		return fmt.Errorf("converter endpoint not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("converter status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
