package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
	"github.com/freightdesk/convoy/internal/config"
)

type fakePipeline struct {
	inbound []bus.InboundMessage
	wakeups []struct {
		contact string
		fencing float64
	}
	err error
}

func (f *fakePipeline) HandleInbound(_ context.Context, msg bus.InboundMessage) error {
	if f.err != nil {
		return f.err
	}
	f.inbound = append(f.inbound, msg)
	return nil
}

func (f *fakePipeline) HandleWakeup(_ context.Context, contact string, fencing float64) error {
	if f.err != nil {
		return f.err
	}
	f.wakeups = append(f.wakeups, struct {
		contact string
		fencing float64
	}{contact, fencing})
	return nil
}

func newTestServer(p *fakePipeline, cfg config.ServerConfig) *httptest.Server {
	mux := http.NewServeMux()
	NewHandler(p, cfg).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func TestHandleMessageAcceptsAndNormalizes(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, config.ServerConfig{})
	defer srv.Close()

	body := `{"contact": "+55 (11) 99999-0000", "kind": "text", "text": "hi"}`
	resp, err := http.Post(srv.URL+"/v1/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(p.inbound) != 1 || p.inbound[0].Contact != "5511999990000" {
		t.Errorf("inbound = %+v, want normalized contact", p.inbound)
	}
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, config.ServerConfig{MaxMessageChars: 10})
	defer srv.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing kind", `{"contact": "5511", "text": "hi"}`, http.StatusBadRequest},
		{"oversized text", `{"contact": "5511", "kind": "text", "text": "0123456789abc"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/messages", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if len(p.inbound) != 0 {
		t.Errorf("rejected requests reached the pipeline: %+v", p.inbound)
	}
}

func TestHandleMessageRateLimits(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, config.ServerConfig{RateLimitRPM: 2})
	defer srv.Close()

	body := `{"contact": "5511999990000", "kind": "text", "text": "hi"}`
	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.Post(srv.URL+"/v1/messages", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
	if len(p.inbound) != 2 {
		t.Errorf("pipeline saw %d messages, want 2", len(p.inbound))
	}
}

func TestHandleWakeup(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, config.ServerConfig{})
	defer srv.Close()

	body := `{"action": "processAccumulated", "contact": "5511999990000", "fencingValue": 1741964588.114}`
	resp, err := http.Post(srv.URL+"/v1/wakeups", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(p.wakeups) != 1 || p.wakeups[0].fencing != 1741964588.114 {
		t.Errorf("wakeups = %+v", p.wakeups)
	}
}

func TestHandleWakeupHonorsDelay(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, config.ServerConfig{})
	defer srv.Close()

	body := `{"action": "processAccumulated", "contact": "5511999990000", "fencingValue": 1.0, "delaySeconds": 0.05}`
	start := time.Now()
	resp, err := http.Post(srv.URL+"/v1/wakeups", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("wakeup returned after %v, want the delay honored", elapsed)
	}
	if len(p.wakeups) != 1 {
		t.Errorf("wakeups = %+v", p.wakeups)
	}
}

func TestHandleWakeupRejectsUnknownAction(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(p, config.ServerConfig{})
	defer srv.Close()

	body := `{"action": "somethingElse", "contact": "5511999990000"}`
	resp, err := http.Post(srv.URL+"/v1/wakeups", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(p.wakeups) != 0 {
		t.Errorf("unknown action reached the pipeline: %+v", p.wakeups)
	}
}

func TestHandleMessagePipelineError(t *testing.T) {
	p := &fakePipeline{err: errors.New("boom")}
	srv := newTestServer(p, config.ServerConfig{})
	defer srv.Close()

	body := `{"contact": "5511999990000", "kind": "text", "text": "hi"}`
	resp, err := http.Post(srv.URL+"/v1/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, config.ServerConfig{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !rl.Allow("key") {
			t.Fatalf("request %d denied within limit", i+1)
		}
	}
	if rl.Allow("key") {
		t.Error("fourth request allowed over limit")
	}
	if !rl.Allow("other") {
		t.Error("independent key denied")
	}
}
