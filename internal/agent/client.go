// Package agent is the client for the stateless conversational agent. The
// agent keeps no state of its own; every call carries the session and
// memory pointers that scope what it remembers.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/freightdesk/convoy/internal/backend"
)

// FallbackReply goes out when the agent fails outright, so the driver
// never gets dead air.
const FallbackReply = "Sorry, I could not process your message right now. Please send it again in a moment."

// Invoker is the surface the dispatcher depends on.
type Invoker interface {
	Invoke(ctx context.Context, sessionPointer, memoryPointer, text string, attrs map[string]string) (string, error)
}

// Client calls the agent over HTTP JSON with rate limiting and bounded
// retry.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	retry   backend.RetryConfig
}

func NewClient(baseURL, token string, timeout time.Duration, rpm, maxRetries int) *Client {
	if rpm <= 0 {
		rpm = 30
	}
	retry := backend.DefaultRetryConfig()
	if maxRetries >= 0 {
		retry.MaxRetries = maxRetries
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		retry:   retry,
	}
}

type invokeRequest struct {
	SessionID  string            `json:"session_id"`
	MemoryID   string            `json:"memory_id,omitempty"`
	Input      string            `json:"input"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type invokeResponse struct {
	Output string `json:"output"`
}

// Invoke sends one turn to the agent and returns its raw reply text. The
// rate limiter throttles bursts before any bytes hit the wire.
func (c *Client) Invoke(ctx context.Context, sessionPointer, memoryPointer, text string, attrs map[string]string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("agent rate limit: %w", err)
	}

	body, err := json.Marshal(invokeRequest{
		SessionID:  sessionPointer,
		MemoryID:   memoryPointer,
		Input:      text,
		Attributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("encode agent request: %w", err)
	}

	return backend.RetryDo(ctx, c.retry, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", &backend.HTTPError{StatusCode: resp.StatusCode}
		}

		var out invokeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode agent response: %w", err)
		}
		return out.Output, nil
	})
}
