// Package gateway delivers rendered replies to drivers through the chat
// delivery gateway. The gateway address can move between deployments, so
// the client resolves it dynamically with an env-configured fallback.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
)

// Resolver yields the current gateway base URL. An empty string with nil
// error means no gateway is reachable right now.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// StaticResolver always returns the configured base URL.
type StaticResolver string

func (r StaticResolver) Resolve(context.Context) (string, error) { return string(r), nil }

// Client posts outbound replies to the resolved gateway.
type Client struct {
	resolver Resolver
	fallback string
	http     *http.Client
}

func NewClient(resolver Resolver, fallback string, timeout time.Duration) *Client {
	return &Client{
		resolver: resolver,
		fallback: strings.TrimRight(fallback, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

// Send delivers one reply. An unresolvable gateway skips delivery with a
// warning instead of failing the batch; the reply is already in the
// history log.
func (c *Client) Send(ctx context.Context, reply bus.OutboundReply) error {
	base, err := c.baseURL(ctx)
	if err != nil {
		return err
	}
	if base == "" {
		slog.Warn("delivery gateway unresolvable, skipping send", "contact", reply.Contact)
		return nil
	}

	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send reply: gateway status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) baseURL(ctx context.Context) (string, error) {
	if c.resolver != nil {
		base, err := c.resolver.Resolve(ctx)
		if err != nil {
			slog.Warn("gateway resolution failed, falling back", "error", err)
		} else if base != "" {
			return strings.TrimRight(base, "/"), nil
		}
	}
	return c.fallback, nil
}
