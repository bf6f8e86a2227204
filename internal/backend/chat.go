package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/freightdesk/convoy/internal/bus"
)

// ChatClient calls the chat platform API for the operations the coordinator
// needs beyond webhook delivery: fetching unread driver messages after a
// channel transition and downloading media files for conversion.
type ChatClient struct {
	baseURL string
	creds   CredentialProvider
	http    *http.Client
	retry   RetryConfig
}

func NewChatClient(baseURL string, creds CredentialProvider, timeout time.Duration) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		retry:   DefaultRetryConfig(),
	}
}

// UnreadMessages fetches the driver messages that arrived on the chat
// platform while the conversation lived elsewhere, oldest first.
func (c *ChatClient) UnreadMessages(ctx context.Context, contact string) ([]bus.InboundMessage, error) {
	return RetryDo(ctx, c.retry, func() ([]bus.InboundMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/messages/unread?contact="+url.QueryEscape(contact), nil)
		if err != nil {
			return nil, err
		}
		if err := c.authorize(ctx, req); err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if resp.StatusCode == http.StatusUnauthorized {
				c.creds.Invalidate()
			}
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
		}

		var payload struct {
			Messages []bus.InboundMessage `json:"messages"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode unread messages: %w", err)
		}
		return payload.Messages, nil
	})
}

// DownloadMedia fetches a media file by its chat platform URL.
func (c *ChatClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	return RetryDo(ctx, c.retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
		if err != nil {
			return nil, err
		}
		if err := c.authorize(ctx, req); err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
		}
		return io.ReadAll(resp.Body)
	})
}

func (c *ChatClient) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
