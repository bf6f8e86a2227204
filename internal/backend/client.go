package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned for lookups the backend has no record of.
var ErrNotFound = errors.New("backend: not found")

// Driver is the marketplace profile for a contact.
type Driver struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	PrefersAudio bool   `json:"prefers_audio"`
}

// Offer is a cargo offer summary used to enrich agent context.
type Offer struct {
	CargoID     string  `json:"cargo_id"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Product     string  `json:"product,omitempty"`
	Price       float64 `json:"price,omitempty"`
	PickupDate  string  `json:"pickup_date,omitempty"`
}

// Summary renders the offer as a one-line description for the agent.
func (o Offer) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cargo %s: %s to %s", o.CargoID, o.Origin, o.Destination)
	if o.Product != "" {
		fmt.Fprintf(&b, ", %s", o.Product)
	}
	if o.Price > 0 {
		fmt.Fprintf(&b, ", R$ %.2f", o.Price)
	}
	if o.PickupDate != "" {
		fmt.Fprintf(&b, ", pickup %s", o.PickupDate)
	}
	return b.String()
}

// Client calls the freight marketplace API.
type Client struct {
	baseURL string
	creds   CredentialProvider
	http    *http.Client
	retry   RetryConfig
}

func NewClient(baseURL string, creds CredentialProvider, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		retry:   DefaultRetryConfig(),
	}
}

// DriverByContact looks up the driver profile for a canonical contact.
func (c *Client) DriverByContact(ctx context.Context, contact string) (*Driver, error) {
	var driver Driver
	path := "/drivers?contact=" + url.QueryEscape(contact)
	if err := c.getJSON(ctx, path, &driver); err != nil {
		return nil, fmt.Errorf("driver by contact: %w", err)
	}
	return &driver, nil
}

// OfferByCargoID fetches the offer a negotiation is about.
func (c *Client) OfferByCargoID(ctx context.Context, cargoID string) (*Offer, error) {
	var offer Offer
	path := "/cargo/" + url.PathEscape(cargoID)
	if err := c.getJSON(ctx, path, &offer); err != nil {
		return nil, fmt.Errorf("offer by cargo id: %w", err)
	}
	return &offer, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	_, err := RetryDo(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.doGetJSON(ctx, path, out)
	})
	return err
}

func (c *Client) doGetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Cookie", "auth="+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		// Expired cookie; refetch on the retry.
		c.creds.Invalidate()
		return &HTTPError{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &HTTPError{StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
