// Package backend talks to the freight marketplace API: driver profiles,
// offer lookups, and the chat platform endpoints used for channel
// transitions. Authentication flows through an injected credential
// provider; this package never owns the secret lifecycle.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CredentialProvider yields the auth token for backend calls.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	// Invalidate discards any cached token so the next Token call refetches.
	Invalidate()
}

// TokenSource fetches a fresh token from wherever the deployment keeps it
// (secret manager, env, login endpoint).
type TokenSource func(ctx context.Context) (string, error)

// CachedCredentialProvider caches a token process-wide with a TTL.
type CachedCredentialProvider struct {
	source TokenSource
	ttl    time.Duration

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
	now       func() time.Time
}

func NewCachedCredentialProvider(source TokenSource, ttl time.Duration) *CachedCredentialProvider {
	return &CachedCredentialProvider{source: source, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (p *CachedCredentialProvider) WithClock(now func() time.Time) *CachedCredentialProvider {
	p.now = now
	return p
}

func (p *CachedCredentialProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.token, nil
	}

	token, err := p.source(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch credential: %w", err)
	}
	p.token = token
	p.fetchedAt = p.now()
	slog.Debug("credential refreshed")
	return token, nil
}

func (p *CachedCredentialProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// StaticCredentialProvider wraps a fixed token (env-supplied deployments).
type StaticCredentialProvider string

func (p StaticCredentialProvider) Token(context.Context) (string, error) { return string(p), nil }
func (p StaticCredentialProvider) Invalidate()                           {}
