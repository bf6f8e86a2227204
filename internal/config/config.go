// Package config holds the typed configuration for the convoy coordinator.
// Values come from a JSON5 file overlaid with environment variables; secrets
// (DSN, API tokens) are env-only and never persisted to the file.
package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the convoy service.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database,omitempty"`
	Debounce    DebounceConfig    `json:"debounce,omitempty"`
	Session     SessionConfig     `json:"session,omitempty"`
	Agent       AgentConfig       `json:"agent"`
	Backend     BackendConfig     `json:"backend"`
	Chat        ChatConfig        `json:"chat"`
	Gateway     GatewayConfig     `json:"gateway"`
	Media       MediaConfig       `json:"media,omitempty"`
	History     HistoryConfig     `json:"history,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	mu          sync.RWMutex
}

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	RateLimitRPM    int    `json:"rate_limit_rpm,omitempty"`
	MaxMessageChars int    `json:"max_message_chars,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from config.json (secret), only from env
// CONVOY_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"`        // "standalone" (default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"` // standalone mode database file
}

// IsManagedMode reports whether the service runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// DebounceConfig tunes the message accumulation window.
type DebounceConfig struct {
	InitialDelaySeconds   float64 `json:"initial_delay_seconds,omitempty"`
	ExtensionDelaySeconds float64 `json:"extension_delay_seconds,omitempty"`
}

func (d DebounceConfig) InitialDelay() time.Duration {
	return secondsOr(d.InitialDelaySeconds, 10*time.Second)
}

func (d DebounceConfig) ExtensionDelay() time.Duration {
	return secondsOr(d.ExtensionDelaySeconds, 3*time.Second)
}

// SessionConfig tunes identifier lifetimes.
type SessionConfig struct {
	WindowSeconds       int64 `json:"window_seconds,omitempty"`        // session inactivity window
	MemoryWindowSeconds int64 `json:"memory_window_seconds,omitempty"` // memory pointer lifetime
}

func (s SessionConfig) Window() time.Duration {
	if s.WindowSeconds > 0 {
		return time.Duration(s.WindowSeconds) * time.Second
	}
	return time.Hour
}

func (s SessionConfig) MemoryWindow() time.Duration {
	if s.MemoryWindowSeconds > 0 {
		return time.Duration(s.MemoryWindowSeconds) * time.Second
	}
	return 7 * 24 * time.Hour
}

// AgentConfig configures the conversational agent endpoint.
// Token comes from env CONVOY_AGENT_TOKEN only.
type AgentConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"-"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	RateLimitRPM   int    `json:"rate_limit_rpm,omitempty"`
	MaxRetries     int    `json:"max_retries,omitempty"`
}

func (a AgentConfig) Timeout() time.Duration {
	if a.TimeoutSeconds > 0 {
		return time.Duration(a.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// BackendConfig configures the freight marketplace API.
type BackendConfig struct {
	BaseURL              string `json:"base_url"`
	TimeoutSeconds       int    `json:"timeout_seconds,omitempty"`
	CredentialTTLSeconds int    `json:"credential_ttl_seconds,omitempty"`
}

func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds > 0 {
		return time.Duration(b.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

func (b BackendConfig) CredentialTTL() time.Duration {
	if b.CredentialTTLSeconds > 0 {
		return time.Duration(b.CredentialTTLSeconds) * time.Second
	}
	return 30 * time.Minute
}

// ChatConfig configures the chat platform API (unread fetch, media
// download). Token from env CONVOY_CHAT_TOKEN only.
type ChatConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"-"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (c ChatConfig) Timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// GatewayConfig configures the outbound delivery gateway. BaseURL is the
// env fallback when the dynamic resolver yields nothing.
type GatewayConfig struct {
	BaseURL        string `json:"base_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds > 0 {
		return time.Duration(g.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// MediaConfig configures the opaque media converter endpoints.
type MediaConfig struct {
	TranscribeURL  string `json:"transcribe_url,omitempty"`
	OCRURL         string `json:"ocr_url,omitempty"`
	SynthesizeURL  string `json:"synthesize_url,omitempty"`
	GeocodeURL     string `json:"geocode_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func (m MediaConfig) Timeout() time.Duration {
	if m.TimeoutSeconds > 0 {
		return time.Duration(m.TimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// HistoryConfig tunes context reconstruction.
type HistoryConfig struct {
	ContextLimit int `json:"context_limit,omitempty"` // entries pulled for the digest
}

func (h HistoryConfig) Limit() int {
	if h.ContextLimit > 0 {
		return h.ContextLimit
	}
	return 30
}

// MaintenanceConfig schedules ledger and batch purges.
type MaintenanceConfig struct {
	// CronSpec is a robfig/cron expression; empty disables maintenance.
	CronSpec          string `json:"cron_spec,omitempty"`
	BatchStaleMinutes int    `json:"batch_stale_minutes,omitempty"`
}

func (m MaintenanceConfig) BatchStaleAfter() time.Duration {
	if m.BatchStaleMinutes > 0 {
		return time.Duration(m.BatchStaleMinutes) * time.Minute
	}
	return 30 * time.Minute
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string            `json:"service_name,omitempty"` // default "convoy"
	Headers     map[string]string `json:"headers,omitempty"`
}

func secondsOr(v float64, fallback time.Duration) time.Duration {
	if v > 0 {
		return time.Duration(v * float64(time.Second))
	}
	return fallback
}
