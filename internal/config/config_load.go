package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            18890,
			RateLimitRPM:    120,
			MaxMessageChars: 32000,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "convoy.db",
		},
		Debounce: DebounceConfig{
			InitialDelaySeconds:   10,
			ExtensionDelaySeconds: 3,
		},
		Session: SessionConfig{
			WindowSeconds:       3600,
			MemoryWindowSeconds: 604800,
		},
		Agent: AgentConfig{
			TimeoutSeconds: 60,
			RateLimitRPM:   30,
			MaxRetries:     2,
		},
		History: HistoryConfig{
			ContextLimit: 30,
		},
		Maintenance: MaintenanceConfig{
			CronSpec:          "@every 15m",
			BatchStaleMinutes: 30,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets: env only.
	envStr("CONVOY_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CONVOY_AGENT_TOKEN", &c.Agent.Token)
	envStr("CONVOY_CHAT_TOKEN", &c.Chat.Token)

	envStr("CONVOY_MODE", &c.Database.Mode)
	envStr("CONVOY_SQLITE_PATH", &c.Database.SQLitePath)

	envStr("CONVOY_HOST", &c.Server.Host)
	if v := os.Getenv("CONVOY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	envStr("CONVOY_AGENT_URL", &c.Agent.BaseURL)
	envStr("CONVOY_BACKEND_URL", &c.Backend.BaseURL)
	envStr("CONVOY_CHAT_URL", &c.Chat.BaseURL)
	envStr("CONVOY_GATEWAY_URL", &c.Gateway.BaseURL)

	// Telemetry
	envStr("CONVOY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CONVOY_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CONVOY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CONVOY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CONVOY_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the
// config. Call after mutating config to restore runtime secrets.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyEnvOverrides()
}
