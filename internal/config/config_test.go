package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 18890 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Mode != "standalone" {
		t.Errorf("mode = %q", cfg.Database.Mode)
	}
	if got := cfg.Debounce.InitialDelay(); got != 10*time.Second {
		t.Errorf("initial delay = %v", got)
	}
	if got := cfg.Debounce.ExtensionDelay(); got != 3*time.Second {
		t.Errorf("extension delay = %v", got)
	}
	if got := cfg.Session.Window(); got != time.Hour {
		t.Errorf("session window = %v", got)
	}
	if got := cfg.Session.MemoryWindow(); got != 7*24*time.Hour {
		t.Errorf("memory window = %v", got)
	}
	if got := cfg.History.Limit(); got != 30 {
		t.Errorf("history limit = %d", got)
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// tuning for a chatty fleet
		server: { port: 9999 },
		debounce: { initial_delay_seconds: 5.5 },
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want file value", cfg.Server.Port)
	}
	if got := cfg.Debounce.InitialDelay(); got != 5500*time.Millisecond {
		t.Errorf("initial delay = %v", got)
	}
	// Untouched sections keep defaults.
	if got := cfg.Debounce.ExtensionDelay(); got != 3*time.Second {
		t.Errorf("extension delay = %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 18890 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONVOY_POSTGRES_DSN", "postgres://u:p@db/convoy")
	t.Setenv("CONVOY_MODE", "managed")
	t.Setenv("CONVOY_PORT", "7777")
	t.Setenv("CONVOY_AGENT_TOKEN", "agent-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsManagedMode() {
		t.Error("managed mode not detected from env")
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Agent.Token != "agent-secret" {
		t.Errorf("agent token = %q", cfg.Agent.Token)
	}
}

func TestSecretsNeverSerializedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	// A DSN smuggled into the file must not take effect; the field is
	// env-only.
	body := `{ database: { PostgresDSN: "postgres://leaked" , mode: "managed" } }`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.PostgresDSN != "" {
		t.Errorf("DSN from file = %q, want ignored", cfg.Database.PostgresDSN)
	}
	if cfg.IsManagedMode() {
		t.Error("managed mode active without an env DSN")
	}
}
