package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != "casevine.db" {
		t.Errorf("expected default database path 'casevine.db', got %q", cfg.Database.Path)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}

	if cfg.Scheduler.TickerIntervalSeconds != 1 {
		t.Errorf("expected default ticker interval 1, got %d", cfg.Scheduler.TickerIntervalSeconds)
	}

	if cfg.Email.SMTPPort != 587 {
		t.Errorf("expected default SMTP port 587, got %d", cfg.Email.SMTPPort)
	}

	if cfg.Log.JSON {
		t.Error("expected console logging by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "casevine.toml")

	content := `
[database]
path = "/var/lib/casevine/casevine.db"

[scheduler]
ticker_interval_seconds = 5

[server]
port = 9090

[log]
json = true
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Database.Path != "/var/lib/casevine/casevine.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Scheduler.TickerIntervalSeconds != 5 {
		t.Errorf("expected ticker interval 5, got %d", cfg.Scheduler.TickerIntervalSeconds)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Log.JSON {
		t.Error("expected JSON logging enabled")
	}

	// Omitted sections keep their defaults
	if cfg.Email.SMTPPort != 587 {
		t.Errorf("expected default SMTP port 587, got %d", cfg.Email.SMTPPort)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestTickerInterval(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"default", 0, time.Second},
		{"negative falls back", -3, time.Second},
		{"configured", 5, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := SchedulerConfig{TickerIntervalSeconds: tt.seconds}
			if got := cfg.TickerInterval(); got != tt.want {
				t.Errorf("TickerInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDatabasePath_Fallback(t *testing.T) {
	cfg := Config{}
	if got := cfg.GetDatabasePath(); got != "casevine.db" {
		t.Errorf("expected fallback path 'casevine.db', got %q", got)
	}

	cfg.Database.Path = "custom.db"
	if got := cfg.GetDatabasePath(); got != "custom.db" {
		t.Errorf("expected 'custom.db', got %q", got)
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("CASEVINE_DATABASE_PATH", "/tmp/env-override.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/env-override.db" {
		t.Errorf("expected env override, got %q", cfg.Database.Path)
	}
}
