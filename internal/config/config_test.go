package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("credentials.passphrase", "frio")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval)
	}
	if cfg.RemoteDocumentPath != "public/data.json" || cfg.RemoteAPIURL != "https://api.github.com" {
		t.Fatalf("unexpected remote defaults %+v", cfg)
	}
	if cfg.StatusDisplayed != 5*time.Second || cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("unexpected durations %s %s", cfg.StatusDisplayed, cfg.TokenTTL)
	}
	if err := cfg.RequireServer(); err == nil {
		t.Fatalf("expected server settings to require a signing secret")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FROSTLOG_CREDENTIALS_PASSPHRASE", "frio")
	t.Setenv("FROSTLOG_SYNC_POLL_INTERVAL_SECONDS", "120")
	t.Setenv("FROSTLOG_REMOTE_API_URL", "https://github.example.com/api/v3/")
	t.Setenv("FROSTLOG_AUTH_SIGNING_SECRET", "segredo")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.PollInterval != 2*time.Minute {
		t.Fatalf("expected env poll interval, got %s", cfg.PollInterval)
	}
	if cfg.RemoteAPIURL != "https://github.example.com/api/v3" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.RemoteAPIURL)
	}
	if err := cfg.RequireServer(); err != nil {
		t.Fatalf("unexpected server validation error: %v", err)
	}
}

func TestLoadValidatesRequiredKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		want string
	}{
		{name: "passphrase", key: "credentials.passphrase", val: "", want: "credentials.passphrase"},
		{name: "database", key: "database.path", val: " ", want: "database.path"},
		{name: "interval", key: "sync.poll_interval_seconds", val: 0, want: "sync.poll_interval_seconds"},
		{name: "rate", key: "remote.requests_per_minute", val: -1, want: "remote.requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set("credentials.passphrase", "frio")
			configViper.Set(tt.key, tt.val)
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error naming %s, got %v", tt.want, err)
			}
		})
	}
}
