package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmodule/storage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `server:
  public_url: http://localhost:3333
  dev_mode: true
# bot registration
bot:
  app_id: file-app
storage:
  provider: redis
  redis:
    addr: localhost:6379
`)

	t.Setenv("TASKMODULE_SERVER_PUBLIC_URL", "https://bot.example.com")
	t.Setenv("TASKMODULE_BOT_APP_ID", "env-app")
	t.Setenv("TASKMODULE_STORAGE_REDIS_TTL", "2h")
	t.Setenv("TASKMODULE_TAB_ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	t.Setenv("PORT", "8080")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Server.PublicURL != "https://bot.example.com" {
		t.Fatalf("PublicURL override mismatch, got %q", cfg.Server.PublicURL)
	}
	if cfg.Bot.AppID != "env-app" {
		t.Fatalf("AppID override mismatch, got %q", cfg.Bot.AppID)
	}
	if cfg.Storage.Provider != storage.ProviderRedis || cfg.Storage.Redis.TTL != 2*time.Hour {
		t.Fatalf("storage override mismatch: %+v", cfg.Storage)
	}
	if len(cfg.Tab.AllowedOrigins) != 2 || cfg.Tab.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("allowed origins mismatch: %v", cfg.Tab.AllowedOrigins)
	}
	if cfg.Server.DevListenAddr != "127.0.0.1:8080" {
		t.Fatalf("PORT should replace the dev listener port, got %q", cfg.Server.DevListenAddr)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `server:
  public_url: http://localhost:3333
  dev_mode: true
  listen_adr: ":3333"
`)
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Storage.Provider != storage.ProviderMemory {
		t.Fatalf("default storage provider = %q", cfg.Storage.Provider)
	}
	if len(cfg.Tab.FrameAncestors) != len(DefaultFrameAncestors) {
		t.Fatalf("default frame ancestors = %v", cfg.Tab.FrameAncestors)
	}
	if cfg.Auth.Enabled() {
		t.Fatalf("auth should be disabled without a client id")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "relative public url", mutate: func(c *Config) { c.Server.PublicURL = "bot.example.com" }},
		{name: "password without app id", mutate: func(c *Config) { c.Bot.AppPassword = "secret" }},
		{name: "production without app id", mutate: func(c *Config) { c.Server.DevMode = false }},
		{name: "production with app id", mutate: func(c *Config) {
			c.Server.DevMode = false
			c.Bot.AppID = "app"
		}, ok: true},
		{name: "bad tls version", mutate: func(c *Config) { c.Server.TLS.MinVersion = "1.1" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Provider = "sqlite" }},
		{name: "auth without issuer", mutate: func(c *Config) {
			c.Auth.ClientID = "client"
			c.Auth.Issuer = ""
		}},
		{name: "origin with path", mutate: func(c *Config) { c.Tab.AllowedOrigins = []string{"https://a.example.com/tab"} }},
		{name: "wildcard origin", mutate: func(c *Config) { c.Tab.AllowedOrigins = []string{"*"} }, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCORSOrigins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.PublicURL = "https://Bot.Example.com/base"
	cfg.Tab.AllowedOrigins = []string{"https://tabs.example.com", "https://bot.example.com"}

	got := cfg.CORSOrigins()
	want := []string{"https://bot.example.com", "https://tabs.example.com"}
	if len(got) != len(want) {
		t.Fatalf("origins = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("origin %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWithPort(t *testing.T) {
	cases := map[string]struct{ addr, port, want string }{
		"replace":  {"127.0.0.1:3333", "8080", "127.0.0.1:8080"},
		"no host":  {":3333", "9000", ":9000"},
		"invalid":  {"127.0.0.1:3333", "http", "127.0.0.1:3333"},
		"bad addr": {"localhost", "8080", ":8080"},
	}
	for name, c := range cases {
		if got := withPort(c.addr, c.port); got != c.want {
			t.Fatalf("%s: withPort(%q, %q) = %q, want %q", name, c.addr, c.port, got, c.want)
		}
	}
}

func TestSplitAndTrimRemovesEmpty(t *testing.T) {
	out := splitAndTrim(" a , ,b,, c ")
	expected := []string{"a", "b", "c"}
	if len(out) != len(expected) {
		t.Fatalf("unexpected length: got %d want %d", len(out), len(expected))
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Fatalf("element %d mismatch: got %q want %q", i, out[i], expected[i])
		}
	}
}
