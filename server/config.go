package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskmodule/bot"
	"taskmodule/storage"
)

// Hardcoded CORS defaults
var (
	DefaultCORSAllowedHeaders = []string{"Authorization", "Content-Type"}
	DefaultCORSAllowedMethods = []string{"GET", "POST", "OPTIONS"}
)

// DefaultFrameAncestors are the hosts allowed to frame tab and task module pages.
var DefaultFrameAncestors = []string{
	"https://teams.microsoft.com",
	"https://*.teams.microsoft.com",
	"https://*.skype.com",
}

// Config captures the full application configuration loaded from YAML and environment variables.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Bot     BotConfig      `yaml:"bot"`
	Storage storage.Config `yaml:"storage"`
	Auth    AuthConfig     `yaml:"auth"`
	Tab     TabConfig      `yaml:"tab"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	SecretsPath     string    `yaml:"secrets_path"`
	StaticDir       string    `yaml:"static_dir"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour and TLS constraints.
type TLSConfig struct {
	Domains    []string `yaml:"domains"`
	Email      string   `yaml:"email"`
	MinVersion string   `yaml:"min_version"`
	HSTSMaxAge int      `yaml:"hsts_max_age"`
}

// BotConfig holds the bot registration and Bot Framework endpoints.
type BotConfig struct {
	AppID             string   `yaml:"app_id"`
	AppPassword       string   `yaml:"app_password"`
	OpenIDMetadataURL string   `yaml:"openid_metadata_url"`
	TokenURL          string   `yaml:"token_url"`
	TokenScope        string   `yaml:"token_scope"`
	ChannelIssuer     string   `yaml:"channel_issuer"`
	AllowedChannels   []string `yaml:"allowed_channels"`
}

// AuthConfig configures the tab sign-in pop-up against Microsoft Entra ID.
type AuthConfig struct {
	Issuer       string   `yaml:"issuer"`
	TenantID     string   `yaml:"tenant_id"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// TabConfig configures the tab pages.
type TabConfig struct {
	AppID          string   `yaml:"app_id"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	FrameAncestors []string `yaml:"frame_ancestors"`
}

// Enabled reports whether tab sign-in is configured.
func (c AuthConfig) Enabled() bool {
	return c.ClientID != ""
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		sanitized := stripYAMLComments(b)

		// Use strict unmarshaling to detect unknown fields
		decoder := yaml.NewDecoder(bytes.NewReader(sanitized))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil {
			if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
				slog.Error("Configuration contains unknown keys", "error", err, "file", path)
				return Config{}, fmt.Errorf("invalid config: %w (check for typos or deprecated fields)", err)
			}
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:3333",
			DevListenAddr:   "127.0.0.1:3333",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
			StaticDir:       "public",
			TLS: TLSConfig{
				Domains:    []string{"localhost"},
				MinVersion: "1.2",
				HSTSMaxAge: 31536000,
			},
		},
		Bot: BotConfig{
			OpenIDMetadataURL: bot.DefaultOpenIDMetadataURL,
			TokenURL:          bot.DefaultTokenURL,
			TokenScope:        bot.DefaultTokenScope,
			ChannelIssuer:     bot.DefaultChannelIssuer,
		},
		Storage: storage.Config{
			Provider: storage.ProviderMemory,
			MongoDB: storage.MongoConfig{
				Database:   storage.DefaultMongoDatabase,
				Collection: storage.DefaultMongoCollection,
			},
		},
		Auth: AuthConfig{
			Issuer: "https://login.microsoftonline.com/common/v2.0",
			Scopes: []string{"openid", "profile", "email"},
		},
		Tab: TabConfig{
			FrameAncestors: DefaultFrameAncestors,
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"TASKMODULE_SERVER_PUBLIC_URL":        func(v string) { cfg.Server.PublicURL = v },
		"TASKMODULE_SERVER_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"TASKMODULE_SERVER_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"TASKMODULE_SERVER_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"TASKMODULE_SERVER_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"TASKMODULE_SERVER_STATIC_DIR":        func(v string) { cfg.Server.StaticDir = v },
		"TASKMODULE_SERVER_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"TASKMODULE_SERVER_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"TASKMODULE_SERVER_SECRETS_PATH":      func(v string) { cfg.Server.SecretsPath = v },
		"TASKMODULE_BOT_APP_ID":               func(v string) { cfg.Bot.AppID = v },
		"TASKMODULE_BOT_APP_PASSWORD":         func(v string) { cfg.Bot.AppPassword = v },
		"TASKMODULE_STORAGE_PROVIDER":         func(v string) { cfg.Storage.Provider = v },
		"TASKMODULE_STORAGE_MONGODB_URI":      func(v string) { cfg.Storage.MongoDB.ConnectionString = v },
		"TASKMODULE_STORAGE_REDIS_ADDR":       func(v string) { cfg.Storage.Redis.Addr = v },
		"TASKMODULE_STORAGE_REDIS_PASSWORD":   func(v string) { cfg.Storage.Redis.Password = v },
		"TASKMODULE_STORAGE_REDIS_TTL":        func(v string) { cfg.Storage.Redis.TTL = parseDuration(v, cfg.Storage.Redis.TTL) },
		"TASKMODULE_AUTH_TENANT_ID":           func(v string) { cfg.Auth.TenantID = v },
		"TASKMODULE_AUTH_CLIENT_ID":           func(v string) { cfg.Auth.ClientID = v },
		"TASKMODULE_AUTH_CLIENT_SECRET":       func(v string) { cfg.Auth.ClientSecret = v },
		"TASKMODULE_TAB_ALLOWED_ORIGINS":      func(v string) { cfg.Tab.AllowedOrigins = splitAndTrim(v) },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}

	// PORT is what hosting platforms set; it replaces the dev listener port.
	if port, ok := os.LookupEnv("PORT"); ok {
		cfg.Server.DevListenAddr = withPort(cfg.Server.DevListenAddr, port)
	}
}

func withPort(addr, port string) string {
	port = strings.TrimSpace(port)
	if _, err := strconv.Atoi(port); err != nil {
		return addr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, port)
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs minimal sanity checks on the config.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		slog.Error("Missing required configuration", "field", "server.public_url")
		return errors.New("server.public_url is required")
	}

	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		slog.Error("Invalid configuration value", "field", "server.public_url", "value", c.Server.PublicURL, "reason", "must start with http:// or https://")
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		slog.Error("Missing required configuration for production mode", "field", "server.tls.domains")
		return errors.New("server.tls.domains must be provided in production")
	}

	if c.Server.TLS.MinVersion != "" {
		validVersions := map[string]bool{"1.2": true, "1.3": true}
		if !validVersions[c.Server.TLS.MinVersion] {
			slog.Error("Invalid TLS minimum version", "field", "server.tls.min_version", "value", c.Server.TLS.MinVersion, "valid_values", []string{"1.2", "1.3"})
			return fmt.Errorf("server.tls.min_version must be '1.2' or '1.3', got: %s", c.Server.TLS.MinVersion)
		}
	}

	if c.Bot.AppPassword != "" && c.Bot.AppID == "" {
		slog.Error("Missing required configuration", "field", "bot.app_id", "reason", "bot.app_password is set")
		return errors.New("bot.app_id is required when bot.app_password is set")
	}
	if !c.Server.DevMode && c.Bot.AppID == "" {
		slog.Error("Missing required configuration for production mode", "field", "bot.app_id")
		return errors.New("bot.app_id must be provided in production")
	}

	if err := c.Storage.Validate(); err != nil {
		slog.Error("Invalid storage configuration", "field", "storage", "error", err)
		return err
	}

	if c.Auth.Enabled() && c.Auth.Issuer == "" {
		slog.Error("Missing required configuration", "field", "auth.issuer", "reason", "auth.client_id is set")
		return errors.New("auth.issuer is required when auth.client_id is set")
	}

	for i, origin := range c.Tab.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if extractOrigin(origin) != origin {
			slog.Error("Invalid allowed origin", "field", fmt.Sprintf("tab.allowed_origins[%d]", i), "value", origin, "reason", "must be scheme://host[:port]")
			return fmt.Errorf("tab.allowed_origins[%d] must be an origin like https://host, got: %s", i, origin)
		}
	}

	return nil
}

// CORSOrigins returns the origins allowed to call the API from a browser:
// the configured tab origins plus the public URL's own origin.
func (c Config) CORSOrigins() []string {
	seen := make(map[string]bool)
	origins := []string{}
	add := func(o string) {
		if o != "" && !seen[o] {
			seen[o] = true
			origins = append(origins, o)
		}
	}
	add(extractOrigin(c.Server.PublicURL))
	for _, o := range c.Tab.AllowedOrigins {
		if o == "*" {
			add(o)
			continue
		}
		add(extractOrigin(o))
	}
	return origins
}

// extractOrigin extracts the origin (scheme://host:port) from a URL
func extractOrigin(rawURL string) string {
	if rawURL == "" || rawURL == "*" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
