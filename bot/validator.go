package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Bot Framework defaults.
const (
	DefaultOpenIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	DefaultChannelIssuer     = "https://api.botframework.com"
)

// ErrUnauthorized wraps every channel token rejection.
var ErrUnauthorized = errors.New("bot: unauthorized")

// ValidatorConfig configures the channel token validator.
type ValidatorConfig struct {
	AppID             string
	OpenIDMetadataURL string
	Issuer            string
	Leeway            time.Duration
	CacheTTL          time.Duration
	HTTPClient        *http.Client
}

// ChannelValidator checks the bearer tokens the Bot Framework service sends
// with each activity.
type ChannelValidator struct {
	cfg    ValidatorConfig
	client *http.Client
	mu     sync.RWMutex
	cache  keyCache
}

type keyCache struct {
	keys    []endorsedKey
	expires time.Time
	etag    string
	jwksURI string
}

type endorsedKey struct {
	jose.JSONWebKey
	endorsements []string
}

// NewValidator creates a validator with Bot Framework defaults.
func NewValidator(cfg ValidatorConfig) *ChannelValidator {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.OpenIDMetadataURL == "" {
		cfg.OpenIDMetadataURL = DefaultOpenIDMetadataURL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultChannelIssuer
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 5 * time.Minute
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &ChannelValidator{cfg: cfg, client: client}
}

// ValidateAuthHeader validates an Authorization header for an activity from
// channelID.
func (v *ChannelValidator) ValidateAuthHeader(ctx context.Context, header, channelID string) (jwt.MapClaims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil, fmt.Errorf("%w: invalid authorization header", ErrUnauthorized)
	}
	return v.Validate(ctx, parts[1], channelID)
}

// Validate verifies the token signature, issuer, audience and lifetime, and
// that the signing key is endorsed for channelID.
func (v *ChannelValidator) Validate(ctx context.Context, rawToken, channelID string) (jwt.MapClaims, error) {
	keys, err := v.ensureKeys(ctx, false)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.AppID),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key := findKey(keys, kid)
		if key == nil {
			// Keys rotate; refetch once on a kid miss.
			if refreshed, err := v.ensureKeys(ctx, true); err == nil {
				key = findKey(refreshed, kid)
			}
		}
		if key == nil {
			return nil, fmt.Errorf("signing key %q not found", kid)
		}
		if channelID != "" && !slices.Contains(key.endorsements, channelID) {
			return nil, fmt.Errorf("signing key %q not endorsed for channel %q", kid, channelID)
		}
		return key.Key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("%w: token invalid", ErrUnauthorized)
	}
	return claims, nil
}

func (v *ChannelValidator) ensureKeys(ctx context.Context, force bool) ([]endorsedKey, error) {
	v.mu.RLock()
	cache := v.cache
	v.mu.RUnlock()

	if !force && cache.keys != nil && time.Now().Before(cache.expires) {
		return cache.keys, nil
	}

	jwksURI, err := v.discoverJWKS(ctx)
	if err != nil {
		return nil, err
	}
	if jwksURI != cache.jwksURI {
		cache.etag = ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, err
	}
	if cache.etag != "" {
		req.Header.Set("If-None-Match", cache.etag)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot: fetch signing keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cache.keys != nil {
		cache.expires = time.Now().Add(v.cfg.CacheTTL)
		v.mu.Lock()
		v.cache = cache
		v.mu.Unlock()
		return cache.keys, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bot: fetch signing keys: %s", resp.Status)
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("bot: decode signing keys: %w", err)
	}
	keys := make([]endorsedKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		var k endorsedKey
		if err := k.JSONWebKey.UnmarshalJSON(raw); err != nil {
			continue
		}
		var extra struct {
			Endorsements []string `json:"endorsements"`
		}
		_ = json.Unmarshal(raw, &extra)
		k.endorsements = extra.Endorsements
		keys = append(keys, k)
	}

	cache = keyCache{keys: keys, etag: resp.Header.Get("ETag"), jwksURI: jwksURI}
	cache.expires = time.Now().Add(maxCacheDuration(resp.Header.Get("Cache-Control"), v.cfg.CacheTTL))

	v.mu.Lock()
	v.cache = cache
	v.mu.Unlock()
	return keys, nil
}

func (v *ChannelValidator) discoverJWKS(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.OpenIDMetadataURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bot: fetch openid metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bot: fetch openid metadata: %s", resp.Status)
	}
	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("bot: decode openid metadata: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", errors.New("bot: openid metadata has no jwks_uri")
	}
	return meta.JWKSURI, nil
}

func findKey(keys []endorsedKey, kid string) *endorsedKey {
	for i := range keys {
		if kid == "" || keys[i].KeyID == kid {
			return &keys[i]
		}
	}
	return nil
}

func maxCacheDuration(header string, fallback time.Duration) time.Duration {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], "max-age") {
			if secs, err := time.ParseDuration(kv[1] + "s"); err == nil && secs > 0 {
				return secs
			}
		}
	}
	return fallback
}
