// Package storage persists bot conversation state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get when no state is stored under a key.
	ErrNotFound = errors.New("storage: state not found")
	// ErrUnknownProvider is returned by Open for an unsupported provider.
	ErrUnknownProvider = errors.New("storage: unknown provider")
)

// Provider names accepted by Open.
const (
	ProviderMemory  = "memory"
	ProviderNull    = "null"
	ProviderMongoDB = "mongodb"
	ProviderRedis   = "redis"
)

// ConversationState is what the bot keeps between turns of a conversation.
type ConversationState struct {
	UserData                map[string]any `json:"userData,omitempty" bson:"userData,omitempty"`
	ConversationData        map[string]any `json:"conversationData,omitempty" bson:"conversationData,omitempty"`
	PrivateConversationData map[string]any `json:"privateConversationData,omitempty" bson:"privateConversationData,omitempty"`
	DialogStack             []string       `json:"dialogStack,omitempty" bson:"dialogStack,omitempty"`
	UpdatedAt               time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Store loads and saves conversation state by key.
type Store interface {
	Get(ctx context.Context, key string) (ConversationState, error)
	Save(ctx context.Context, key string, state ConversationState) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects and configures a provider.
type Config struct {
	Provider string      `yaml:"provider"`
	MongoDB  MongoConfig `yaml:"mongodb"`
	Redis    RedisConfig `yaml:"redis"`
}

// MongoConfig configures the MongoDB provider.
type MongoConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	Collection       string `yaml:"collection"`
}

// RedisConfig configures the Redis provider.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// Normalize lowercases the provider name and defaults it to memory.
func (c Config) Normalize() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderMemory
	}
	return c
}

// Validate checks that the selected provider is usable.
func (c Config) Validate() error {
	c = c.Normalize()
	switch c.Provider {
	case ProviderMemory, ProviderNull:
		return nil
	case ProviderMongoDB:
		if c.MongoDB.ConnectionString == "" {
			return errors.New("storage: mongodb.connection_string is required")
		}
		return nil
	case ProviderRedis:
		if c.Redis.Addr == "" {
			return errors.New("storage: redis.addr is required")
		}
		if c.Redis.TTL < 0 {
			return errors.New("storage: redis.ttl must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
}

// Open connects the configured provider.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Normalize()
	switch cfg.Provider {
	case ProviderNull:
		return NullStore{}, nil
	case ProviderMongoDB:
		return NewMongoStore(ctx, cfg.MongoDB)
	case ProviderRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return NewMemoryStore(), nil
	}
}
