package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps state as JSON strings, optionally expiring them.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: connect to redis: %w", err)
	}
	return &RedisStore{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) stateKey(key string) string {
	if s.keyPrefix != "" {
		return fmt.Sprintf("%s:state:%s", s.keyPrefix, key)
	}
	return "state:" + key
}

// Get loads the state stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (ConversationState, error) {
	raw, err := s.client.Get(ctx, s.stateKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ConversationState{}, ErrNotFound
	}
	if err != nil {
		return ConversationState{}, fmt.Errorf("storage: get %s: %w", key, err)
	}
	var state ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return ConversationState{}, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return state, nil
}

// Save stores the state under key, refreshing its expiry.
func (s *RedisStore) Save(ctx context.Context, key string, state ConversationState) error {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.stateKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("storage: save %s: %w", key, err)
	}
	return nil
}

// Delete removes the state under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.stateKey(key)).Err(); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}
