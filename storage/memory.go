package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

// Get returns a copy of the state stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (ConversationState, error) {
	s.mu.RLock()
	raw, ok := s.states[key]
	s.mu.RUnlock()
	if !ok {
		return ConversationState{}, ErrNotFound
	}
	var state ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return ConversationState{}, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return state, nil
}

// Save stores or replaces the state under key.
func (s *MemoryStore) Save(_ context.Context, key string, state ConversationState) error {
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = raw
	return nil
}

// Delete removes the state under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

// NullStore stores nothing; every Get returns an empty state.
type NullStore struct{}

func (NullStore) Get(context.Context, string) (ConversationState, error) {
	return ConversationState{}, nil
}
func (NullStore) Save(context.Context, string, ConversationState) error { return nil }
func (NullStore) Delete(context.Context, string) error                  { return nil }
func (NullStore) Ping(context.Context) error                            { return nil }
func (NullStore) Close(context.Context) error                           { return nil }
