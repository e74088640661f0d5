package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAuthRequestTTL bounds how long a sign-in pop-up may take.
const DefaultAuthRequestTTL = 10 * time.Minute

// AuthRequest tracks an outstanding sign-in started by /auth/start.
type AuthRequest struct {
	ID        string
	Nonce     string
	Verifier  string
	LoginHint string
	CreatedAt time.Time
}

// AuthRequestStore keeps pending sign-ins in memory until /auth/end
// consumes them.
type AuthRequestStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	requests map[string]AuthRequest
}

// NewAuthRequestStore constructs the store.
func NewAuthRequestStore(ttl time.Duration) *AuthRequestStore {
	if ttl <= 0 {
		ttl = DefaultAuthRequestTTL
	}
	return &AuthRequestStore{ttl: ttl, now: time.Now, requests: make(map[string]AuthRequest)}
}

// NewID generates a random identifier.
func (s *AuthRequestStore) NewID() string {
	return uuid.NewString()
}

// Save stores req and drops expired requests.
func (s *AuthRequestStore) Save(req AuthRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	s.pruneLocked()
	s.requests[req.ID] = req
}

// Consume returns and removes the request with id. Expired requests are
// not returned.
func (s *AuthRequestStore) Consume(id string) (AuthRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return AuthRequest{}, false
	}
	delete(s.requests, id)
	if s.now().Sub(req.CreatedAt) > s.ttl {
		return AuthRequest{}, false
	}
	return req, true
}

// Len reports the number of stored requests.
func (s *AuthRequestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *AuthRequestStore) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, req := range s.requests {
		if req.CreatedAt.Before(cutoff) {
			delete(s.requests, id)
		}
	}
}
