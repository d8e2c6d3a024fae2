package tokens

import (
	"context"
	"sync"

	"datacore/pkg/domain"
)

// MemoryStore keeps review tokens in process memory. Suitable for tests
// and single-node deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]domain.ReviewToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: map[string]domain.ReviewToken{}}
}

func (s *MemoryStore) Put(_ context.Context, token domain.ReviewToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = token
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (domain.ReviewToken, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[token]
	return tok, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}
