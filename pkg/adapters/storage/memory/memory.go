package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/bago/pkg/domain"
)

// InMemoryResponseStore implements ResponseStore using an in-memory map.
// Intended for tests and single-process deployments.
type InMemoryResponseStore struct {
	responses map[string]*domain.BatchResponse
	mu        sync.RWMutex
}

// NewInMemoryResponseStore creates a new in-memory response store
func NewInMemoryResponseStore() *InMemoryResponseStore {
	return &InMemoryResponseStore{
		responses: make(map[string]*domain.BatchResponse),
	}
}

// Save archives a batch response
func (s *InMemoryResponseStore) Save(ctx context.Context, resp *domain.BatchResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shallow copy keeps the archived response immutable to the caller
	stored := *resp
	s.responses[resp.BatchID] = &stored
	return nil
}

// Get retrieves an archived batch response
func (s *InMemoryResponseStore) Get(ctx context.Context, batchID string) (*domain.BatchResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp, ok := s.responses[batchID]
	if !ok {
		return nil, fmt.Errorf("batch response not found: %s", batchID)
	}
	return resp, nil
}

// List returns all archived batch ids
func (s *InMemoryResponseStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.responses))
	for id := range s.responses {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes an archived batch response
func (s *InMemoryResponseStore) Delete(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.responses, batchID)
	return nil
}
