package batch

import (
	"context"
	"fmt"
	"sync"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound when the requested batch does not exist
// - Return ErrConflict when a batch id is already taken
// - Return nil for successful operations

// InMemory stores batches in memory for tests/dev.
type InMemory struct {
	mu      sync.RWMutex
	batches map[id.BatchID]*models.Batch
}

// NewInMemory constructs an empty in-memory batch store.
func NewInMemory() *InMemory {
	return &InMemory{batches: make(map[id.BatchID]*models.Batch)}
}

func (s *InMemory) Create(_ context.Context, b *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[b.ID]; exists {
		return fmt.Errorf("batch %s already exists: %w", b.ID, sentinel.ErrConflict)
	}
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, batchID id.BatchID) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s not found: %w", batchID, sentinel.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// Execute runs validate then mutate while holding the store lock, so
// concurrent status transitions cannot interleave between check and write.
func (s *InMemory) Execute(_ context.Context, batchID id.BatchID, validate func(*models.Batch) error, mutate func(*models.Batch)) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s not found: %w", batchID, sentinel.ErrNotFound)
	}
	if err := validate(b); err != nil {
		return nil, err
	}
	mutate(b)
	cp := *b
	return &cp, nil
}
