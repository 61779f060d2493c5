package unit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// InMemory stores units in memory for tests/dev.
type InMemory struct {
	mu    sync.RWMutex
	units map[id.SerialNumber]*models.Unit
}

// NewInMemory constructs an empty in-memory unit store.
func NewInMemory() *InMemory {
	return &InMemory{units: make(map[id.SerialNumber]*models.Unit)}
}

func (s *InMemory) Create(_ context.Context, u *models.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.units[u.SerialNumber]; exists {
		return fmt.Errorf("unit %s already exists: %w", u.SerialNumber, sentinel.ErrConflict)
	}
	cp := *u
	s.units[u.SerialNumber] = &cp
	return nil
}

func (s *InMemory) FindBySerial(_ context.Context, serial id.SerialNumber) (*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[serial]
	if !ok {
		return nil, fmt.Errorf("unit %s not found: %w", serial, sentinel.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// ListByBatch returns a batch's units ordered by ordinal.
func (s *InMemory) ListByBatch(_ context.Context, batchID id.BatchID) ([]*models.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var units []*models.Unit
	for _, u := range s.units {
		if u.BatchID == batchID {
			cp := *u
			units = append(units, &cp)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Ordinal < units[j].Ordinal })
	return units, nil
}

// MintedOrdinals returns the set of ordinals already minted for a batch,
// backing idempotent retry of the missing range.
func (s *InMemory) MintedOrdinals(_ context.Context, batchID id.BatchID) (map[int]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordinals := make(map[int]bool)
	for _, u := range s.units {
		if u.BatchID == batchID {
			ordinals[u.Ordinal] = true
		}
	}
	return ordinals, nil
}

// CountAvailable returns how many of a batch's units are currently
// transferable (not dispatched, not returned).
func (s *InMemory) CountAvailable(_ context.Context, batchID id.BatchID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.units {
		if u.BatchID == batchID && u.Status.Available() {
			count++
		}
	}
	return count, nil
}

// Execute runs validate then mutate on a unit while holding the store lock.
func (s *InMemory) Execute(_ context.Context, serial id.SerialNumber, validate func(*models.Unit) error, mutate func(*models.Unit)) (*models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[serial]
	if !ok {
		return nil, fmt.Errorf("unit %s not found: %w", serial, sentinel.ErrNotFound)
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	mutate(u)
	cp := *u
	return &cp, nil
}
