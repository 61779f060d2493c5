// Package store persists ownership transfers. The one-active-transfer-per-
// batch invariant is enforced here, at the storage boundary, so concurrent
// transfer requests cannot both slip past an application-level check.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pharmatrace/internal/transfer/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// InMemory stores transfers in memory for tests/dev. The create path holds
// the store lock across the active-transfer scan and the insert, giving the
// same check-and-insert atomicity the postgres partial unique index provides.
type InMemory struct {
	mu        sync.RWMutex
	transfers map[id.TransferID]*models.Transfer
}

// NewInMemory constructs an empty in-memory transfer store.
func NewInMemory() *InMemory {
	return &InMemory{transfers: make(map[id.TransferID]*models.Transfer)}
}

func (s *InMemory) Create(_ context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transfers[t.ID]; exists {
		return fmt.Errorf("transfer %s already exists: %w", t.ID, sentinel.ErrConflict)
	}
	for _, existing := range s.transfers {
		if existing.BatchID == t.BatchID && existing.Status.Active() {
			return fmt.Errorf("batch %s already has an active transfer: %w", t.BatchID, sentinel.ErrConflict)
		}
	}

	cp := *t
	s.transfers[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, transferID id.TransferID) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer %s not found: %w", transferID, sentinel.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// ListByBatch returns a batch's transfers, newest first.
func (s *InMemory) ListByBatch(_ context.Context, batchID id.BatchID) ([]*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Transfer
	for _, t := range s.transfers {
		if t.BatchID == batchID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// FindActiveByBatch returns the batch's PENDING or IN_PROGRESS transfer, or
// ErrNotFound when none is outstanding.
func (s *InMemory) FindActiveByBatch(_ context.Context, batchID id.BatchID) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.transfers {
		if t.BatchID == batchID && t.Status.Active() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no active transfer for batch %s: %w", batchID, sentinel.ErrNotFound)
}

// LatestCompleted returns the batch's most recent COMPLETED transfer, or
// ErrNotFound when the batch has never changed hands.
func (s *InMemory) LatestCompleted(_ context.Context, batchID id.BatchID) (*models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Transfer
	for _, t := range s.transfers {
		if t.BatchID != batchID || t.Status != models.TransferStatusCompleted || t.TransferDate == nil {
			continue
		}
		if latest == nil || t.TransferDate.After(*latest.TransferDate) {
			latest = t
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no completed transfer for batch %s: %w", batchID, sentinel.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

// Execute atomically validates and mutates a transfer under the store lock.
func (s *InMemory) Execute(_ context.Context, transferID id.TransferID, validate func(*models.Transfer) error, mutate func(*models.Transfer)) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer %s not found: %w", transferID, sentinel.ErrNotFound)
	}

	cp := *t
	if err := validate(&cp); err != nil {
		return nil, err
	}
	mutate(&cp)
	s.transfers[transferID] = &cp

	out := cp
	return &out, nil
}
