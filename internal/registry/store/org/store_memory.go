package org

import (
	"context"
	"fmt"
	"sync"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

// InMemory stores organizations in memory for tests/dev.
type InMemory struct {
	mu   sync.RWMutex
	orgs map[id.OrgID]*models.Organization
}

// NewInMemory constructs an empty in-memory organization store.
func NewInMemory() *InMemory {
	return &InMemory{orgs: make(map[id.OrgID]*models.Organization)}
}

func (s *InMemory) Create(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orgs[o.ID]; exists {
		return fmt.Errorf("organization %s already exists: %w", o.ID, sentinel.ErrConflict)
	}
	cp := *o
	s.orgs[o.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orgID id.OrgID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("organization %s not found: %w", orgID, sentinel.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}
