// Package service orchestrates batch registration: attribute validation, the
// ledger topic gate, QR signing, and bulk unit minting.
package service

import (
	"context"
	"sync"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
)

// BatchStore is the persistence surface for batches.
type BatchStore interface {
	Create(ctx context.Context, b *models.Batch) error
	FindByID(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	Execute(ctx context.Context, batchID id.BatchID, validate func(*models.Batch) error, mutate func(*models.Batch)) (*models.Batch, error)
}

// UnitStore is the persistence surface for units.
type UnitStore interface {
	Create(ctx context.Context, u *models.Unit) error
	FindBySerial(ctx context.Context, serial id.SerialNumber) (*models.Unit, error)
	ListByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Unit, error)
	MintedOrdinals(ctx context.Context, batchID id.BatchID) (map[int]bool, error)
	CountAvailable(ctx context.Context, batchID id.BatchID) (int, error)
	Execute(ctx context.Context, serial id.SerialNumber, validate func(*models.Unit) error, mutate func(*models.Unit)) (*models.Unit, error)
}

// OrgStore is the persistence surface for organizations.
type OrgStore interface {
	Create(ctx context.Context, o *models.Organization) error
	FindByID(ctx context.Context, orgID id.OrgID) (*models.Organization, error)
}

// mintLocks serializes minting per batch id. Ordinal allocation and ledger
// sequence assignment are not idempotent, so two concurrent mints for the
// same batch must be rejected, not interleaved. Verification reads are
// unaffected; they only see committed unit rows.
type mintLocks struct {
	mu    sync.Mutex
	locks map[id.BatchID]bool
}

func newMintLocks() *mintLocks {
	return &mintLocks{locks: make(map[id.BatchID]bool)}
}

// tryAcquire reports whether the caller now holds the batch's mint lock.
func (l *mintLocks) tryAcquire(batchID id.BatchID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[batchID] {
		return false
	}
	l.locks[batchID] = true
	return true
}

func (l *mintLocks) release(batchID id.BatchID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, batchID)
}
