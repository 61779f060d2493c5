package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
)

type InMemoryBatchStoreSuite struct {
	suite.Suite
	store *InMemory
}

func (s *InMemoryBatchStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func newTestBatch(batchID id.BatchID) *models.Batch {
	now := time.Now()
	return &models.Batch{
		ID:                batchID,
		LedgerTopicID:     "batch." + string(batchID) + ".events",
		DrugName:          "Amoxicillin 500mg",
		BatchSize:         100,
		ManufacturingDate: now.AddDate(0, -1, 0),
		ExpiryDate:        now.AddDate(2, 0, 0),
		Status:            models.BatchStatusManufacturing,
		CreatorOrgID:      id.NewOrgID(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *InMemoryBatchStoreSuite) TestCreateAndFind() {
	b := newTestBatch("BATCH-1001")
	require.NoError(s.T(), s.store.Create(context.Background(), b))

	found, err := s.store.FindByID(context.Background(), b.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), b, found)
}

func (s *InMemoryBatchStoreSuite) TestCreateDuplicateConflicts() {
	b := newTestBatch("BATCH-1001")
	require.NoError(s.T(), s.store.Create(context.Background(), b))
	assert.ErrorIs(s.T(), s.store.Create(context.Background(), b), sentinel.ErrConflict)
}

func (s *InMemoryBatchStoreSuite) TestFindNotFound() {
	_, err := s.store.FindByID(context.Background(), "BATCH-NOPE")
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *InMemoryBatchStoreSuite) TestFindReturnsCopy() {
	b := newTestBatch("BATCH-1001")
	require.NoError(s.T(), s.store.Create(context.Background(), b))

	found, err := s.store.FindByID(context.Background(), b.ID)
	require.NoError(s.T(), err)
	found.Status = models.BatchStatusRecalled

	again, err := s.store.FindByID(context.Background(), b.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.BatchStatusManufacturing, again.Status, "store state must not leak through returned pointers")
}

func (s *InMemoryBatchStoreSuite) TestExecuteValidateThenMutate() {
	b := newTestBatch("BATCH-1001")
	require.NoError(s.T(), s.store.Create(context.Background(), b))

	updated, err := s.store.Execute(context.Background(), b.ID,
		func(b *models.Batch) error { return b.ApplyStatus(models.BatchStatusReadyForDispatch, time.Now()) },
		func(b *models.Batch) {},
	)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.BatchStatusReadyForDispatch, updated.Status)
}

func (s *InMemoryBatchStoreSuite) TestExecuteValidationFailureLeavesStateUntouched() {
	b := newTestBatch("BATCH-1001")
	b.Status = models.BatchStatusRecalled
	require.NoError(s.T(), s.store.Create(context.Background(), b))

	_, err := s.store.Execute(context.Background(), b.ID,
		func(b *models.Batch) error { return b.ApplyStatus(models.BatchStatusInTransit, time.Now()) },
		func(b *models.Batch) {},
	)
	require.Error(s.T(), err)

	found, err := s.store.FindByID(context.Background(), b.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.BatchStatusRecalled, found.Status)
}

func TestInMemoryBatchStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBatchStoreSuite))
}
