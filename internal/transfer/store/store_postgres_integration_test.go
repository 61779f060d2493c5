//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	registrymodels "pharmatrace/internal/registry/models"
	"pharmatrace/internal/registry/store/batch"
	"pharmatrace/internal/registry/store/org"
	"pharmatrace/internal/transfer/models"
	"pharmatrace/internal/transfer/store"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
	"pharmatrace/pkg/testutil/containers"
)

const testBatchID = id.BatchID("BATCH-1001")

type PostgresStoreSuite struct {
	suite.Suite
	postgres     *containers.PostgresContainer
	pool         *pgxpool.Pool
	store        *store.Postgres
	manufacturer id.OrgID
	distributor  id.OrgID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())

	pool, err := pgxpool.New(ctx, s.postgres.URL)
	s.Require().NoError(err)
	s.pool = pool
	s.store = store.NewPostgres(pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.pool.Close()
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "transfers", "units", "batches", "organizations"))

	orgs := org.NewPostgres(s.postgres.DB)
	manufacturer, err := registrymodels.NewOrganization(id.NewOrgID(), "Acme Pharma", registrymodels.OrgTypeManufacturer, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(orgs.Create(ctx, manufacturer))
	s.manufacturer = manufacturer.ID

	distributor, err := registrymodels.NewOrganization(id.NewOrgID(), "MedSupply", registrymodels.OrgTypeDistributor, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(orgs.Create(ctx, distributor))
	s.distributor = distributor.ID

	now := time.Now()
	b, err := registrymodels.NewBatch(testBatchID, s.manufacturer, "Amoxicillin 500mg", "",
		100, now.AddDate(0, -1, 0), now.AddDate(2, 0, 0), "", now)
	s.Require().NoError(err)
	b.LedgerTopicID = "batch.BATCH-1001.events"
	s.Require().NoError(batch.NewPostgres(s.postgres.DB).Create(ctx, b))
}

func (s *PostgresStoreSuite) newTransfer() *models.Transfer {
	now := time.Now()
	return &models.Transfer{
		ID:        id.NewTransferID(),
		BatchID:   testBatchID,
		FromOrgID: s.manufacturer,
		ToOrgID:   s.distributor,
		Type:      models.TransferTypeWholesale,
		Status:    models.TransferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// The partial unique index admits exactly one active transfer per batch, even
// under concurrent inserts that all passed validation.
func (s *PostgresStoreSuite) TestConcurrentCreatesAdmitExactlyOne() {
	ctx := context.Background()
	const goroutines = 16

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newTransfer())
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestCompletedTransferFreesTheBatch() {
	ctx := context.Background()
	first := s.newTransfer()
	s.Require().NoError(s.store.Create(ctx, first))

	_, err := s.store.Execute(ctx, first.ID,
		func(t *models.Transfer) error { return nil },
		func(t *models.Transfer) {
			now := time.Now()
			t.Status = models.TransferStatusCompleted
			t.TransferDate = &now
			t.UpdatedAt = now
		})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Create(ctx, s.newTransfer()), "a settled batch accepts a new transfer")
}

func (s *PostgresStoreSuite) TestFindActiveAndLatestCompleted() {
	ctx := context.Background()

	completed := s.newTransfer()
	s.Require().NoError(s.store.Create(ctx, completed))
	_, err := s.store.Execute(ctx, completed.ID,
		func(t *models.Transfer) error { return nil },
		func(t *models.Transfer) {
			done := time.Now().Add(-time.Hour)
			t.Status = models.TransferStatusCompleted
			t.TransferDate = &done
		})
	s.Require().NoError(err)

	active := s.newTransfer()
	s.Require().NoError(s.store.Create(ctx, active))

	found, err := s.store.FindActiveByBatch(ctx, testBatchID)
	s.Require().NoError(err)
	s.Equal(active.ID, found.ID)

	latest, err := s.store.LatestCompleted(ctx, testBatchID)
	s.Require().NoError(err)
	s.Equal(completed.ID, latest.ID)
}

func (s *PostgresStoreSuite) TestExecuteValidateRejectionLeavesRowUntouched() {
	ctx := context.Background()
	created := s.newTransfer()
	s.Require().NoError(s.store.Create(ctx, created))

	_, err := s.store.Execute(ctx, created.ID,
		func(t *models.Transfer) error { return sentinel.ErrInvalidState },
		func(t *models.Transfer) { t.Status = models.TransferStatusCompleted })
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	found, err := s.store.FindByID(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(models.TransferStatusPending, found.Status)
}

func (s *PostgresStoreSuite) TestFindMissingIsNotFound() {
	_, err := s.store.FindByID(context.Background(), id.NewTransferID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
