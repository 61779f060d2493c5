//go:build integration

package unit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pharmatrace/internal/registry/models"
	"pharmatrace/internal/registry/store/batch"
	"pharmatrace/internal/registry/store/org"
	"pharmatrace/internal/registry/store/unit"
	id "pharmatrace/pkg/domain"
	"pharmatrace/pkg/platform/sentinel"
	"pharmatrace/pkg/testutil/containers"
)

const testBatchID = id.BatchID("BATCH-1001")

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *unit.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = unit.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "transfers", "units", "batches", "organizations"))

	creator, err := models.NewOrganization(id.NewOrgID(), "Acme Pharma", models.OrgTypeManufacturer, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(org.NewPostgres(s.postgres.DB).Create(ctx, creator))

	now := time.Now()
	b, err := models.NewBatch(testBatchID, creator.ID, "Amoxicillin 500mg", "",
		100, now.AddDate(0, -1, 0), now.AddDate(2, 0, 0), "", now)
	s.Require().NoError(err)
	b.LedgerTopicID = "batch.BATCH-1001.events"
	s.Require().NoError(batch.NewPostgres(s.postgres.DB).Create(ctx, b))
}

func (s *PostgresStoreSuite) newUnit(ordinal int, seq int64) *models.Unit {
	serial := id.SerialNumber(fmt.Sprintf("UNIT-%s-%04dabcd", testBatchID, ordinal))
	return &models.Unit{
		SerialNumber:   serial,
		BatchID:        testBatchID,
		Ordinal:        ordinal,
		LedgerSequence: seq,
		QRCodeURL:      "http://localhost:8080/verify/unit/" + string(serial) + "?sig=ff",
		QRSignature:    "ff",
		Status:         models.UnitStatusInStock,
		CreatedAt:      time.Now(),
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundtrip() {
	ctx := context.Background()
	created := s.newUnit(1, 1)
	s.Require().NoError(s.store.Create(ctx, created))

	found, err := s.store.FindBySerial(ctx, created.SerialNumber)
	s.Require().NoError(err)
	s.Equal(created.SerialNumber, found.SerialNumber)
	s.Equal(created.Ordinal, found.Ordinal)
	s.Equal(created.LedgerSequence, found.LedgerSequence)
	s.Equal(models.UnitStatusInStock, found.Status)
}

func (s *PostgresStoreSuite) TestDuplicateOrdinalIsConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newUnit(1, 1)))

	dup := s.newUnit(1, 2)
	dup.SerialNumber = "UNIT-BATCH-1001-0001beef"
	s.Require().ErrorIs(s.store.Create(ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestMintedOrdinalsReflectGaps() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newUnit(1, 1)))
	s.Require().NoError(s.store.Create(ctx, s.newUnit(3, 3)))

	ordinals, err := s.store.MintedOrdinals(ctx, testBatchID)
	s.Require().NoError(err)
	s.True(ordinals[1])
	s.False(ordinals[2])
	s.True(ordinals[3])
}

func (s *PostgresStoreSuite) TestCountAvailableExcludesDispatchedAndReturned() {
	ctx := context.Background()
	for ordinal, status := range map[int]models.UnitStatus{
		1: models.UnitStatusInStock,
		2: models.UnitStatusDispatched,
		3: models.UnitStatusReturned,
		4: models.UnitStatusSold,
	} {
		u := s.newUnit(ordinal, int64(ordinal))
		u.Status = status
		s.Require().NoError(s.store.Create(ctx, u))
	}

	count, err := s.store.CountAvailable(ctx, testBatchID)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *PostgresStoreSuite) TestExecutePersistsStatusChange() {
	ctx := context.Background()
	created := s.newUnit(1, 1)
	s.Require().NoError(s.store.Create(ctx, created))

	_, err := s.store.Execute(ctx, created.SerialNumber,
		func(u *models.Unit) error { return nil },
		func(u *models.Unit) { u.Status = models.UnitStatusDispatched })
	s.Require().NoError(err)

	found, err := s.store.FindBySerial(ctx, created.SerialNumber)
	s.Require().NoError(err)
	s.Equal(models.UnitStatusDispatched, found.Status)
}

func (s *PostgresStoreSuite) TestListByBatchOrdersByOrdinal() {
	ctx := context.Background()
	for _, ordinal := range []int{3, 1, 2} {
		s.Require().NoError(s.store.Create(ctx, s.newUnit(ordinal, int64(ordinal))))
	}

	units, err := s.store.ListByBatch(ctx, testBatchID)
	s.Require().NoError(err)
	s.Require().Len(units, 3)
	for i, u := range units {
		s.Equal(i+1, u.Ordinal)
	}
}
