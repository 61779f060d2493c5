package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmatrace/internal/ledger"
	"pharmatrace/internal/registry/minter"
	"pharmatrace/internal/registry/models"
	batchstore "pharmatrace/internal/registry/store/batch"
	orgstore "pharmatrace/internal/registry/store/org"
	unitstore "pharmatrace/internal/registry/store/unit"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/platform/sentinel"
)

var secret = []byte("s3cr3t")

type fixture struct {
	svc     *RegistryService
	ledger  *ledger.InMemory
	batches *batchstore.InMemory
	units   *unitstore.InMemory
	orgs    *orgstore.InMemory

	manufacturer *models.Organization
	distributor  *models.Organization
	regulator    *models.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	l := ledger.NewInMemory()
	m, err := minter.New(l, secret, "https://verify.example")
	require.NoError(t, err)

	f := &fixture{
		ledger:  l,
		batches: batchstore.NewInMemory(),
		units:   unitstore.NewInMemory(),
		orgs:    orgstore.NewInMemory(),
	}
	f.svc = NewRegistryService(f.batches, f.units, f.orgs, m, l, slog.New(slog.DiscardHandler))

	now := time.Now()
	f.manufacturer, err = models.NewOrganization(id.NewOrgID(), "Acme Pharma", models.OrgTypeManufacturer, now)
	require.NoError(t, err)
	f.distributor, err = models.NewOrganization(id.NewOrgID(), "MedSupply", models.OrgTypeDistributor, now)
	require.NoError(t, err)
	f.regulator, err = models.NewOrganization(id.NewOrgID(), "Health Authority", models.OrgTypeRegulator, now)
	require.NoError(t, err)
	for _, o := range []*models.Organization{f.manufacturer, f.distributor, f.regulator} {
		require.NoError(t, f.orgs.Create(ctx, o))
	}
	return f
}

func (f *fixture) createRequest(size int) CreateBatchRequest {
	return CreateBatchRequest{
		BatchID:           "BATCH-1001",
		CreatorOrgID:      f.manufacturer.ID,
		DrugName:          "Amoxicillin 500mg",
		Composition:       "amoxicillin trihydrate",
		BatchSize:         size,
		ManufacturingDate: time.Now().AddDate(0, -1, 0),
		ExpiryDate:        time.Now().AddDate(2, 0, 0),
	}
}

func TestCreateBatchMintsAllUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Mint.UnitsCreated)
	assert.Equal(t, 3, result.Mint.BatchSize)
	assert.Zero(t, result.Mint.FailedOrdinal)

	batch := result.Batch
	assert.Equal(t, "batch.BATCH-1001.events", batch.LedgerTopicID)
	assert.NotEmpty(t, batch.QRSignature)
	assert.Contains(t, batch.QRCodeURL, "/verify/batch/BATCH-1001?sig=")

	stored, err := f.batches.FindByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.UnitsCreated)

	// The creation event takes sequence 0; unit registrations follow.
	assert.Equal(t, []int64{0}, f.ledger.Sequences(batch.LedgerTopicID, ledger.EventBatchCreated))
	assert.Equal(t, []int64{1, 2, 3}, f.ledger.Sequences(batch.LedgerTopicID, ledger.EventUnitRegistered))

	units, err := f.svc.ListUnits(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, units, 3)
	for i, u := range units {
		assert.Equal(t, i+1, u.Ordinal)
	}
}

func TestCreateBatchTopicFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ledger.FailNext(sentinel.ErrUnavailable)

	_, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	_, err = f.batches.FindByID(ctx, "BATCH-1001")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCreateBatchRejectsNonManufacturer(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest(3)
	req.CreatorOrgID = f.distributor.ID

	_, err := f.svc.CreateBatch(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCreateBatchUnknownCreator(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest(3)
	req.CreatorOrgID = id.NewOrgID()

	_, err := f.svc.CreateBatch(context.Background(), req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCreateBatchPartialMintThenRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Appends: 1=BATCH_CREATED, 2=unit 1, 3=unit 2 (fails).
	f.ledger.FailEveryN(3)

	result, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.NoError(t, err, "a partial mint is reported, not failed")
	assert.Equal(t, 1, result.Mint.UnitsCreated)
	assert.Equal(t, 2, result.Mint.FailedOrdinal)
	assert.True(t, result.Mint.Retryable)

	stored, err := f.batches.FindByID(ctx, "BATCH-1001")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnitsCreated, "progress recorded for the committed prefix")

	f.ledger.FailEveryN(0)
	retry, err := f.svc.RetryMint(ctx, "BATCH-1001", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, retry.Mint.UnitsCreated)
	assert.Zero(t, retry.Mint.FailedOrdinal)

	units, err := f.units.ListByBatch(ctx, "BATCH-1001")
	require.NoError(t, err)
	assert.Len(t, units, 3)
}

func TestRetryMintIsIdempotentOnFullBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.NoError(t, err)

	retry, err := f.svc.RetryMint(ctx, "BATCH-1001", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, retry.Mint.UnitsCreated, "nothing re-minted")

	units, err := f.units.ListByBatch(ctx, "BATCH-1001")
	require.NoError(t, err)
	assert.Len(t, units, 3)
}

func TestRetryMintRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.NoError(t, err)

	for _, r := range [][2]int{{0, 2}, {1, 4}, {3, 1}} {
		_, err := f.svc.RetryMint(ctx, "BATCH-1001", r[0], r[1])
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), "range %v", r)
	}
}

func TestConcurrentMintForSameBatchRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.NoError(t, err)

	// Hold the batch's mint lock as a running mint would.
	require.True(t, f.svc.minting.tryAcquire("BATCH-1001"))
	defer f.svc.minting.release("BATCH-1001")

	_, err = f.svc.RetryMint(ctx, "BATCH-1001", 0, 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestUpdateBatchStatusAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, f.createRequest(1))
	require.NoError(t, err)

	_, err = f.svc.UpdateBatchStatus(ctx, "BATCH-1001", f.distributor.ID, models.BatchStatusReadyForDispatch)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "non-creator cannot advance the lifecycle")

	batch, err := f.svc.UpdateBatchStatus(ctx, "BATCH-1001", f.manufacturer.ID, models.BatchStatusReadyForDispatch)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusReadyForDispatch, batch.Status)

	// Regulators can recall any batch but not drive the dispatch chain.
	_, err = f.svc.UpdateBatchStatus(ctx, "BATCH-1001", f.regulator.ID, models.BatchStatusInTransit)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	batch, err = f.svc.UpdateBatchStatus(ctx, "BATCH-1001", f.regulator.ID, models.BatchStatusRecalled)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusRecalled, batch.Status)

	_, err = f.svc.UpdateBatchStatus(ctx, "BATCH-1001", f.manufacturer.ID, models.BatchStatusInTransit)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition), "recalled is terminal")
}

func TestUpdateUnitStatusAndAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, f.createRequest(3))
	require.NoError(t, err)

	available, err := f.svc.AvailableUnits(ctx, result.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, available)

	units, err := f.svc.ListUnits(ctx, result.Batch.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdateUnitStatus(ctx, units[0].SerialNumber, models.UnitStatusDispatched)
	require.NoError(t, err)
	assert.Equal(t, models.UnitStatusDispatched, updated.Status)

	available, err = f.svc.AvailableUnits(ctx, result.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	_, err = f.svc.UpdateUnitStatus(ctx, "UNIT-NOPE-0001abcd", models.UnitStatusSold)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCreateOrganizationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOrganization(ctx, "City Pharmacy", models.OrgTypePharmacy)
	require.NoError(t, err)
	assert.True(t, o.IsActive)
	assert.False(t, o.ID.IsZero())

	_, err = f.svc.CreateOrganization(ctx, "  ", models.OrgTypePharmacy)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = f.svc.CreateOrganization(ctx, "Mystery Org", models.OrgType("CARTEL"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}
