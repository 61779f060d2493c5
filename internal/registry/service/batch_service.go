package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pharmatrace/internal/ledger"
	registrymetrics "pharmatrace/internal/registry/metrics"
	"pharmatrace/internal/registry/minter"
	"pharmatrace/internal/registry/models"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/platform/sentinel"
	"pharmatrace/pkg/requestcontext"
)

// RegistryService drives batch and unit identity issuance.
type RegistryService struct {
	batches BatchStore
	units   UnitStore
	orgs    OrgStore
	minter  *minter.Minter
	ledger  ledger.Ledger
	logger  *slog.Logger
	metrics *registrymetrics.Metrics
	tracer  trace.Tracer
	minting *mintLocks
}

// Option configures a RegistryService.
type Option func(*RegistryService)

// WithMetrics attaches registry metrics.
func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *RegistryService) { s.metrics = m }
}

// NewRegistryService constructs the registry service.
func NewRegistryService(batches BatchStore, units UnitStore, orgs OrgStore, m *minter.Minter, l ledger.Ledger, logger *slog.Logger, opts ...Option) *RegistryService {
	s := &RegistryService{
		batches: batches,
		units:   units,
		orgs:    orgs,
		minter:  m,
		ledger:  l,
		logger:  logger,
		tracer:  otel.Tracer("pharmatrace/registry"),
		minting: newMintLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBatchRequest carries the caller-supplied batch attributes.
type CreateBatchRequest struct {
	BatchID             id.BatchID // optional; generated when empty
	CreatorOrgID        id.OrgID
	DrugName            string
	Composition         string
	BatchSize           int
	ManufacturingDate   time.Time
	ExpiryDate          time.Time
	StorageInstructions string
}

// MintReport summarizes a bulk mint. Callers detect a partial mint via
// UnitsCreated < BatchSize and retry the missing ordinals.
type MintReport struct {
	UnitsCreated  int  `json:"units_created"`
	BatchSize     int  `json:"batch_size"`
	FailedOrdinal int  `json:"failed_ordinal,omitempty"`
	Retryable     bool `json:"retryable"`
}

// CreateBatchResult is the outcome of batch creation.
type CreateBatchResult struct {
	Batch *models.Batch `json:"batch"`
	Mint  MintReport    `json:"mint"`
}

// batchCreatedPayload is the ledger event body anchoring batch creation.
// It consumes the first sequence number of the batch topic; unit
// registrations share the same counter, so unit sequences start above it.
type batchCreatedPayload struct {
	BatchID   id.BatchID `json:"batch_id"`
	DrugName  string     `json:"drug_name"`
	BatchSize int        `json:"batch_size"`
}

// CreateBatch validates attributes, provisions the batch's ledger topic,
// persists the batch with its signed QR payload, and mints one unit per
// declared batch size.
//
// The topic request is the gate: if the ledger cannot assign a topic nothing
// is persisted and the whole creation fails. Unit minting after that point is
// at-least-once; a mid-mint ledger failure leaves the batch and the already
// minted units in place for ordinal-range retry.
func (s *RegistryService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*CreateBatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.CreateBatch")
	defer span.End()
	now := requestcontext.Now(ctx)

	creator, err := s.orgs.FindByID(ctx, req.CreatorOrgID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "creator organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load creator organization")
	}
	if !creator.IsActive {
		return nil, dErrors.New(dErrors.CodeForbidden, "creator organization is inactive")
	}
	if creator.Type != models.OrgTypeManufacturer {
		return nil, dErrors.New(dErrors.CodeForbidden, "only manufacturers can create batches")
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID, err = generateBatchID(now)
		if err != nil {
			return nil, err
		}
	}

	batch, err := models.NewBatch(batchID, req.CreatorOrgID, req.DrugName, req.Composition,
		req.BatchSize, req.ManufacturingDate, req.ExpiryDate, req.StorageInstructions, now)
	if err != nil {
		return nil, err
	}

	// Topic assignment gates everything: no compensating action exists for
	// it, so it runs before any persistence.
	topicID, err := s.minter.CreateBatchTopic(ctx, batch.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "batch creation aborted: ledger topic unavailable",
			"batch_id", batch.ID, "error", err)
		return nil, ledgerError(err, "batch topic could not be created")
	}
	batch.LedgerTopicID = topicID

	if _, err := s.appendBatchCreated(ctx, batch); err != nil {
		return nil, ledgerError(err, "batch creation event could not be recorded")
	}

	payload := s.minter.SignBatchPayload(batch.ID, topicID)
	batch.QRCodeURL = payload.URL
	batch.QRSignature = payload.Signature

	if err := s.batches.Create(ctx, batch); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "batch id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist batch")
	}

	if s.metrics != nil {
		s.metrics.IncrementBatchesCreated()
	}
	s.logger.InfoContext(ctx, "batch created",
		"batch_id", batch.ID, "topic", topicID, "batch_size", batch.BatchSize)

	report, err := s.mintOrdinals(ctx, batch, 1, batch.BatchSize, nil)
	if err != nil {
		return nil, err
	}
	return &CreateBatchResult{Batch: batch, Mint: report}, nil
}

// RetryMint mints the not-yet-minted ordinals of the given range. A zero
// range defaults to the full batch, which makes a bare retry "finish whatever
// is missing". Already-minted ordinals are skipped, so retries are
// idempotent.
func (s *RegistryService) RetryMint(ctx context.Context, batchID id.BatchID, from, to int) (*CreateBatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.RetryMint")
	defer span.End()

	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if from == 0 && to == 0 {
		from, to = 1, batch.BatchSize
	}
	if from < 1 || to > batch.BatchSize || from > to {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("ordinal range %d..%d outside 1..%d", from, to, batch.BatchSize))
	}

	minted, err := s.units.MintedOrdinals(ctx, batchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load minted ordinals")
	}

	report, err := s.mintOrdinals(ctx, batch, from, to, minted)
	if err != nil {
		return nil, err
	}
	return &CreateBatchResult{Batch: batch, Mint: report}, nil
}

// mintOrdinals runs the sequential mint loop under the batch's mint lock and
// records progress on the batch row.
func (s *RegistryService) mintOrdinals(ctx context.Context, batch *models.Batch, from, to int, skip map[int]bool) (MintReport, error) {
	if !s.minting.tryAcquire(batch.ID) {
		return MintReport{}, dErrors.New(dErrors.CodeConflict, "a mint is already running for this batch")
	}
	defer s.minting.release(batch.ID)
	start := time.Now()

	result := s.minter.MintRange(ctx, batch, from, to, skip, func(u *models.Unit) error {
		if err := s.units.Create(ctx, u); err != nil {
			return err
		}
		return nil
	})

	// Progress is tracked even for partial mints; the units that made it are
	// committed and must be counted.
	total, countErr := s.units.MintedOrdinals(ctx, batch.ID)
	if countErr != nil {
		return MintReport{}, dErrors.Wrap(countErr, dErrors.CodeInternal, "count minted units")
	}
	if _, err := s.batches.Execute(ctx, batch.ID,
		func(*models.Batch) error { return nil },
		func(b *models.Batch) {
			b.UnitsCreated = len(total)
			b.UpdatedAt = requestcontext.Now(ctx)
		},
	); err != nil {
		return MintReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "record mint progress")
	}
	batch.UnitsCreated = len(total)

	report := MintReport{UnitsCreated: len(total), BatchSize: batch.BatchSize}
	if s.metrics != nil {
		s.metrics.AddUnitsMinted(len(result.Units))
		s.metrics.ObserveMint(start)
	}

	if result.Err != nil {
		report.FailedOrdinal = result.FailedOrdinal
		report.Retryable = errors.Is(result.Err, sentinel.ErrUnavailable)
		if s.metrics != nil {
			s.metrics.IncrementMintFailures()
		}
		s.logger.WarnContext(ctx, "bulk mint stopped",
			"batch_id", batch.ID,
			"failed_ordinal", result.FailedOrdinal,
			"units_created", report.UnitsCreated,
			"error", result.Err,
		)
		if errors.Is(result.Err, sentinel.ErrIntegrity) {
			return report, dErrors.Wrap(result.Err, dErrors.CodeIntegrity, "ledger sequence contract violated")
		}
		// Partial mint is reported, not failed: the caller inspects the
		// report and retries the missing ordinals.
		return report, nil
	}

	s.logger.InfoContext(ctx, "bulk mint finished",
		"batch_id", batch.ID, "units_created", report.UnitsCreated)
	return report, nil
}

func (s *RegistryService) appendBatchCreated(ctx context.Context, batch *models.Batch) (int64, error) {
	payload, err := json.Marshal(batchCreatedPayload{
		BatchID:   batch.ID,
		DrugName:  batch.DrugName,
		BatchSize: batch.BatchSize,
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "marshal batch event")
	}
	return s.ledger.AppendEvent(ctx, batch.LedgerTopicID, ledger.EventBatchCreated, payload)
}

// GetBatch retrieves a batch by id.
func (s *RegistryService) GetBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	if strings.TrimSpace(string(batchID)) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "batch id is required")
	}
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load batch")
	}
	return batch, nil
}

// ListUnits returns a batch's minted units in ordinal order.
func (s *RegistryService) ListUnits(ctx context.Context, batchID id.BatchID) ([]*models.Unit, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	units, err := s.units.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list units")
	}
	return units, nil
}

// UpdateBatchStatus applies a guarded lifecycle transition. Recall is
// reserved to the batch creator and regulators; other transitions belong to
// the creator.
func (s *RegistryService) UpdateBatchStatus(ctx context.Context, batchID id.BatchID, actor id.OrgID, next models.BatchStatus) (*models.Batch, error) {
	actingOrg, err := s.orgs.FindByID(ctx, actor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "acting organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load acting organization")
	}

	now := requestcontext.Now(ctx)
	batch, err := s.batches.Execute(ctx, batchID,
		func(b *models.Batch) error {
			allowed := b.CreatorOrgID == actor
			if next == models.BatchStatusRecalled && actingOrg.Type == models.OrgTypeRegulator {
				allowed = true
			}
			if !allowed {
				return dErrors.New(dErrors.CodeForbidden, "organization may not change this batch's status")
			}
			return b.ApplyStatus(next, now)
		},
		func(*models.Batch) {},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "batch status changed", "batch_id", batchID, "status", next)
	return batch, nil
}

// UpdateUnitStatus applies a downstream custody event to a unit.
func (s *RegistryService) UpdateUnitStatus(ctx context.Context, serial id.SerialNumber, next models.UnitStatus) (*models.Unit, error) {
	unit, err := s.units.Execute(ctx, serial,
		func(u *models.Unit) error { return u.ApplyStatus(next) },
		func(*models.Unit) {},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unit not found")
		}
		return nil, err
	}
	return unit, nil
}

// AvailableUnits reports how many of a batch's units remain transferable
// stock (not dispatched, not returned). Transfer validation compares the
// requested quantity against this figure.
func (s *RegistryService) AvailableUnits(ctx context.Context, batchID id.BatchID) (int, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return 0, err
	}
	n, err := s.units.CountAvailable(ctx, batchID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "count available units")
	}
	return n, nil
}

// CreateOrganization registers a supply-chain participant.
func (s *RegistryService) CreateOrganization(ctx context.Context, name string, orgType models.OrgType) (*models.Organization, error) {
	o, err := models.NewOrganization(id.NewOrgID(), name, orgType, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.orgs.Create(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist organization")
	}
	s.logger.InfoContext(ctx, "organization created", "org_id", o.ID, "type", o.Type)
	return o, nil
}

// ledgerError maps adapter failures onto the caller-facing taxonomy:
// unreachable or timed-out ledger is retryable LedgerUnavailable; a broken
// sequence contract is an unrecoverable integrity violation.
func ledgerError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrIntegrity) {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, msg)
}

// generateBatchID builds a human-readable batch id: "BATCH-" + unix seconds +
// 4 random hex chars.
func generateBatchID(now time.Time) (id.BatchID, error) {
	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate batch id")
	}
	return id.BatchID(fmt.Sprintf("BATCH-%d%s", now.Unix(), strings.ToUpper(hex.EncodeToString(suffix)))), nil
}
