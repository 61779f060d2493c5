// Package service drives the ownership-transfer state machine: rule-matrix
// validation of new requests, custody-party-only transitions, and
// history-derived ownership resolution.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	registrymodels "pharmatrace/internal/registry/models"
	transfermetrics "pharmatrace/internal/transfer/metrics"
	"pharmatrace/internal/transfer/models"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/platform/sentinel"
	"pharmatrace/pkg/requestcontext"
)

// expiryWarningWindow triggers a non-blocking warning when a batch expires
// soon after the requested handoff.
const expiryWarningWindow = 30 * 24 * time.Hour

// largeTransferThreshold triggers a non-blocking warning on unusually large
// quantity requests.
const largeTransferThreshold = 10000

// TransferStore is the persistence surface for transfers. Create must enforce
// the one-active-transfer-per-batch invariant at the storage boundary and
// report a violation as sentinel.ErrConflict.
type TransferStore interface {
	Create(ctx context.Context, t *models.Transfer) error
	FindByID(ctx context.Context, transferID id.TransferID) (*models.Transfer, error)
	ListByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Transfer, error)
	FindActiveByBatch(ctx context.Context, batchID id.BatchID) (*models.Transfer, error)
	LatestCompleted(ctx context.Context, batchID id.BatchID) (*models.Transfer, error)
	Execute(ctx context.Context, transferID id.TransferID, validate func(*models.Transfer) error, mutate func(*models.Transfer)) (*models.Transfer, error)
}

// BatchReader is the read surface the engine needs over batch records.
type BatchReader interface {
	FindByID(ctx context.Context, batchID id.BatchID) (*registrymodels.Batch, error)
	Execute(ctx context.Context, batchID id.BatchID, validate func(*registrymodels.Batch) error, mutate func(*registrymodels.Batch)) (*registrymodels.Batch, error)
}

// OrgReader is the read surface over organization records.
type OrgReader interface {
	FindByID(ctx context.Context, orgID id.OrgID) (*registrymodels.Organization, error)
}

// UnitCounter reports a batch's currently available unit count.
type UnitCounter interface {
	CountAvailable(ctx context.Context, batchID id.BatchID) (int, error)
}

// TransferService validates and drives ownership transfers.
type TransferService struct {
	transfers TransferStore
	batches   BatchReader
	orgs      OrgReader
	units     UnitCounter
	logger    *slog.Logger
	metrics   *transfermetrics.Metrics
	tracer    trace.Tracer
}

// Option configures a TransferService.
type Option func(*TransferService)

// WithMetrics attaches transfer metrics.
func WithMetrics(m *transfermetrics.Metrics) Option {
	return func(s *TransferService) { s.metrics = m }
}

// NewTransferService constructs the transfer engine.
func NewTransferService(transfers TransferStore, batches BatchReader, orgs OrgReader, units UnitCounter, logger *slog.Logger, opts ...Option) *TransferService {
	s := &TransferService{
		transfers: transfers,
		batches:   batches,
		orgs:      orgs,
		units:     units,
		logger:    logger,
		tracer:    otel.Tracer("pharmatrace/transfer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransferRequest carries a proposed custody handoff.
type TransferRequest struct {
	BatchID   id.BatchID
	FromOrgID id.OrgID
	ToOrgID   id.OrgID
	// Quantity is optional; zero means the whole batch.
	Quantity int
	Notes    string
}

// TransferResult is an accepted transfer plus the non-blocking warnings
// gathered during validation.
type TransferResult struct {
	Transfer *models.Transfer `json:"transfer"`
	Warnings []string         `json:"warnings,omitempty"`
}

// RequestTransfer validates a proposed handoff against the full rule set and,
// when every rule passes, creates the transfer in PENDING. Rules are
// evaluated in order and every applicable violation is reported, not just the
// first: callers render the complete list. Rules that depend on a record a
// prior rule failed to load are skipped rather than reported twice.
func (s *TransferService) RequestTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.RequestTransfer")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)

	v := s.validate(ctx, req, now)
	if s.metrics != nil {
		s.metrics.ObserveValidation(start)
	}
	if len(v.violations) > 0 {
		if s.metrics != nil {
			s.metrics.IncrementRejected()
		}
		s.logger.InfoContext(ctx, "transfer request rejected",
			"batch_id", req.BatchID, "violations", v.violations)
		return nil, dErrors.NewValidation(v.violations, v.warnings)
	}

	transfer := &models.Transfer{
		ID:        id.NewTransferID(),
		BatchID:   req.BatchID,
		FromOrgID: req.FromOrgID,
		ToOrgID:   req.ToOrgID,
		Quantity:  req.Quantity,
		Type:      models.GetTransferType(v.fromOrg.Type, v.toOrg.Type),
		Status:    models.TransferStatusPending,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.transfers.Create(ctx, transfer); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the race against a concurrent request: the storage-level
			// uniqueness constraint is the authority, rule 6 is advisory.
			return nil, dErrors.NewValidation(
				[]string{"rule 6: an active transfer already exists for this batch"}, v.warnings)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist transfer")
	}

	if s.metrics != nil {
		s.metrics.IncrementRequested(string(transfer.Type))
	}
	s.logger.InfoContext(ctx, "transfer requested",
		"transfer_id", transfer.ID, "batch_id", transfer.BatchID, "type", transfer.Type)
	return &TransferResult{Transfer: transfer, Warnings: v.warnings}, nil
}

// Advance applies a state transition on behalf of a custody party. On
// completion the transfer date is stamped and the batch's lifecycle status is
// moved along with the handoff.
func (s *TransferService) Advance(ctx context.Context, transferID id.TransferID, actingOrg id.OrgID, next models.TransferStatus, notes string) (*models.Transfer, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.Advance")
	defer span.End()
	now := requestcontext.Now(ctx)

	transfer, err := s.transfers.Execute(ctx, transferID,
		func(t *models.Transfer) error {
			if !t.Party(actingOrg) {
				return dErrors.New(dErrors.CodeUnauthorized, "only the custody parties may drive a transfer")
			}
			if t.Status == models.TransferStatusPending && next == models.TransferStatusCompleted {
				if policy, ok := s.rulePolicy(ctx, t); ok && policy.RequiresApproval {
					return dErrors.New(dErrors.CodeInvalidTransition,
						"this transfer requires acceptance; move it to IN_PROGRESS first")
				}
			}
			return t.Advance(next, now)
		},
		func(t *models.Transfer) {
			if notes != "" {
				t.Notes = notes
			}
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transfer not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(transfer.Status))
	}
	s.logger.InfoContext(ctx, "transfer advanced",
		"transfer_id", transfer.ID, "batch_id", transfer.BatchID, "status", transfer.Status)

	s.applyBatchSideEffect(ctx, transfer, now)
	return transfer, nil
}

// GetTransfer retrieves a transfer by id.
func (s *TransferService) GetTransfer(ctx context.Context, transferID id.TransferID) (*models.Transfer, error) {
	transfer, err := s.transfers.FindByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transfer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load transfer")
	}
	return transfer, nil
}

// ListTransfers returns a batch's transfer history, newest first.
func (s *TransferService) ListTransfers(ctx context.Context, batchID id.BatchID) ([]*models.Transfer, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load batch")
	}
	transfers, err := s.transfers.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list transfers")
	}
	return transfers, nil
}

// CurrentOwner resolves a batch's owner from its transfer history: the
// destination of the most recent COMPLETED transfer, or the creator when the
// batch has never changed hands. Ownership is never read from a stored field,
// so it can never drift from the transfer log.
func (s *TransferService) CurrentOwner(ctx context.Context, batchID id.BatchID) (id.OrgID, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.OrgID{}, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return id.OrgID{}, dErrors.Wrap(err, dErrors.CodeInternal, "load batch")
	}

	latest, err := s.transfers.LatestCompleted(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return batch.CreatorOrgID, nil
		}
		return id.OrgID{}, dErrors.Wrap(err, dErrors.CodeInternal, "load transfer history")
	}
	return latest.ToOrgID, nil
}

// rulePolicy looks up the rule-matrix policy governing an existing transfer.
// Missing org records degrade to "no policy" rather than failing the
// transition; the pair was validated at request time.
func (s *TransferService) rulePolicy(ctx context.Context, t *models.Transfer) (models.RulePolicy, bool) {
	from, err := s.orgs.FindByID(ctx, t.FromOrgID)
	if err != nil {
		return models.RulePolicy{}, false
	}
	to, err := s.orgs.FindByID(ctx, t.ToOrgID)
	if err != nil {
		return models.RulePolicy{}, false
	}
	return models.LookupRule(from.Type, to.Type)
}

// applyBatchSideEffect moves the batch's lifecycle status along with the
// transfer: IN_TRANSIT while a handoff is in progress, DELIVERED once it
// completes. A batch already in the target status is left alone; a failed or
// cancelled transfer changes nothing.
func (s *TransferService) applyBatchSideEffect(ctx context.Context, t *models.Transfer, now time.Time) {
	var target registrymodels.BatchStatus
	switch t.Status {
	case models.TransferStatusInProgress:
		target = registrymodels.BatchStatusInTransit
	case models.TransferStatusCompleted:
		target = registrymodels.BatchStatusDelivered
	default:
		return
	}

	_, err := s.batches.Execute(ctx, t.BatchID,
		func(b *registrymodels.Batch) error { return b.ApplyStatus(target, now) },
		func(*registrymodels.Batch) {},
	)
	if err != nil {
		// The transfer itself already committed; a blocked lifecycle edge
		// (e.g. a recall racing the handoff) is logged, not unwound.
		s.logger.WarnContext(ctx, "batch status not updated after transfer transition",
			"batch_id", t.BatchID, "transfer_id", t.ID, "target_status", target, "error", err)
	}
}
