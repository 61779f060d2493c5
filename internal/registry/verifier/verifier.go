// Package verifier answers authenticity checks for scanned batch and unit
// codes.
//
// Verification never trusts a stored validity flag: the expected signature is
// recomputed from the record's immutable identity fields on every call and
// compared in constant time. An unknown identifier yields {valid:false}, not
// an error, so a counterfeit code and a forged signature are indistinguishable
// to the person scanning.
package verifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"pharmatrace/internal/registry/minter"
	registrymetrics "pharmatrace/internal/registry/metrics"
	"pharmatrace/internal/registry/models"
	"pharmatrace/internal/signer"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/platform/sentinel"
	"pharmatrace/pkg/requestcontext"
)

// BatchStore is the read surface the verifier needs for batches.
type BatchStore interface {
	FindByID(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
}

// UnitStore is the read surface the verifier needs for units.
type UnitStore interface {
	FindBySerial(ctx context.Context, serial id.SerialNumber) (*models.Unit, error)
}

// BatchResult is the outcome of a batch verification.
type BatchResult struct {
	Valid bool          `json:"valid"`
	Batch *models.Batch `json:"batch"`
}

// UnitResult is the outcome of a unit verification.
type UnitResult struct {
	Valid bool         `json:"valid"`
	Unit  *models.Unit `json:"unit"`
}

// Verifier recomputes and checks QR signatures against persisted identity
// fields.
type Verifier struct {
	batches BatchStore
	units   UnitStore
	secret  []byte
	cache   *RecordCache
	group   singleflight.Group
	logger  *slog.Logger
	metrics *registrymetrics.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithCache attaches an optional record cache. Caching is purely a
// performance optimization; signature recomputation always runs.
func WithCache(c *RecordCache) Option {
	return func(v *Verifier) { v.cache = c }
}

// WithMetrics attaches registry metrics.
func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New constructs a Verifier. The secret may be absent at construction (e.g.
// partially configured dev environment); each verification call checks it and
// aborts with an integrity error rather than guessing.
func New(batches BatchStore, units UnitStore, secret []byte, logger *slog.Logger, opts ...Option) *Verifier {
	v := &Verifier{batches: batches, units: units, secret: secret, logger: logger}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyBatch checks a presented batch signature against the persisted
// (batchID, ledgerTopicID) pair.
func (v *Verifier) VerifyBatch(ctx context.Context, batchID id.BatchID, presentedSig string) (BatchResult, error) {
	start := time.Now()
	if len(v.secret) == 0 {
		return BatchResult{}, dErrors.New(dErrors.CodeIntegrity, "signing secret is not configured")
	}

	batch, err := v.lookupBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.observe(ctx, "batch", false, start)
			return BatchResult{Valid: false}, nil
		}
		return BatchResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "load batch record")
	}

	valid := signer.Verify(minter.BatchCanonical(batch.ID, batch.LedgerTopicID), presentedSig, v.secret)
	v.observe(ctx, "batch", valid, start)
	if !valid {
		// Invalid signature for a known id: answer with the same shape as a
		// counterfeit, no record attached.
		v.logger.InfoContext(ctx, "batch signature rejected", "batch_id", batchID)
		return BatchResult{Valid: false}, nil
	}
	return BatchResult{Valid: true, Batch: batch}, nil
}

// VerifyUnit checks a presented unit signature against the persisted
// (serialNumber, batchID, ledgerSequence) triple.
func (v *Verifier) VerifyUnit(ctx context.Context, serial id.SerialNumber, presentedSig string) (UnitResult, error) {
	start := time.Now()
	if len(v.secret) == 0 {
		return UnitResult{}, dErrors.New(dErrors.CodeIntegrity, "signing secret is not configured")
	}

	unit, err := v.lookupUnit(ctx, serial)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.observe(ctx, "unit", false, start)
			return UnitResult{Valid: false}, nil
		}
		return UnitResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "load unit record")
	}

	valid := signer.Verify(minter.UnitCanonical(unit.SerialNumber, unit.BatchID, unit.LedgerSequence), presentedSig, v.secret)
	v.observe(ctx, "unit", valid, start)
	if !valid {
		v.logger.InfoContext(ctx, "unit signature rejected", "serial_number", serial)
		return UnitResult{Valid: false}, nil
	}
	return UnitResult{Valid: true, Unit: unit}, nil
}

// lookupBatch reads through the cache, collapsing concurrent lookups for the
// same id into one store query.
func (v *Verifier) lookupBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	if v.cache != nil {
		if batch, ok := v.cache.GetBatch(ctx, batchID); ok {
			return batch, nil
		}
	}

	res, err, _ := v.group.Do("batch:"+string(batchID), func() (any, error) {
		batch, err := v.batches.FindByID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if v.cache != nil {
			v.cache.PutBatch(ctx, batch)
		}
		return batch, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.Batch), nil
}

func (v *Verifier) lookupUnit(ctx context.Context, serial id.SerialNumber) (*models.Unit, error) {
	if v.cache != nil {
		if unit, ok := v.cache.GetUnit(ctx, serial); ok {
			return unit, nil
		}
	}

	res, err, _ := v.group.Do("unit:"+string(serial), func() (any, error) {
		unit, err := v.units.FindBySerial(ctx, serial)
		if err != nil {
			return nil, err
		}
		if v.cache != nil {
			v.cache.PutUnit(ctx, unit)
		}
		return unit, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.Unit), nil
}

func (v *Verifier) observe(ctx context.Context, kind string, valid bool, start time.Time) {
	if v.metrics == nil {
		return
	}
	device := requestcontext.ScannerDevice(ctx)
	if device == "" {
		device = "unknown"
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	v.metrics.ObserveVerification(kind, result, device, start)
}
