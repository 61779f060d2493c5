// Package minter builds batch and unit identities: serial numbers, ledger
// registrations, and signed QR payloads.
//
// Canonical strings are pipe-delimited and order-significant:
//
//	batch: "BATCH|" + batchID + "|" + topicID
//	unit:  serialNumber + "|" + batchID + "|" + ledgerSequence
//
// Serial numbers embed the 1-based ordinal zero-padded to 4 digits. The
// padding width is a wire-format contract: printed labels are parsed by
// downstream systems, so it must not change silently once in production.
package minter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"pharmatrace/internal/ledger"
	"pharmatrace/internal/registry/models"
	"pharmatrace/internal/signer"
	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
	"pharmatrace/pkg/requestcontext"
)

// serialSuffixBytes is the entropy appended after the ordinal; rendered as
// 2*serialSuffixBytes hex characters.
const serialSuffixBytes = 2

// Minter issues batch and unit identities against the ledger.
type Minter struct {
	ledger  ledger.Ledger
	secret  []byte
	baseURL string
}

// New constructs a Minter. The signing secret must be present: minting
// without a secret would issue unverifiable codes, which is an integrity
// failure, not a degraded mode.
func New(l ledger.Ledger, secret []byte, baseURL string) (*Minter, error) {
	if len(secret) == 0 {
		return nil, dErrors.New(dErrors.CodeIntegrity, "signing secret is not configured")
	}
	return &Minter{ledger: l, secret: secret, baseURL: baseURL}, nil
}

// BatchCanonical returns the canonical string signed into a batch QR payload.
func BatchCanonical(batchID id.BatchID, topicID string) string {
	return "BATCH|" + string(batchID) + "|" + topicID
}

// UnitCanonical returns the canonical string signed into a unit QR payload.
func UnitCanonical(serial id.SerialNumber, batchID id.BatchID, ledgerSeq int64) string {
	return string(serial) + "|" + string(batchID) + "|" + strconv.FormatInt(ledgerSeq, 10)
}

// CreateBatchTopic requests the batch's dedicated ledger topic. This is the
// one step with no compensating action: if it fails, batch creation as a
// whole must be aborted with nothing persisted.
func (m *Minter) CreateBatchTopic(ctx context.Context, batchID id.BatchID) (string, error) {
	topicID, err := m.ledger.CreateTopic(ctx, batchID)
	if err != nil {
		return "", fmt.Errorf("create batch topic: %w", err)
	}
	return topicID, nil
}

// SignedBatchPayload is a batch's verification URL and signature.
type SignedBatchPayload struct {
	URL       string
	Signature string
}

// SignBatchPayload signs the batch canonical string and builds the
// verification URL embedded in the batch QR code.
func (m *Minter) SignBatchPayload(batchID id.BatchID, topicID string) SignedBatchPayload {
	sig := signer.Sign(BatchCanonical(batchID, topicID), m.secret)
	return SignedBatchPayload{
		URL:       m.baseURL + "/verify/batch/" + url.PathEscape(string(batchID)) + "?sig=" + sig,
		Signature: sig,
	}
}

// unitRegisteredPayload is the ledger event body for a unit registration.
type unitRegisteredPayload struct {
	SerialNumber id.SerialNumber `json:"serial_number"`
	BatchID      id.BatchID      `json:"batch_id"`
	Ordinal      int             `json:"ordinal"`
}

// MintUnit mints the unit at the given 1-based ordinal: builds the serial
// number, appends a UNIT_REGISTERED event to the batch topic to obtain the
// ledger sequence, then signs (serial, batch, sequence) into the unit QR.
//
// The ledger append is the only side effect; on failure nothing is persisted
// and the same ordinal can be retried.
func (m *Minter) MintUnit(ctx context.Context, batch *models.Batch, ordinal int) (*models.Unit, error) {
	if err := batch.CanMint(); err != nil {
		return nil, err
	}
	if ordinal < 1 || ordinal > batch.BatchSize {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("ordinal %d out of range 1..%d", ordinal, batch.BatchSize))
	}

	serial, err := buildSerial(batch.ID, ordinal)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(unitRegisteredPayload{
		SerialNumber: serial,
		BatchID:      batch.ID,
		Ordinal:      ordinal,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal unit event")
	}

	seq, err := m.ledger.AppendEvent(ctx, batch.LedgerTopicID, ledger.EventUnitRegistered, payload)
	if err != nil {
		return nil, fmt.Errorf("register unit %d: %w", ordinal, err)
	}

	sig := signer.Sign(UnitCanonical(serial, batch.ID, seq), m.secret)
	return &models.Unit{
		SerialNumber:   serial,
		BatchID:        batch.ID,
		Ordinal:        ordinal,
		LedgerSequence: seq,
		QRCodeURL:      m.baseURL + "/verify/unit/" + url.PathEscape(string(serial)) + "?sig=" + sig,
		QRSignature:    sig,
		Status:         models.UnitStatusInStock,
		CreatedAt:      requestcontext.Now(ctx),
	}, nil
}

// MintResult reports a bulk mint. When FailedOrdinal is non-zero the mint
// stopped there; units for earlier ordinals were minted, handed to the sink,
// and retained, and the caller retries the remaining ordinal range.
type MintResult struct {
	Units         []*models.Unit
	FailedOrdinal int
	Err           error
}

// MintRange mints ordinals from..to inclusive, sequentially, stopping at the
// first failure. Ordinals present in skip are left alone, which makes retry
// of a partially minted batch idempotent. Each minted unit is passed to sink
// before the next ordinal is attempted, so a failure mid-range never loses
// already-minted units.
//
// This is deliberately at-least-once and non-atomic: rolling back external
// ledger appends is not realistic, and reprinting a few QR codes is harmless,
// so retry is ordinal-addressable instead.
func (m *Minter) MintRange(ctx context.Context, batch *models.Batch, from, to int, skip map[int]bool, sink func(*models.Unit) error) MintResult {
	var result MintResult
	for ordinal := from; ordinal <= to; ordinal++ {
		if skip[ordinal] {
			continue
		}
		unit, err := m.MintUnit(ctx, batch, ordinal)
		if err != nil {
			result.FailedOrdinal = ordinal
			result.Err = err
			return result
		}
		if sink != nil {
			if err := sink(unit); err != nil {
				result.FailedOrdinal = ordinal
				result.Err = fmt.Errorf("persist unit %d: %w", ordinal, err)
				return result
			}
		}
		result.Units = append(result.Units, unit)
	}
	return result
}

// buildSerial derives a unit serial: "UNIT-" + batchID + "-" + 4-digit
// zero-padded ordinal + random hex suffix. The suffix keeps serials globally
// unguessable even though ordinals are dense.
func buildSerial(batchID id.BatchID, ordinal int) (id.SerialNumber, error) {
	suffix := make([]byte, serialSuffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate serial suffix")
	}
	return id.SerialNumber(fmt.Sprintf("UNIT-%s-%04d%s", batchID, ordinal, hex.EncodeToString(suffix))), nil
}
