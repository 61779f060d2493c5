package models

import (
	"strings"
	"time"

	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusManufacturing    BatchStatus = "MANUFACTURING"
	BatchStatusReadyForDispatch BatchStatus = "READY_FOR_DISPATCH"
	BatchStatusInTransit        BatchStatus = "IN_TRANSIT"
	BatchStatusDelivered        BatchStatus = "DELIVERED"
	BatchStatusRecalled         BatchStatus = "RECALLED"
	BatchStatusExpired          BatchStatus = "EXPIRED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusRecalled || s == BatchStatusExpired
}

// Transferable reports whether a batch in this status may be the subject of a
// new ownership transfer.
func (s BatchStatus) Transferable() bool {
	switch s {
	case BatchStatusManufacturing, BatchStatusReadyForDispatch, BatchStatusInTransit, BatchStatusDelivered:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to next. Forward
// movement through the dispatch chain is free; recall and expiry are
// reachable from any non-terminal status.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case BatchStatusRecalled, BatchStatusExpired:
		return true
	case BatchStatusReadyForDispatch:
		return s == BatchStatusManufacturing
	case BatchStatusInTransit:
		// Manufacturers may ship straight from production, and a delivered
		// batch re-enters transit when custody moves again.
		return s == BatchStatusManufacturing || s == BatchStatusReadyForDispatch || s == BatchStatusDelivered
	case BatchStatusDelivered:
		// A single-step transfer completion may skip IN_TRANSIT.
		return s == BatchStatusManufacturing || s == BatchStatusReadyForDispatch || s == BatchStatusInTransit
	}
	return false
}

// Batch is a manufactured lot.
//
// Invariants:
//   - LedgerTopicID is assigned exactly once, at creation, before any unit of
//     the batch is minted; a batch with no topic cannot mint units
//   - BatchSize is positive and immutable
//   - ExpiryDate is strictly after ManufacturingDate
//   - Batches are never deleted, only status-transitioned
//
// Ownership is deliberately NOT a field. "Who owns this batch now" is always
// derived from transfer history (destination of the most recent COMPLETED
// transfer, or CreatorOrgID if none) so a cached pointer can never drift from
// the transfer log.
type Batch struct {
	ID                  id.BatchID  `json:"batch_id"`
	LedgerTopicID       string      `json:"ledger_topic_id"`
	DrugName            string      `json:"drug_name"`
	Composition         string      `json:"composition"`
	BatchSize           int         `json:"batch_size"`
	ManufacturingDate   time.Time   `json:"manufacturing_date"`
	ExpiryDate          time.Time   `json:"expiry_date"`
	StorageInstructions string      `json:"storage_instructions"`
	Status              BatchStatus `json:"status"`
	CreatorOrgID        id.OrgID    `json:"creator_org_id"`
	QRCodeURL           string      `json:"qr_code_url"`
	QRSignature         string      `json:"qr_signature"`
	UnitsCreated        int         `json:"units_created"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// NewBatch validates attributes and constructs a batch in MANUFACTURING
// status with no ledger topic yet. The topic and QR fields are filled in by
// the registry service once the ledger accepts the batch.
func NewBatch(batchID id.BatchID, creator id.OrgID, drugName, composition string, size int, mfgDate, expiryDate time.Time, storage string, now time.Time) (*Batch, error) {
	if strings.TrimSpace(string(batchID)) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "batch id is required")
	}
	if creator.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "creator organization is required")
	}
	if strings.TrimSpace(drugName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "drug name is required")
	}
	if size <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "batch size must be a positive integer")
	}
	if !expiryDate.After(mfgDate) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "expiry date must be strictly after manufacturing date")
	}

	return &Batch{
		ID:                  batchID,
		DrugName:            strings.TrimSpace(drugName),
		Composition:         strings.TrimSpace(composition),
		BatchSize:           size,
		ManufacturingDate:   mfgDate,
		ExpiryDate:          expiryDate,
		StorageInstructions: strings.TrimSpace(storage),
		Status:              BatchStatusManufacturing,
		CreatorOrgID:        creator,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// IsExpired reports whether the batch's expiry date has passed.
func (b *Batch) IsExpired(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}

// CanMint reports whether units may be minted for this batch.
// Minting requires an assigned ledger topic.
func (b *Batch) CanMint() error {
	if b.LedgerTopicID == "" {
		return dErrors.New(dErrors.CodeIntegrity, "batch has no ledger topic; cannot mint units")
	}
	return nil
}

// ApplyStatus transitions the batch status, rejecting illegal edges.
func (b *Batch) ApplyStatus(next BatchStatus, now time.Time) error {
	if b.Status == next {
		return nil
	}
	if !b.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"batch cannot move from "+string(b.Status)+" to "+string(next))
	}
	b.Status = next
	b.UpdatedAt = now
	return nil
}
