package models

import (
	"time"

	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
)

// UnitStatus tracks a unit's custody state. Mutated by downstream custody
// events, never by the minting or verification paths.
type UnitStatus string

const (
	UnitStatusInStock    UnitStatus = "IN_STOCK"
	UnitStatusDispatched UnitStatus = "DISPATCHED"
	UnitStatusSold       UnitStatus = "SOLD"
	UnitStatusReturned   UnitStatus = "RETURNED"
	UnitStatusLost       UnitStatus = "LOST"
)

// Valid reports whether s is a known unit status.
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitStatusInStock, UnitStatusDispatched, UnitStatusSold, UnitStatusReturned, UnitStatusLost:
		return true
	}
	return false
}

// Available reports whether the unit counts toward a batch's transferable
// quantity. Dispatched and returned units are out of the available pool.
func (s UnitStatus) Available() bool {
	return s == UnitStatusInStock || s == UnitStatusSold || s == UnitStatusLost
}

// Unit is one physical saleable instance within a batch.
//
// Invariants:
//   - (SerialNumber, LedgerSequence) is immutable once minted
//   - QRSignature is a pure function of (SerialNumber, BatchID,
//     LedgerSequence) and the signing secret, recomputable without the store
//   - Units are never regenerated
type Unit struct {
	SerialNumber   id.SerialNumber `json:"serial_number"`
	BatchID        id.BatchID      `json:"batch_id"`
	Ordinal        int             `json:"ordinal"`
	LedgerSequence int64           `json:"ledger_sequence"`
	QRCodeURL      string          `json:"qr_code_url"`
	QRSignature    string          `json:"qr_signature"`
	Status         UnitStatus      `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ApplyStatus updates the custody status, rejecting unknown values.
func (u *Unit) ApplyStatus(next UnitStatus) error {
	if !next.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown unit status "+string(next))
	}
	u.Status = next
	return nil
}
