// Package models defines ownership transfers and the static custody-routing
// policy between organization types.
package models

import (
	"time"

	id "pharmatrace/pkg/domain"
	dErrors "pharmatrace/pkg/domain-errors"
)

// TransferStatus is the state of an ownership transfer.
//
// Legal edges:
//
//	PENDING     -> IN_PROGRESS, CANCELLED, COMPLETED (single-step handoff)
//	IN_PROGRESS -> COMPLETED, FAILED
//
// COMPLETED, FAILED, and CANCELLED are terminal.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "PENDING"
	TransferStatusInProgress TransferStatus = "IN_PROGRESS"
	TransferStatusCompleted  TransferStatus = "COMPLETED"
	TransferStatusFailed     TransferStatus = "FAILED"
	TransferStatusCancelled  TransferStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the transfer still blocks a new transfer request for
// the same batch.
func (s TransferStatus) Active() bool {
	return s == TransferStatusPending || s == TransferStatusInProgress
}

// CanTransitionTo reports whether the edge s -> next is legal.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	switch s {
	case TransferStatusPending:
		return next == TransferStatusInProgress || next == TransferStatusCancelled || next == TransferStatusCompleted
	case TransferStatusInProgress:
		return next == TransferStatusCompleted || next == TransferStatusFailed
	}
	return false
}

// Transfer is a proposed or executed custody handoff of a whole batch.
// Ownership is never written to the batch record: the current owner of a
// batch is the destination of its most recent COMPLETED transfer, or the
// creator when none exists.
type Transfer struct {
	ID        id.TransferID `json:"id"`
	BatchID   id.BatchID    `json:"batch_id"`
	FromOrgID id.OrgID      `json:"from_org_id"`
	ToOrgID   id.OrgID      `json:"to_org_id"`
	// Quantity is the requested unit count; zero means the whole batch.
	Quantity     int            `json:"quantity,omitempty"`
	Type         TransferType   `json:"type"`
	Status       TransferStatus `json:"status"`
	Notes        string         `json:"notes,omitempty"`
	TransferDate *time.Time     `json:"transfer_date,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Party reports whether orgID is one of the two custody parties. Only custody
// parties may drive the state machine.
func (t *Transfer) Party(orgID id.OrgID) bool {
	return t.FromOrgID == orgID || t.ToOrgID == orgID
}

// Advance applies a state transition, stamping TransferDate on completion.
// Illegal edges are rejected with an error naming both states.
func (t *Transfer) Advance(next TransferStatus, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"transfer cannot move from "+string(t.Status)+" to "+string(next))
	}
	t.Status = next
	t.UpdatedAt = now
	if next == TransferStatusCompleted {
		stamp := now
		t.TransferDate = &stamp
	}
	return nil
}
