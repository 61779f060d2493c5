// Package domain holds the typed identifiers shared across modules.
//
// UUID-backed identifiers get distinct Go types so an organization ID can
// never be passed where a transfer ID is expected. Batch and unit identifiers
// are human-readable strings because they appear verbatim on printed labels
// and in QR payloads.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OrgID identifies an organization (manufacturer, distributor, pharmacy,
// hospital, regulator).
type OrgID uuid.UUID

// TransferID identifies an ownership transfer.
type TransferID uuid.UUID

// BatchID is the human-readable batch identifier, e.g. "BATCH-1717171717-4F2A".
// It is chosen by the creating organization and globally unique.
type BatchID string

// SerialNumber is a unit's printed serial, e.g. "UNIT-BATCH-1001-0001a3f9".
type SerialNumber string

func (o OrgID) String() string      { return uuid.UUID(o).String() }
func (t TransferID) String() string { return uuid.UUID(t).String() }

// IsZero reports whether the ID is the nil UUID.
func (o OrgID) IsZero() bool      { return uuid.UUID(o) == uuid.Nil }
func (t TransferID) IsZero() bool { return uuid.UUID(t) == uuid.Nil }

// NewOrgID returns a random organization ID.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// NewTransferID returns a random transfer ID.
func NewTransferID() TransferID { return TransferID(uuid.New()) }

// ParseOrgID parses a UUID string into an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OrgID{}, fmt.Errorf("parse org id: %w", err)
	}
	return OrgID(u), nil
}

// ParseTransferID parses a UUID string into a TransferID.
func ParseTransferID(s string) (TransferID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TransferID{}, fmt.Errorf("parse transfer id: %w", err)
	}
	return TransferID(u), nil
}

// MarshalText implements encoding.TextMarshaler so the IDs render as plain
// UUID strings in JSON.
func (o OrgID) MarshalText() ([]byte, error)      { return []byte(o.String()), nil }
func (t TransferID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OrgID) UnmarshalText(b []byte) error {
	parsed, err := ParseOrgID(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (t *TransferID) UnmarshalText(b []byte) error {
	parsed, err := ParseTransferID(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
