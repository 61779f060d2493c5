package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger adapter
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: uniqueness or active-transfer constraint violated
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: ledger or store temporarily unreachable / timed out
// - ErrIntegrity: ledger broke its monotonic-sequence contract; unrecoverable
//
// For validation errors (bad input, violated transfer rules), use
// pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrIntegrity    = errors.New("integrity violation")
)
