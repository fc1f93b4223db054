package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and chain clients return these
// (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist in the store, or the upstream has no such transaction
//   - ErrConflict: a unique key (alias, reference, txid) is already taken
//   - ErrUnavailable: upstream or store temporarily unavailable (circuit open, queue full)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
