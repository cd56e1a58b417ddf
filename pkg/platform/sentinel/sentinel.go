package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and ledgers return these
// (optionally wrapped) so services can translate them into domain codes.
//
// These describe what the backing store observed, not whether the caller may
// do something:
// - ErrNotFound: record does not exist
// - ErrConflict: a unique record already exists
// - ErrInsufficient: an account cannot cover the requested amount
// - ErrUnavailable: backing service unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInsufficient = errors.New("insufficient balance")
	ErrUnavailable  = errors.New("unavailable")
)
