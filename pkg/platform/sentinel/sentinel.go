package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors or gate codes.
//
//   - ErrNotFound: no row/record for the key
//   - ErrTableMissing: the backing relation does not exist (deployment defect)
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrUnavailable: the backend could not be reached
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrTableMissing = errors.New("table missing")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)
