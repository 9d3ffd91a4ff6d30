package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into coded domain errors:
//   - ErrNotFound: no record with the requested id
//   - ErrInvalidState: record is in a state that forbids the requested change
//   - ErrUnavailable: backing store or dependency cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
