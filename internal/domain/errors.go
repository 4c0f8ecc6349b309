package domain

import "errors"

// The ledger surfaces exactly four error kinds. Callers classify with
// errors.Is; everything below the ledger wraps into one of these.
var (
	// ErrInvalidInput marks a user-correctable request problem, such as a
	// non-positive amount or an unknown transaction kind.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a reference to a transaction or user that does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a lost race on a conditional update. It is internal
	// to the ledger: lost races are retried, and an exhausted retry budget
	// surfaces as ErrStorage. ErrConflict never crosses the service boundary.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrStorage marks an unavailable or misbehaving backing store. Safe for
	// the caller to retry: no partial state is left visible.
	ErrStorage = errors.New("storage failure")
)
