package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrVersionConflict means an optimistic write carried a stale version.
	// Callers reload state and retry.
	ErrVersionConflict = errors.New("version conflict")
	// ErrConcurrencyExhausted means the bounded reload-and-retry loop for a
	// version-conflicted write ran out of attempts.
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")

	// ErrLeaseBusy means another writer currently holds the learner's lease.
	ErrLeaseBusy = errors.New("lease busy")
	// ErrUnavailable means lease acquisition kept failing past the retry budget.
	ErrUnavailable = errors.New("unavailable")

	// ErrOracleTimeout and ErrOracleError are scoped to a single search
	// branch; the branch is dropped, the request never fails on them.
	ErrOracleTimeout = errors.New("oracle timeout")
	ErrOracleError   = errors.New("oracle error")
)
