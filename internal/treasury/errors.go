package treasury

import "errors"

// Ledger-side protocol errors. Every failed operation leaves the ledger
// untouched; callers distinguish recoverable failures (ErrStaleRoot,
// ErrInvalidProof, ErrInsufficientValue) from fatal ones by sentinel.
var (
	// ErrCapacityExceeded is returned when the accumulator has no free slot
	// left. Fatal for further deposits on this instance.
	ErrCapacityExceeded = errors.New("treasury: accumulator capacity exceeded")

	// ErrIndexNotFilled is returned when a witness or spend is requested for
	// a slot that has never been written. Caller bug.
	ErrIndexNotFilled = errors.New("treasury: leaf index not filled")

	// ErrStaleRoot is returned when a withdrawal proof was generated against
	// a root that is no longer current. Recoverable: regenerate and retry.
	ErrStaleRoot = errors.New("treasury: claimed root is stale")

	// ErrInvalidProof is returned when the verifier rejects the proof or the
	// public signals are malformed.
	ErrInvalidProof = errors.New("treasury: invalid withdrawal proof")

	// ErrAlreadySpent signals a replay attempt: the leaf index was already
	// consumed, either by an earlier withdrawal or earlier in the same batch.
	ErrAlreadySpent = errors.New("treasury: leaf already spent")

	// ErrInsufficientValue is returned when the batch's total value does not
	// cover the requested amount.
	ErrInsufficientValue = errors.New("treasury: batch value below requested amount")

	// ErrZeroValueDeposit is returned for deposits carrying no value.
	ErrZeroValueDeposit = errors.New("treasury: deposit value must be positive")
)
