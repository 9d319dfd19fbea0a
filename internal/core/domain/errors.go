package domain

import "errors"

var (
	ErrValidation        = errors.New("invalid swap parameters")
	ErrInvalidState      = errors.New("illegal state transition")
	ErrNotFound          = errors.New("swap not found")
	ErrAlreadyExists     = errors.New("swap already exists")
	ErrConditionMismatch = errors.New("fulfillment does not match condition")
	ErrLedgerTimeout     = errors.New("ledger request timed out")
	ErrLedgerRejected    = errors.New("ledger rejected transaction")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotYetExpired     = errors.New("escrow has not expired yet")
	ErrAlreadyFinished   = errors.New("escrow already finished")
	ErrAlreadyExpired    = errors.New("escrow already expired")
	ErrConflict          = errors.New("swap changed concurrently")
)

// Retryable reports whether the error is safe to retry blindly. Only ledger
// timeouts qualify: the ledger deduplicates resubmissions by sequence, while
// a rejection is a final verdict.
func Retryable(err error) bool {
	return errors.Is(err, ErrLedgerTimeout)
}
