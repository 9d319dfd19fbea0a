package ports

import (
	"context"

	"github.com/rwax/swapd/internal/core/domain"
)

// EscrowState is the ledger-side view of a conditional escrow.
type EscrowState string

const (
	EscrowHeld      EscrowState = "held"
	EscrowFinished  EscrowState = "finished"
	EscrowCancelled EscrowState = "cancelled"
	EscrowNotFound  EscrowState = "not_found"
)

// TxResult reports the outcome of a submitted ledger transaction.
type TxResult struct {
	Hash       string
	Sequence   uint32
	ResultCode string
}

// LedgerClient abstracts the three escrow capabilities the engine needs from
// the ledger: create a conditional time-gated hold, finish it by revealing a
// fulfillment, and cancel it once expired. Implementations map ledger result
// codes onto the domain error taxonomy; exactly-once effect is guaranteed by
// ledger-side transaction sequencing, not by retries here.
type LedgerClient interface {
	// CreateEscrow submits a conditional hold of amount fromAsset, owned by
	// creatorKey's account, releasable to destination, expiring at expiresAt.
	CreateEscrow(
		ctx context.Context,
		creatorKey, destination, asset string, amount float64,
		cond string, expiresAt int64,
	) (domain.EscrowRef, *TxResult, error)

	// FinishEscrow redeems the escrow by revealing the fulfillment.
	FinishEscrow(
		ctx context.Context,
		finisherKey string, ref domain.EscrowRef, cond, fulfillment string,
	) (*TxResult, error)

	// CancelEscrow reclaims the held funds; the ledger rejects it before the
	// escrow's expiry.
	CancelEscrow(
		ctx context.Context, cancellerKey string, ref domain.EscrowRef,
	) (*TxResult, error)

	// QueryEscrow resolves the current ledger-side state of an escrow handle.
	QueryEscrow(ctx context.Context, ref domain.EscrowRef) (EscrowState, error)

	// FindEscrow looks an escrow up by owner account and condition. Used to
	// resolve ambiguity after a submission timeout, before resubmitting.
	FindEscrow(ctx context.Context, owner, cond string) (domain.EscrowRef, EscrowState, error)

	// LedgerTime returns the ledger's notion of now as unix seconds. Expiry
	// comparisons use it instead of local wall-clock time.
	LedgerTime(ctx context.Context) (int64, error)
}
