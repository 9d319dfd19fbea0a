package application

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/core/ports"
	"github.com/rwax/swapd/pkg/condition"
)

const (
	defaultCallTimeout = 10 * time.Second
	maxResubmits       = 2
)

// EscrowOrchestrator drives conditional-escrow operations against the ledger
// client. Every call carries a bounded timeout; a timed-out submission is
// resolved by querying ledger state before resubmitting, so the orchestrator
// never double-escrows. Exactly-once effect is still the ledger's job, via
// transaction sequencing.
type EscrowOrchestrator struct {
	ledger      ports.LedgerClient
	callTimeout time.Duration
}

func NewEscrowOrchestrator(ledger ports.LedgerClient, callTimeout time.Duration) *EscrowOrchestrator {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &EscrowOrchestrator{ledger: ledger, callTimeout: callTimeout}
}

func (o *EscrowOrchestrator) resubmitPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(policy, maxResubmits), ctx)
}

// CreateEscrow submits a conditional, time-bound hold of funds and returns
// the ledger-assigned escrow handle.
func (o *EscrowOrchestrator) CreateEscrow(
	ctx context.Context,
	creatorKey, destination, asset string, amount float64,
	cond string, expiresAt int64,
) (domain.EscrowRef, *ports.TxResult, error) {
	var (
		ref domain.EscrowRef
		res *ports.TxResult
	)

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		r, tx, err := o.ledger.CreateEscrow(callCtx, creatorKey, destination, asset, amount, cond, expiresAt)
		if err == nil {
			ref, res = r, tx
			return nil
		}
		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}

		// The submission may have landed despite the timeout. Look the escrow
		// up by its condition before trying again.
		found, state, qerr := o.ledger.FindEscrow(ctx, creatorKey, cond)
		if qerr == nil && state == ports.EscrowHeld {
			log.WithField("escrow_owner", found.Owner).
				WithField("escrow_seq", found.Sequence).
				Debug("escrow found on ledger after timeout")
			ref, res = found, &ports.TxResult{ResultCode: "tesSUCCESS"}
			return nil
		}
		return err
	}

	if err := backoff.Retry(operation, o.resubmitPolicy(ctx)); err != nil {
		return domain.EscrowRef{}, nil, unwrapPermanent(err)
	}
	return ref, res, nil
}

// FinishEscrow submits the redemption proof for an active escrow. The
// fulfillment is checked against the condition locally first, so a wrong
// secret never reaches the ledger.
func (o *EscrowOrchestrator) FinishEscrow(
	ctx context.Context,
	finisherKey string, ref domain.EscrowRef, cond string, preimage []byte,
) (*ports.TxResult, error) {
	if !condition.Verify(cond, preimage) {
		return nil, domain.ErrConditionMismatch
	}
	fulfillment, err := condition.Fulfillment(preimage)
	if err != nil {
		return nil, domain.ErrConditionMismatch
	}

	var res *ports.TxResult
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		tx, err := o.ledger.FinishEscrow(callCtx, finisherKey, ref, cond, fulfillment)
		if err == nil {
			res = tx
			return nil
		}
		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}

		state, qerr := o.ledger.QueryEscrow(ctx, ref)
		if qerr == nil && state == ports.EscrowFinished {
			res = &ports.TxResult{ResultCode: "tesSUCCESS"}
			return nil
		}
		return err
	}

	if err := backoff.Retry(operation, o.resubmitPolicy(ctx)); err != nil {
		return nil, unwrapPermanent(err)
	}
	return res, nil
}

// CancelEscrow reclaims an escrow's funds after its expiry. The ledger's
// clock is authoritative: a cancel before expiry fails ErrNotYetExpired
// without submitting anything.
func (o *EscrowOrchestrator) CancelEscrow(
	ctx context.Context, cancellerKey string, ref domain.EscrowRef, expiresAt int64,
) (*ports.TxResult, error) {
	now, err := o.ledger.LedgerTime(ctx)
	if err != nil {
		return nil, err
	}
	if now < expiresAt {
		return nil, domain.ErrNotYetExpired
	}

	var res *ports.TxResult
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		tx, err := o.ledger.CancelEscrow(callCtx, cancellerKey, ref)
		if err == nil {
			res = tx
			return nil
		}
		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}

		state, qerr := o.ledger.QueryEscrow(ctx, ref)
		if qerr == nil && state == ports.EscrowCancelled {
			res = &ports.TxResult{ResultCode: "tesSUCCESS"}
			return nil
		}
		return err
	}

	if err := backoff.Retry(operation, o.resubmitPolicy(ctx)); err != nil {
		return nil, unwrapPermanent(err)
	}
	return res, nil
}

// LedgerTime exposes the ledger clock to the controller.
func (o *EscrowOrchestrator) LedgerTime(ctx context.Context) (int64, error) {
	return o.ledger.LedgerTime(ctx)
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
