package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/core/ports"
	"github.com/rwax/swapd/pkg/condition"
)

// scriptedLedger fails submissions on cue so the retry and timeout
// resolution paths can be exercised deterministically.
type scriptedLedger struct {
	createCalls   int
	finishCalls   int
	cancelCalls   int
	failFirst     int
	heldAfterFail bool

	ref  domain.EscrowRef
	time int64
}

func (l *scriptedLedger) CreateEscrow(
	_ context.Context, _, _, _ string, _ float64, _ string, _ int64,
) (domain.EscrowRef, *ports.TxResult, error) {
	l.createCalls++
	if l.createCalls <= l.failFirst {
		return domain.EscrowRef{}, nil, domain.ErrLedgerTimeout
	}
	return l.ref, &ports.TxResult{Hash: "TX_CREATE", ResultCode: "tesSUCCESS"}, nil
}

func (l *scriptedLedger) FinishEscrow(
	_ context.Context, _ string, _ domain.EscrowRef, _, _ string,
) (*ports.TxResult, error) {
	l.finishCalls++
	if l.finishCalls <= l.failFirst {
		return nil, domain.ErrLedgerTimeout
	}
	return &ports.TxResult{Hash: "TX_FINISH", ResultCode: "tesSUCCESS"}, nil
}

func (l *scriptedLedger) CancelEscrow(
	_ context.Context, _ string, _ domain.EscrowRef,
) (*ports.TxResult, error) {
	l.cancelCalls++
	return &ports.TxResult{Hash: "TX_CANCEL", ResultCode: "tesSUCCESS"}, nil
}

func (l *scriptedLedger) QueryEscrow(_ context.Context, _ domain.EscrowRef) (ports.EscrowState, error) {
	return ports.EscrowNotFound, nil
}

func (l *scriptedLedger) FindEscrow(_ context.Context, _, _ string) (domain.EscrowRef, ports.EscrowState, error) {
	if l.heldAfterFail && l.createCalls > 0 {
		return l.ref, ports.EscrowHeld, nil
	}
	return domain.EscrowRef{}, ports.EscrowNotFound, nil
}

func (l *scriptedLedger) LedgerTime(_ context.Context) (int64, error) {
	return l.time, nil
}

func TestCreateEscrowResubmitsAfterTimeout(t *testing.T) {
	ledger := &scriptedLedger{
		failFirst: 1,
		ref:       domain.EscrowRef{Owner: "rOwner", Sequence: 7},
	}
	orch := NewEscrowOrchestrator(ledger, time.Second)

	ref, tx, err := orch.CreateEscrow(context.Background(), "rOwner", "rDest", "RWA", 10, "A025...", 9999)
	require.NoError(t, err)
	require.Equal(t, ledger.ref, ref)
	require.Equal(t, "TX_CREATE", tx.Hash)
	require.Equal(t, 2, ledger.createCalls)
}

func TestCreateEscrowRecoversLandedSubmission(t *testing.T) {
	// The first submission times out but actually lands. The lookup by
	// condition must short-circuit the resubmit.
	ledger := &scriptedLedger{
		failFirst:     10,
		heldAfterFail: true,
		ref:           domain.EscrowRef{Owner: "rOwner", Sequence: 3},
	}
	orch := NewEscrowOrchestrator(ledger, time.Second)

	ref, tx, err := orch.CreateEscrow(context.Background(), "rOwner", "rDest", "RWA", 10, "A025...", 9999)
	require.NoError(t, err)
	require.Equal(t, ledger.ref, ref)
	require.Equal(t, "tesSUCCESS", tx.ResultCode)
	require.Equal(t, 1, ledger.createCalls, "a landed submission must not be resubmitted")
}

func TestCreateEscrowGivesUpAfterMaxResubmits(t *testing.T) {
	ledger := &scriptedLedger{failFirst: 100}
	orch := NewEscrowOrchestrator(ledger, time.Second)

	_, _, err := orch.CreateEscrow(context.Background(), "rOwner", "rDest", "RWA", 10, "A025...", 9999)
	require.ErrorIs(t, err, domain.ErrLedgerTimeout)
	require.Equal(t, 1+maxResubmits, ledger.createCalls)
}

func TestFinishEscrowChecksConditionLocally(t *testing.T) {
	ledger := &scriptedLedger{}
	orch := NewEscrowOrchestrator(ledger, time.Second)

	pair, err := condition.Generate()
	require.NoError(t, err)

	wrong := make([]byte, condition.PreimageLen)
	_, err = orch.FinishEscrow(context.Background(), "rFinisher", domain.EscrowRef{Owner: "rOwner", Sequence: 1}, pair.Condition, wrong)
	require.ErrorIs(t, err, domain.ErrConditionMismatch)
	require.Zero(t, ledger.finishCalls, "a wrong secret must never reach the ledger")

	tx, err := orch.FinishEscrow(context.Background(), "rFinisher", domain.EscrowRef{Owner: "rOwner", Sequence: 1}, pair.Condition, pair.Preimage)
	require.NoError(t, err)
	require.Equal(t, "TX_FINISH", tx.Hash)
	require.Equal(t, 1, ledger.finishCalls)
}

func TestCancelEscrowRespectsLedgerClock(t *testing.T) {
	ledger := &scriptedLedger{time: 500}
	orch := NewEscrowOrchestrator(ledger, time.Second)
	ref := domain.EscrowRef{Owner: "rOwner", Sequence: 1}

	_, err := orch.CancelEscrow(context.Background(), "rOwner", ref, 1000)
	require.ErrorIs(t, err, domain.ErrNotYetExpired)
	require.Zero(t, ledger.cancelCalls)

	ledger.time = 1000
	tx, err := orch.CancelEscrow(context.Background(), "rOwner", ref, 1000)
	require.NoError(t, err)
	require.Equal(t, "TX_CANCEL", tx.Hash)
}
