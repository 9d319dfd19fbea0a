// Package memledger is an in-process ledger simulator implementing the
// escrow capabilities the engine needs. It keeps its own clock (advanceable
// in tests), assigns per-owner sequence numbers, and enforces the same
// rules a real ledger would: conditions must be fulfilled to finish, and
// cancels are rejected before expiry.
package memledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/core/ports"
	"github.com/rwax/swapd/pkg/condition"
)

type escrow struct {
	ref         domain.EscrowRef
	destination string
	asset       string
	amount      float64
	cond        string
	expiresAt   int64
	state       ports.EscrowState
	createTx    string
}

type Service struct {
	mu      sync.Mutex
	escrows map[domain.EscrowRef]*escrow
	seqs    map[string]uint32
	skew    int64
	txCount uint64
}

func NewService() *Service {
	return &Service{
		escrows: make(map[domain.EscrowRef]*escrow),
		seqs:    make(map[string]uint32),
	}
}

// AdvanceTime moves the simulated ledger clock forward. Test hook.
func (s *Service) AdvanceTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skew += int64(d.Seconds())
}

func (s *Service) LedgerTime(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now(), nil
}

func (s *Service) now() int64 {
	return time.Now().Unix() + s.skew
}

func (s *Service) nextTxHash(owner string) string {
	s.txCount++
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", owner, s.txCount)))
	return strings.ToUpper(hex.EncodeToString(digest[:]))
}

// CreateEscrow is idempotent per (owner, condition): resubmitting the same
// hold returns the existing handle, mirroring how a sequenced ledger
// deduplicates a replayed transaction.
func (s *Service) CreateEscrow(
	ctx context.Context,
	creatorKey, destination, asset string, amount float64,
	cond string, expiresAt int64,
) (domain.EscrowRef, *ports.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EscrowRef{}, nil, fmt.Errorf("%w: %s", domain.ErrLedgerTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return domain.EscrowRef{}, nil, fmt.Errorf("%w: temBAD_AMOUNT", domain.ErrLedgerRejected)
	}
	if expiresAt <= s.now() {
		return domain.EscrowRef{}, nil, fmt.Errorf("%w: temBAD_EXPIRATION", domain.ErrLedgerRejected)
	}

	for _, e := range s.escrows {
		if e.ref.Owner == creatorKey && e.cond == cond && e.state == ports.EscrowHeld {
			return e.ref, &ports.TxResult{
				Hash: e.createTx, Sequence: e.ref.Sequence, ResultCode: "tesSUCCESS",
			}, nil
		}
	}

	s.seqs[creatorKey]++
	ref := domain.EscrowRef{Owner: creatorKey, Sequence: s.seqs[creatorKey]}
	tx := s.nextTxHash(creatorKey)
	s.escrows[ref] = &escrow{
		ref:         ref,
		destination: destination,
		asset:       asset,
		amount:      amount,
		cond:        cond,
		expiresAt:   expiresAt,
		state:       ports.EscrowHeld,
		createTx:    tx,
	}
	return ref, &ports.TxResult{Hash: tx, Sequence: ref.Sequence, ResultCode: "tesSUCCESS"}, nil
}

func (s *Service) FinishEscrow(
	ctx context.Context,
	finisherKey string, ref domain.EscrowRef, cond, fulfillment string,
) (*ports.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrLedgerTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escrows[ref]
	if !ok {
		return nil, fmt.Errorf("escrow %s/%d: %w", ref.Owner, ref.Sequence, domain.ErrNotFound)
	}
	switch e.state {
	case ports.EscrowFinished:
		return nil, fmt.Errorf("%w: tecNO_TARGET", domain.ErrAlreadyFinished)
	case ports.EscrowCancelled:
		return nil, fmt.Errorf("%w: tecNO_TARGET", domain.ErrAlreadyExpired)
	}
	if s.now() >= e.expiresAt {
		return nil, fmt.Errorf("%w: tecNO_PERMISSION", domain.ErrAlreadyExpired)
	}
	if e.cond != cond || !condition.VerifyFulfillment(e.cond, fulfillment) {
		return nil, fmt.Errorf("%w: tecCRYPTOCONDITION_ERROR", domain.ErrConditionMismatch)
	}

	e.state = ports.EscrowFinished
	return &ports.TxResult{Hash: s.nextTxHash(finisherKey), Sequence: ref.Sequence, ResultCode: "tesSUCCESS"}, nil
}

func (s *Service) CancelEscrow(
	ctx context.Context, cancellerKey string, ref domain.EscrowRef,
) (*ports.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrLedgerTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escrows[ref]
	if !ok {
		return nil, fmt.Errorf("escrow %s/%d: %w", ref.Owner, ref.Sequence, domain.ErrNotFound)
	}
	switch e.state {
	case ports.EscrowFinished:
		return nil, fmt.Errorf("%w: tecNO_TARGET", domain.ErrAlreadyFinished)
	case ports.EscrowCancelled:
		// Replayed cancel, same effect.
		return &ports.TxResult{Hash: s.nextTxHash(cancellerKey), Sequence: ref.Sequence, ResultCode: "tesSUCCESS"}, nil
	}
	if s.now() < e.expiresAt {
		return nil, fmt.Errorf("%w: tecNO_PERMISSION", domain.ErrNotYetExpired)
	}

	e.state = ports.EscrowCancelled
	return &ports.TxResult{Hash: s.nextTxHash(cancellerKey), Sequence: ref.Sequence, ResultCode: "tesSUCCESS"}, nil
}

func (s *Service) QueryEscrow(ctx context.Context, ref domain.EscrowRef) (ports.EscrowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[ref]
	if !ok {
		return ports.EscrowNotFound, nil
	}
	return e.state, nil
}

func (s *Service) FindEscrow(ctx context.Context, owner, cond string) (domain.EscrowRef, ports.EscrowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.escrows {
		if e.ref.Owner == owner && e.cond == cond {
			return e.ref, e.state, nil
		}
	}
	return domain.EscrowRef{}, ports.EscrowNotFound, nil
}
