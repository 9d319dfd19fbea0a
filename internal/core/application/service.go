package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/core/ports"
	"github.com/rwax/swapd/pkg/condition"
	"github.com/rwax/swapd/pkg/ratelimit"
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Service is the swap lifecycle controller. It owns the state machine:
// validation and state errors are returned synchronously without touching
// the ledger, and a record is only marked ACTIVE or COMPLETED after the
// corresponding ledger effect is confirmed.
//
// Ledger calls never run under a registry lock. Each mutating operation
// checks the expected state, performs the ledger call, then commits the
// transition through the registry's atomic Update; if the record moved in
// the meantime the commit fails instead of overwriting.
type Service struct {
	BuildInfo BuildInfo

	repo         domain.SwapRepository
	orchestrator *EscrowOrchestrator
	newCondition func() (*condition.Pair, error)

	mutatingLimiter *ratelimit.Limiter
	readLimiter     *ratelimit.Limiter
}

func NewService(
	buildInfo BuildInfo,
	repoManager ports.RepoManager,
	orchestrator *EscrowOrchestrator,
	mutatingLimiter, readLimiter *ratelimit.Limiter,
) *Service {
	return &Service{
		BuildInfo:       buildInfo,
		repo:            repoManager.Swaps(),
		orchestrator:    orchestrator,
		newCondition:    condition.Generate,
		mutatingLimiter: mutatingLimiter,
		readLimiter:     readLimiter,
	}
}

// OpenRequest carries the parameters of a new swap offer.
type OpenRequest struct {
	Creator      string
	FromAsset    string
	ToAsset      string
	Amount       float64
	ExchangeRate float64
	AssetType    string
	ExpiresAt    int64
}

// Open validates the offer, draws a fresh hash-lock and inserts a
// PENDING_ESCROW record. No funds are locked yet.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*domain.Swap, error) {
	if err := s.admitMutation(req.Creator); err != nil {
		return nil, err
	}

	if req.Creator == "" {
		return nil, fmt.Errorf("%w: missing creator", domain.ErrValidation)
	}
	if req.FromAsset == "" || req.ToAsset == "" {
		return nil, fmt.Errorf("%w: missing asset pair", domain.ErrValidation)
	}
	if req.FromAsset == req.ToAsset {
		return nil, fmt.Errorf("%w: fromAsset and toAsset must differ", domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if req.ExchangeRate < 0 {
		return nil, fmt.Errorf("%w: exchange rate must not be negative", domain.ErrValidation)
	}

	now, err := s.orchestrator.LedgerTime(ctx)
	if err != nil {
		return nil, err
	}
	if req.ExpiresAt <= now {
		return nil, fmt.Errorf("%w: expiry must be in the future", domain.ErrValidation)
	}

	pair, err := s.newCondition()
	if err != nil {
		return nil, err
	}

	swap := domain.Swap{
		Id:           uuid.New().String(),
		FromAsset:    req.FromAsset,
		ToAsset:      req.ToAsset,
		Amount:       req.Amount,
		ExchangeRate: req.ExchangeRate,
		AssetType:    req.AssetType,
		Creator:      req.Creator,
		Status:       domain.StatusPendingEscrow,
		Condition:    pair.Condition,
		Secret:       pair.Preimage,
		ExpiresAt:    req.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, swap); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"swap_id": swap.Id,
		"from":    swap.FromAsset,
		"to":      swap.ToAsset,
		"amount":  swap.Amount,
	}).Info("swap opened")

	redacted := swap.Redacted()
	return &redacted, nil
}

// Accept binds the counterparty and creates the ledger escrow. Concurrent
// accepts on the same id yield exactly one ACTIVE result; the rest fail the
// state check either before the ledger call or at commit time.
func (s *Service) Accept(ctx context.Context, id, counterpartyKey string) (*domain.Swap, error) {
	if err := s.admitMutation(counterpartyKey); err != nil {
		return nil, err
	}
	if counterpartyKey == "" {
		return nil, fmt.Errorf("%w: missing counterparty", domain.ErrValidation)
	}

	swap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Status != domain.StatusPendingEscrow {
		return nil, fmt.Errorf("%w: swap is %s", domain.ErrInvalidState, swap.Status)
	}

	// Ledger call happens with no lock held; the transition below re-checks
	// the state before committing. On ledger failure the record stays
	// PENDING_ESCROW and the caller may retry.
	ref, tx, err := s.orchestrator.CreateEscrow(
		ctx, swap.Creator, counterpartyKey, swap.FromAsset, swap.Amount, swap.Condition, swap.ExpiresAt,
	)
	if err != nil {
		log.WithError(err).WithField("swap_id", id).Warn("escrow creation failed")
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, func(cur domain.Swap) (domain.Swap, error) {
		if cur.Status != domain.StatusPendingEscrow {
			return cur, fmt.Errorf("%w: swap is %s", domain.ErrInvalidState, cur.Status)
		}
		cur.Status = domain.StatusActive
		cur.Counterparty = counterpartyKey
		cur.Escrow = ref
		cur.FundingTx = tx.Hash
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"swap_id":      id,
		"counterparty": counterpartyKey,
		"escrow_owner": ref.Owner,
		"escrow_seq":   ref.Sequence,
	}).Info("swap accepted")

	redacted := updated.Redacted()
	return &redacted, nil
}

// Complete redeems the escrow with the stored secret and wipes the secret
// from the backing store: once spent it must not remain retrievable. A
// failed hash check leaves the swap ACTIVE and is retryable.
func (s *Service) Complete(ctx context.Context, id, finisherKey string) (*domain.Swap, error) {
	if err := s.admitMutation(finisherKey); err != nil {
		return nil, err
	}

	swap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: swap is %s", domain.ErrInvalidState, swap.Status)
	}

	tx, err := s.orchestrator.FinishEscrow(ctx, finisherKey, swap.Escrow, swap.Condition, swap.Secret)
	if err != nil {
		log.WithError(err).WithField("swap_id", id).Warn("escrow finish failed")
		return nil, err
	}

	now, err := s.orchestrator.LedgerTime(ctx)
	if err != nil {
		now = swap.UpdatedAt
	}

	updated, err := s.repo.Update(ctx, id, func(cur domain.Swap) (domain.Swap, error) {
		if cur.Status != domain.StatusActive {
			return cur, fmt.Errorf("%w: swap is %s", domain.ErrConflict, cur.Status)
		}
		cur.Status = domain.StatusCompleted
		cur.Secret = nil
		cur.RedeemTx = tx.Hash
		cur.CompletedAt = now
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("swap_id", id).Info("swap completed")

	redacted := updated.Redacted()
	return &redacted, nil
}

// Cancel reclaims the swap for its creator. From PENDING_ESCROW it is a pure
// registry transition; from ACTIVE it must cancel the ledger escrow, which
// the ledger rejects before expiry. An EXPIRED swap may still reclaim its
// escrowed funds here; the registry status stays EXPIRED.
func (s *Service) Cancel(ctx context.Context, id, requesterKey string) (*domain.Swap, error) {
	if err := s.admitMutation(requesterKey); err != nil {
		return nil, err
	}

	swap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterKey != swap.Creator {
		return nil, fmt.Errorf("%w: only the creator may cancel", domain.ErrValidation)
	}

	now, err := s.orchestrator.LedgerTime(ctx)
	if err != nil {
		now = swap.UpdatedAt
	}

	switch swap.Status {
	case domain.StatusPendingEscrow:
		updated, err := s.repo.Update(ctx, id, func(cur domain.Swap) (domain.Swap, error) {
			if cur.Status != domain.StatusPendingEscrow {
				return cur, fmt.Errorf("%w: swap is %s", domain.ErrInvalidState, cur.Status)
			}
			cur.Status = domain.StatusCancelled
			cur.Secret = nil
			cur.CancelledAt = now
			return cur, nil
		})
		if err != nil {
			return nil, err
		}
		log.WithField("swap_id", id).Info("swap cancelled")
		redacted := updated.Redacted()
		return &redacted, nil

	case domain.StatusActive, domain.StatusExpired:
		tx, err := s.orchestrator.CancelEscrow(ctx, requesterKey, swap.Escrow, swap.ExpiresAt)
		if err != nil {
			log.WithError(err).WithField("swap_id", id).Warn("escrow cancel failed")
			return nil, err
		}

		updated, err := s.repo.Update(ctx, id, func(cur domain.Swap) (domain.Swap, error) {
			switch cur.Status {
			case domain.StatusActive:
				cur.Status = domain.StatusCancelled
				cur.CancelledAt = now
			case domain.StatusExpired:
				// Funds reclaimed after sweep; the terminal status stands.
			default:
				return cur, fmt.Errorf("%w: swap is %s", domain.ErrConflict, cur.Status)
			}
			cur.Secret = nil
			cur.RedeemTx = tx.Hash
			return cur, nil
		})
		if err != nil {
			return nil, err
		}
		log.WithField("swap_id", id).Info("swap cancelled, escrow reclaimed")
		redacted := updated.Redacted()
		return &redacted, nil

	default:
		return nil, fmt.Errorf("%w: swap is %s", domain.ErrInvalidState, swap.Status)
	}
}

// SweepExpired marks ACTIVE swaps whose expiry has elapsed (by ledger time)
// as EXPIRED in the registry only; fund reclaim still requires an explicit
// Cancel against the ledger. Repeated sweeps are idempotent. Returns the ids
// newly marked.
func (s *Service) SweepExpired(ctx context.Context) ([]string, error) {
	now, err := s.orchestrator.LedgerTime(ctx)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.List(ctx, domain.Filter{Statuses: []domain.Status{domain.StatusActive}})
	if err != nil {
		return nil, err
	}

	var expired []string
	for _, swap := range active {
		if !swap.Expired(now) {
			continue
		}
		_, err := s.repo.Update(ctx, swap.Id, func(cur domain.Swap) (domain.Swap, error) {
			if cur.Status != domain.StatusActive || !cur.Expired(now) {
				return cur, domain.ErrConflict
			}
			cur.Status = domain.StatusExpired
			cur.Secret = nil
			cur.ExpiredAt = now
			return cur, nil
		})
		if err != nil {
			// Raced with a complete or cancel; nothing to mark.
			continue
		}
		expired = append(expired, swap.Id)
	}

	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("swept expired swaps")
	}
	return expired, nil
}

// Get returns a single swap with the secret stripped.
func (s *Service) Get(ctx context.Context, id string) (*domain.Swap, error) {
	swap, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	redacted := swap.Redacted()
	return &redacted, nil
}

// List returns a consistent snapshot matching the filter; secrets never
// appear in listings.
func (s *Service) List(ctx context.Context, caller string, filter domain.Filter) ([]domain.Swap, error) {
	if err := s.admitRead(caller); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) admitMutation(key string) error {
	return admit(s.mutatingLimiter, key)
}

func (s *Service) admitRead(key string) error {
	return admit(s.readLimiter, key)
}

func admit(l *ratelimit.Limiter, key string) error {
	if l == nil {
		return nil
	}
	ok, retryAfter := l.Allow(key)
	if !ok {
		return fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, retryAfter)
	}
	return nil
}
