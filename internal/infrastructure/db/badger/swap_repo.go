package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/rwax/swapd/internal/core/domain"
)

const swapDir = "swap"

type swapRepository struct {
	store *badgerhold.Store
}

func NewSwapRepository(baseDir string, logger badger.Logger) (domain.SwapRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, swapDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store}, nil
}

func (r *swapRepository) Create(ctx context.Context, swap domain.Swap) error {
	if err := r.store.Insert(swap.Id, toSwapData(swap)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("swap %s: %w", swap.Id, domain.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (r *swapRepository) Get(ctx context.Context, id string) (*domain.Swap, error) {
	var data swapData
	err := r.store.Get(id, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("swap %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	swap := data.toSwap()
	return &swap, nil
}

// Update runs the mutator inside a single badger transaction, so the
// read-modify-write is atomic per id. The proposed transition is checked
// against the state machine before being committed.
func (r *swapRepository) Update(ctx context.Context, id string, mutate domain.Mutator) (*domain.Swap, error) {
	var next domain.Swap
	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var data swapData
		if err := r.store.TxGet(tx, id, &data); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("swap %s: %w", id, domain.ErrNotFound)
			}
			return err
		}

		cur := data.toSwap()
		proposed, err := mutate(cur)
		if err != nil {
			return err
		}
		if proposed.Id != cur.Id {
			return fmt.Errorf("%w: swap id is immutable", domain.ErrInvalidState)
		}
		if !domain.ValidTransition(cur.Status, proposed.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, cur.Status, proposed.Status)
		}
		proposed.UpdatedAt = time.Now().Unix()

		if err := r.store.TxUpdate(tx, id, toSwapData(proposed)); err != nil {
			return err
		}
		next = proposed
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return nil, fmt.Errorf("swap %s: %w", id, domain.ErrConflict)
		}
		return nil, err
	}
	return &next, nil
}

func (r *swapRepository) List(ctx context.Context, filter domain.Filter) ([]domain.Swap, error) {
	var dataList []swapData
	if err := r.store.Find(&dataList, nil); err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}

	swaps := make([]domain.Swap, 0, len(dataList))
	for _, data := range dataList {
		swap := data.toSwap()
		if filter.Matches(swap) {
			swaps = append(swaps, swap.Redacted())
		}
	}
	return swaps, nil
}

func (r *swapRepository) Close() {
	// nolint:all
	r.store.Close()
}

type swapData struct {
	Id             string
	FromAsset      string
	ToAsset        string
	Amount         float64
	ExchangeRate   float64
	AssetType      string
	Creator        string
	Counterparty   string
	Status         domain.Status
	Condition      string
	Secret         []byte
	EscrowOwner    string
	EscrowSequence uint32
	FundingTx      string
	RedeemTx       string
	ExpiresAt      int64
	CreatedAt      int64
	UpdatedAt      int64
	CompletedAt    int64
	CancelledAt    int64
	ExpiredAt      int64
}

func toSwapData(swap domain.Swap) swapData {
	return swapData{
		Id:             swap.Id,
		FromAsset:      swap.FromAsset,
		ToAsset:        swap.ToAsset,
		Amount:         swap.Amount,
		ExchangeRate:   swap.ExchangeRate,
		AssetType:      swap.AssetType,
		Creator:        swap.Creator,
		Counterparty:   swap.Counterparty,
		Status:         swap.Status,
		Condition:      swap.Condition,
		Secret:         swap.Secret,
		EscrowOwner:    swap.Escrow.Owner,
		EscrowSequence: swap.Escrow.Sequence,
		FundingTx:      swap.FundingTx,
		RedeemTx:       swap.RedeemTx,
		ExpiresAt:      swap.ExpiresAt,
		CreatedAt:      swap.CreatedAt,
		UpdatedAt:      swap.UpdatedAt,
		CompletedAt:    swap.CompletedAt,
		CancelledAt:    swap.CancelledAt,
		ExpiredAt:      swap.ExpiredAt,
	}
}

func (s swapData) toSwap() domain.Swap {
	return domain.Swap{
		Id:           s.Id,
		FromAsset:    s.FromAsset,
		ToAsset:      s.ToAsset,
		Amount:       s.Amount,
		ExchangeRate: s.ExchangeRate,
		AssetType:    s.AssetType,
		Creator:      s.Creator,
		Counterparty: s.Counterparty,
		Status:       s.Status,
		Condition:    s.Condition,
		Secret:       s.Secret,
		Escrow: domain.EscrowRef{
			Owner:    s.EscrowOwner,
			Sequence: s.EscrowSequence,
		},
		FundingTx:   s.FundingTx,
		RedeemTx:    s.RedeemTx,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CompletedAt: s.CompletedAt,
		CancelledAt: s.CancelledAt,
		ExpiredAt:   s.ExpiredAt,
	}
}
