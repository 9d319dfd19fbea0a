// Package inmem is the reference in-memory swap store. It keeps full records
// by value, so reads hand out snapshots and Update is the only way to mutate
// a record.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rwax/swapd/internal/core/domain"
)

type swapRepository struct {
	mu    sync.RWMutex
	swaps map[string]domain.Swap

	// locks serializes Update calls per swap id, so unrelated swaps never
	// contend with each other.
	locks sync.Map
}

func NewSwapRepository() domain.SwapRepository {
	return &swapRepository{swaps: make(map[string]domain.Swap)}
}

func (r *swapRepository) Create(ctx context.Context, swap domain.Swap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.swaps[swap.Id]; ok {
		return fmt.Errorf("swap %s: %w", swap.Id, domain.ErrAlreadyExists)
	}
	r.swaps[swap.Id] = cloneSwap(swap)
	return nil
}

func (r *swapRepository) Get(ctx context.Context, id string) (*domain.Swap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	swap, ok := r.swaps[id]
	if !ok {
		return nil, fmt.Errorf("swap %s: %w", id, domain.ErrNotFound)
	}
	swap = cloneSwap(swap)
	return &swap, nil
}

func (r *swapRepository) Update(ctx context.Context, id string, mutate domain.Mutator) (*domain.Swap, error) {
	lock, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	idLock := lock.(*sync.Mutex)
	idLock.Lock()
	defer idLock.Unlock()

	r.mu.RLock()
	cur, ok := r.swaps[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("swap %s: %w", id, domain.ErrNotFound)
	}

	proposed, err := mutate(cloneSwap(cur))
	if err != nil {
		return nil, err
	}
	if proposed.Id != cur.Id {
		return nil, fmt.Errorf("%w: swap id is immutable", domain.ErrInvalidState)
	}
	if !domain.ValidTransition(cur.Status, proposed.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, cur.Status, proposed.Status)
	}
	proposed.UpdatedAt = time.Now().Unix()

	r.mu.Lock()
	r.swaps[id] = cloneSwap(proposed)
	r.mu.Unlock()

	return &proposed, nil
}

func (r *swapRepository) List(ctx context.Context, filter domain.Filter) ([]domain.Swap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	swaps := make([]domain.Swap, 0, len(r.swaps))
	for _, swap := range r.swaps {
		if filter.Matches(swap) {
			swaps = append(swaps, swap.Redacted())
		}
	}
	return swaps, nil
}

func (r *swapRepository) Close() {}

func cloneSwap(s domain.Swap) domain.Swap {
	if s.Secret != nil {
		secret := make([]byte, len(s.Secret))
		copy(secret, s.Secret)
		s.Secret = secret
	}
	return s
}
