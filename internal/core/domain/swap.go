package domain

import (
	"context"
)

type Status string

const (
	StatusPendingEscrow Status = "PENDING_ESCROW"
	StatusActive        Status = "ACTIVE"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
	StatusExpired       Status = "EXPIRED"
)

// transitions lists the legal forward edges of the swap state machine.
// Same-status updates are always allowed so that non-status fields can be
// mutated in place.
var transitions = map[Status][]Status{
	StatusPendingEscrow: {StatusActive, StatusCancelled},
	StatusActive:        {StatusCompleted, StatusCancelled, StatusExpired},
}

// ValidTransition reports whether moving from one status to the other is
// legal. Terminal statuses admit no outgoing edge.
func ValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further status change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// EscrowRef is the ledger-assigned handle of a conditional escrow: the
// funding account plus the sequence number of the transaction that created
// it.
type EscrowRef struct {
	Owner    string
	Sequence uint32
}

func (r EscrowRef) IsZero() bool {
	return r.Owner == "" && r.Sequence == 0
}

// Swap is a single hash-locked exchange offer and its escrow lifecycle.
// Timestamps are ledger time expressed as unix seconds.
type Swap struct {
	Id           string
	FromAsset    string
	ToAsset      string
	Amount       float64
	ExchangeRate float64 // toAsset units per fromAsset unit, 0 when unset
	AssetType    string
	Creator      string
	Counterparty string // bound on accept
	Status       Status

	// Condition is the public hash commitment, safe to expose. Secret is the
	// redemption preimage; it is cleared, not hidden, once the swap reaches a
	// terminal status.
	Condition string
	Secret    []byte

	Escrow    EscrowRef
	FundingTx string // hash of the escrow-create transaction
	RedeemTx  string // hash of the finish or cancel transaction

	ExpiresAt   int64
	CreatedAt   int64
	UpdatedAt   int64
	CompletedAt int64
	CancelledAt int64
	ExpiredAt   int64
}

// Redacted returns a copy safe for listings and aggregation output: the
// redemption secret is stripped.
func (s Swap) Redacted() Swap {
	s.Secret = nil
	return s
}

// Expired reports whether the swap's escrow window has elapsed at the given
// ledger time.
func (s Swap) Expired(ledgerTime int64) bool {
	return ledgerTime >= s.ExpiresAt
}

// Filter narrows a repository listing. Zero values match everything.
type Filter struct {
	FromAsset string
	ToAsset   string
	Statuses  []Status
	MinAmount float64
	MaxAmount float64
}

// Matches reports whether the swap satisfies every set filter field.
func (f Filter) Matches(s Swap) bool {
	if f.FromAsset != "" && s.FromAsset != f.FromAsset {
		return false
	}
	if f.ToAsset != "" && s.ToAsset != f.ToAsset {
		return false
	}
	if f.MinAmount > 0 && s.Amount < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && s.Amount > f.MaxAmount {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if s.Status == st {
				return true
			}
		}
		return false
	}
	return true
}

// Mutator receives the current record and returns the next one. The proposed
// status change is validated against the state machine before being
// committed.
type Mutator func(Swap) (Swap, error)

// SwapRepository stores swap records keyed by id. Update is an atomic
// read-modify-write scoped to a single id; List returns a point-in-time
// consistent snapshot that never includes the redemption secret.
type SwapRepository interface {
	Create(ctx context.Context, swap Swap) error
	Get(ctx context.Context, id string) (*Swap, error)
	Update(ctx context.Context, id string, mutate Mutator) (*Swap, error)
	List(ctx context.Context, filter Filter) ([]Swap, error)
	Close()
}
