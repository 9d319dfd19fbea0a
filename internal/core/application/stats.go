package application

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/core/ports"
)

// Aggregate is a point-in-time summary over the registry.
type Aggregate struct {
	Counts         map[domain.Status]int `json:"counts"`
	TotalVolume    float64               `json:"totalVolume"`
	NotionalVolume float64               `json:"notionalVolume"`
	ReferenceAsset string                `json:"referenceAsset"`
	SuccessRate    float64               `json:"successRate"`
}

// DepthEntry is one price level on a side of the book.
type DepthEntry struct {
	SwapId    string  `json:"swapId"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	CreatedAt int64   `json:"createdAt"`
}

// MarketDepth is a two-sided view over open swaps for one asset pair. Prices
// are quote units per base unit on both sides; the ask side mirrors
// quote-to-base offers through the reciprocal of their raw rate.
type MarketDepth struct {
	BaseAsset  string       `json:"baseAsset"`
	QuoteAsset string       `json:"quoteAsset"`
	Bids       []DepthEntry `json:"bids"`
	Asks       []DepthEntry `json:"asks"`
	Spread     float64      `json:"spread"`
}

// StatisticsView builds read-only aggregations over the swap registry. It
// works on snapshots and never blocks writers.
type StatisticsView struct {
	repo   domain.SwapRepository
	oracle ports.PriceOracle
}

func NewStatisticsView(repoManager ports.RepoManager, oracle ports.PriceOracle) *StatisticsView {
	return &StatisticsView{repo: repoManager.Swaps(), oracle: oracle}
}

// Aggregate counts swaps per status, sums traded volume and computes the
// success rate over settled swaps. Notional volume values each swap's
// fromAsset through the price oracle.
func (v *StatisticsView) Aggregate(ctx context.Context) (*Aggregate, error) {
	swaps, err := v.repo.List(ctx, domain.Filter{})
	if err != nil {
		return nil, err
	}

	agg := &Aggregate{
		Counts:         make(map[domain.Status]int),
		ReferenceAsset: v.oracle.ReferenceAsset(),
	}
	for _, swap := range swaps {
		agg.Counts[swap.Status]++
		agg.TotalVolume += swap.Amount

		rate, err := v.oracle.ReferenceRate(ctx, swap.FromAsset)
		if err != nil {
			log.WithError(err).WithField("asset", swap.FromAsset).Debug("no reference rate")
			continue
		}
		agg.NotionalVolume += swap.Amount * rate
	}

	settled := agg.Counts[domain.StatusCompleted] +
		agg.Counts[domain.StatusCancelled] +
		agg.Counts[domain.StatusExpired]
	if settled > 0 {
		agg.SuccessRate = float64(agg.Counts[domain.StatusCompleted]) / float64(settled)
	}
	return agg, nil
}

// BuildDepth partitions open swaps into bid and ask sides for the pair.
// Direct base-to-quote offers are bids priced at their raw rate; mirrored
// quote-to-base offers are asks priced at the reciprocal. Bids sort
// descending, asks ascending, creation time breaks ties; each side is
// truncated to depth entries. Spread is best ask minus best bid and may be
// negative on a crossed book; it is zero when either side is empty.
func (v *StatisticsView) BuildDepth(ctx context.Context, baseAsset, quoteAsset string, depth int) (*MarketDepth, error) {
	if depth <= 0 {
		depth = 10
	}

	open, err := v.repo.List(ctx, domain.Filter{
		Statuses: []domain.Status{domain.StatusPendingEscrow, domain.StatusActive},
	})
	if err != nil {
		return nil, err
	}

	book := &MarketDepth{BaseAsset: baseAsset, QuoteAsset: quoteAsset}
	for _, swap := range open {
		if swap.ExchangeRate <= 0 {
			continue
		}
		switch {
		case swap.FromAsset == baseAsset && swap.ToAsset == quoteAsset:
			book.Bids = append(book.Bids, DepthEntry{
				SwapId:    swap.Id,
				Price:     swap.ExchangeRate,
				Amount:    swap.Amount,
				CreatedAt: swap.CreatedAt,
			})
		case swap.FromAsset == quoteAsset && swap.ToAsset == baseAsset:
			book.Asks = append(book.Asks, DepthEntry{
				SwapId:    swap.Id,
				Price:     1 / swap.ExchangeRate,
				Amount:    swap.Amount,
				CreatedAt: swap.CreatedAt,
			})
		}
	}

	sortSide(book.Bids, false)
	sortSide(book.Asks, true)

	if len(book.Bids) > depth {
		book.Bids = book.Bids[:depth]
	}
	if len(book.Asks) > depth {
		book.Asks = book.Asks[:depth]
	}

	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		book.Spread = book.Asks[0].Price - book.Bids[0].Price
	}
	return book, nil
}

func sortSide(side []DepthEntry, ascending bool) {
	sort.SliceStable(side, func(i, j int) bool {
		if side[i].Price != side[j].Price {
			if ascending {
				return side[i].Price < side[j].Price
			}
			return side[i].Price > side[j].Price
		}
		if side[i].CreatedAt != side[j].CreatedAt {
			return side[i].CreatedAt < side[j].CreatedAt
		}
		return side[i].SwapId < side[j].SwapId
	})
}
