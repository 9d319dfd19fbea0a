package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rwax/swapd/internal/core/domain"
	"github.com/rwax/swapd/internal/infrastructure/db"
	"github.com/rwax/swapd/internal/infrastructure/oracle/static"
)

func newStatsView(t *testing.T, swaps ...domain.Swap) *StatisticsView {
	t.Helper()
	repos, err := db.NewService(db.ServiceConfig{DbType: "inmem"})
	require.NoError(t, err)
	t.Cleanup(repos.Close)

	for _, swap := range swaps {
		require.NoError(t, repos.Swaps().Create(context.Background(), swap))
	}

	oracle := static.NewService("USD", map[string]float64{
		"RWA": 2,
		"XRP": 0.5,
	})
	return NewStatisticsView(repos, oracle)
}

func seedSwap(i int, status domain.Status, from, to string, amount, rate float64) domain.Swap {
	return domain.Swap{
		Id:           fmt.Sprintf("swap-%02d", i),
		FromAsset:    from,
		ToAsset:      to,
		Amount:       amount,
		ExchangeRate: rate,
		Creator:      "rCreator",
		Status:       status,
		CreatedAt:    int64(1000 + i),
	}
}

func TestAggregate(t *testing.T) {
	view := newStatsView(t,
		seedSwap(1, domain.StatusCompleted, "RWA", "XRP", 100, 0.5),
		seedSwap(2, domain.StatusCompleted, "RWA", "XRP", 200, 0.5),
		seedSwap(3, domain.StatusCancelled, "RWA", "XRP", 50, 0.5),
		seedSwap(4, domain.StatusExpired, "XRP", "RWA", 400, 2),
		seedSwap(5, domain.StatusActive, "XRP", "RWA", 1000, 2),
		seedSwap(6, domain.StatusPendingEscrow, "RWA", "XRP", 10, 0.5),
	)

	agg, err := view.Aggregate(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, agg.Counts[domain.StatusCompleted])
	require.Equal(t, 1, agg.Counts[domain.StatusCancelled])
	require.Equal(t, 1, agg.Counts[domain.StatusExpired])
	require.Equal(t, 1, agg.Counts[domain.StatusActive])
	require.Equal(t, 1, agg.Counts[domain.StatusPendingEscrow])

	require.InDelta(t, 1760, agg.TotalVolume, 1e-9)
	// RWA legs at rate 2, XRP legs at rate 0.5.
	require.InDelta(t, (100+200+50+10)*2+(400+1000)*0.5, agg.NotionalVolume, 1e-9)
	require.Equal(t, "USD", agg.ReferenceAsset)

	// 2 completed out of 4 settled.
	require.InDelta(t, 0.5, agg.SuccessRate, 1e-9)
}

func TestAggregateEmptyRegistry(t *testing.T) {
	view := newStatsView(t)

	agg, err := view.Aggregate(context.Background())
	require.NoError(t, err)
	require.Empty(t, agg.Counts)
	require.Zero(t, agg.TotalVolume)
	require.Zero(t, agg.SuccessRate)
}

func TestBuildDepth(t *testing.T) {
	view := newStatsView(t,
		// Bids: RWA offered for XRP, priced at the raw rate.
		seedSwap(1, domain.StatusPendingEscrow, "RWA", "XRP", 100, 0.5),
		seedSwap(2, domain.StatusActive, "RWA", "XRP", 200, 0.6),
		seedSwap(3, domain.StatusPendingEscrow, "RWA", "XRP", 300, 0.4),
		// Asks: XRP offered for RWA, priced at the reciprocal.
		seedSwap(4, domain.StatusPendingEscrow, "XRP", "RWA", 55, 1/0.55),
		seedSwap(5, domain.StatusActive, "XRP", "RWA", 65, 1/0.65),
		// Settled swaps never enter the book.
		seedSwap(6, domain.StatusCompleted, "RWA", "XRP", 999, 0.9),
		seedSwap(7, domain.StatusCancelled, "XRP", "RWA", 999, 1),
		// Other pairs and unpriced offers are skipped.
		seedSwap(8, domain.StatusActive, "RWA", "EUR", 10, 1.2),
		seedSwap(9, domain.StatusActive, "RWA", "XRP", 10, 0),
	)

	book, err := view.BuildDepth(context.Background(), "RWA", "XRP", 0)
	require.NoError(t, err)

	require.Len(t, book.Bids, 3)
	require.Equal(t, []string{"swap-02", "swap-01", "swap-03"}, sideIds(book.Bids))
	require.InDelta(t, 0.6, book.Bids[0].Price, 1e-9)
	require.InDelta(t, 0.5, book.Bids[1].Price, 1e-9)
	require.InDelta(t, 0.4, book.Bids[2].Price, 1e-9)

	require.Len(t, book.Asks, 2)
	require.Equal(t, []string{"swap-04", "swap-05"}, sideIds(book.Asks))
	require.InDelta(t, 0.55, book.Asks[0].Price, 1e-9)
	require.InDelta(t, 0.65, book.Asks[1].Price, 1e-9)

	// Best ask below best bid: crossed book, negative spread.
	require.InDelta(t, -0.05, book.Spread, 1e-9)
}

func TestBuildDepthTruncatesAndTieBreaks(t *testing.T) {
	older := seedSwap(1, domain.StatusActive, "RWA", "XRP", 100, 0.5)
	newer := seedSwap(2, domain.StatusActive, "RWA", "XRP", 200, 0.5)
	deep := seedSwap(3, domain.StatusActive, "RWA", "XRP", 300, 0.3)

	view := newStatsView(t, newer, older, deep)

	book, err := view.BuildDepth(context.Background(), "RWA", "XRP", 2)
	require.NoError(t, err)

	// Equal prices order by creation time; the third level is truncated.
	require.Equal(t, []string{"swap-01", "swap-02"}, sideIds(book.Bids))
	require.Empty(t, book.Asks)
	require.Zero(t, book.Spread, "one-sided book has no spread")
}

func sideIds(side []DepthEntry) []string {
	ids := make([]string, 0, len(side))
	for _, e := range side {
		ids = append(ids, e.SwapId)
	}
	return ids
}
