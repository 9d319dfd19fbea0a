package ports

import "context"

// PriceOracle values assets in a reference quote asset. Pricing is an
// external collaborator; the engine only consumes it for aggregate views.
type PriceOracle interface {
	// ReferenceRate returns the value of one unit of asset in the oracle's
	// reference quote asset.
	ReferenceRate(ctx context.Context, asset string) (float64, error)
	ReferenceAsset() string
}
