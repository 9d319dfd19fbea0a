// Package static is a mocked price oracle with fixed reference rates.
// Valuation is an external concern; this exists so aggregate views have a
// working collaborator in dev and tests.
package static

import (
	"context"
	"fmt"
	"sync"

	"github.com/rwax/swapd/internal/core/ports"
)

type Service struct {
	referenceAsset string

	mu    sync.RWMutex
	rates map[string]float64
}

func NewService(referenceAsset string, rates map[string]float64) ports.PriceOracle {
	if rates == nil {
		rates = make(map[string]float64)
	}
	return &Service{referenceAsset: referenceAsset, rates: rates}
}

func (s *Service) ReferenceRate(ctx context.Context, asset string) (float64, error) {
	if asset == s.referenceAsset {
		return 1, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.rates[asset]
	if !ok {
		return 0, fmt.Errorf("no reference rate for %s", asset)
	}
	return rate, nil
}

func (s *Service) ReferenceAsset() string {
	return s.referenceAsset
}

// SetRate updates a quote, mimicking an upstream feed refresh.
func (s *Service) SetRate(asset string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[asset] = rate
}
