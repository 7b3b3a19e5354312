package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that PriceFeed implements outbound.PriceFeed.
var _ outbound.PriceFeed = (*PriceFeed)(nil)

// PriceFeed is a static in-memory price feed. Prices are fixed-point USD
// values with 8 fractional digits, keyed by feed address.
type PriceFeed struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

// NewPriceFeed creates an empty in-memory price feed.
func NewPriceFeed() *PriceFeed {
	return &PriceFeed{prices: make(map[common.Address]*big.Int)}
}

// SetPrice sets the price the feed reports.
func (f *PriceFeed) SetPrice(feed common.Address, priceUSD *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[feed] = new(big.Int).Set(priceUSD)
}

// LatestPriceUSD returns the configured price for the feed.
func (f *PriceFeed) LatestPriceUSD(ctx context.Context, feed common.Address) (*big.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	price, ok := f.prices[feed]
	if !ok {
		return nil, fmt.Errorf("no price configured for feed %s", feed.Hex())
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s reported non-positive price", feed.Hex())
	}
	return new(big.Int).Set(price), nil
}
