package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceFeed reads the latest USD price from an external oracle feed.
//
// Prices are fixed-point integers with 8 fractional decimal digits (the
// Chainlink USD feed convention), e.g. 150000000000 is 1500.00000000 USD.
//
// The feed performs no caching and no staleness or deviation checks: callers
// accept whatever the latest round reports. This mirrors the source system's
// accepted risk surface; do not add staleness checks here without treating it
// as a deliberate behavioral change.
type PriceFeed interface {
	// LatestPriceUSD returns the latest USD price reported by the feed at
	// the given address. The result is always positive; feeds reporting a
	// non-positive answer or an incomplete round produce an error.
	LatestPriceUSD(ctx context.Context, feed common.Address) (*big.Int, error)
}
