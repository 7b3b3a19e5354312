// Package chainlink reads USD prices from Chainlink AggregatorV3 feeds.
package chainlink

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// aggregatorV3ABI is the subset of the Chainlink AggregatorV3Interface the
// engine needs. The same interface is exposed by Chronicle and Redstone
// adapters.
const aggregatorV3ABI = `[
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"name": "roundId", "type": "uint80"},
			{"name": "answer", "type": "int256"},
			{"name": "startedAt", "type": "uint256"},
			{"name": "updatedAt", "type": "uint256"},
			{"name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies this.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Compile-time check that PriceFeed implements outbound.PriceFeed.
var _ outbound.PriceFeed = (*PriceFeed)(nil)

// PriceFeed reads latestRoundData() from an aggregator contract at the head
// of the chain. Every settlement performs a fresh read; there is no cache and
// no staleness window.
type PriceFeed struct {
	caller ContractCaller
	abi    abi.ABI
	logger *slog.Logger
}

// NewPriceFeed creates a feed reader over the given caller.
func NewPriceFeed(caller ContractCaller, logger *slog.Logger) (*PriceFeed, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing aggregator ABI: %w", err)
	}
	return &PriceFeed{caller: caller, abi: parsed, logger: logger}, nil
}

// LatestPriceUSD returns the feed's current answer. A non-positive answer or
// an incomplete round (updatedAt == 0) is an error; the caller is expected to
// fail the settlement rather than fall back to an older price.
func (f *PriceFeed) LatestPriceUSD(ctx context.Context, feed common.Address) (*big.Int, error) {
	callData, err := f.abi.Pack("latestRoundData")
	if err != nil {
		return nil, fmt.Errorf("packing latestRoundData: %w", err)
	}

	returnData, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling feed %s: %w", feed.Hex(), err)
	}

	unpacked, err := f.abi.Unpack("latestRoundData", returnData)
	if err != nil {
		return nil, fmt.Errorf("unpacking latestRoundData from feed %s: %w", feed.Hex(), err)
	}
	// latestRoundData returns (roundId, answer, startedAt, updatedAt, answeredInRound).
	answer := unpacked[1].(*big.Int)
	updatedAt := unpacked[3].(*big.Int)

	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s returned non-positive answer %s", feed.Hex(), answer)
	}
	if updatedAt.Sign() == 0 {
		return nil, fmt.Errorf("feed %s round not complete", feed.Hex())
	}

	f.logger.Debug("oracle price read", "feed", feed.Hex(), "answer", answer.String())
	return answer, nil
}
