package entity

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketConfig is the global marketplace configuration supplied by the
// administration side and read by the exchange engine on every operation.
//
// FeeDivisor is a divisor, not a rate: the fee taken from a settlement is
// finalAmount / FeeDivisor, so 100 means 1% and 20 means 5%. A divisor of 1
// means the whole amount is taken as fee; 0 is invalid.
type MarketConfig struct {
	FeeDivisor    uint64
	FeeRecipient  common.Address
	Owner         common.Address
	WrappedNative common.Address
	Version       int64
	UpdatedAt     time.Time
}

// NewMarketConfig creates a new MarketConfig with validation.
func NewMarketConfig(feeDivisor uint64, feeRecipient, owner, wrappedNative common.Address) (*MarketConfig, error) {
	cfg := &MarketConfig{
		FeeDivisor:    feeDivisor,
		FeeRecipient:  feeRecipient,
		Owner:         owner,
		WrappedNative: wrappedNative,
		Version:       1,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *MarketConfig) validate() error {
	if cfg.FeeDivisor == 0 {
		return fmt.Errorf("fee divisor must be positive")
	}
	if cfg.FeeRecipient == (common.Address{}) {
		return fmt.Errorf("fee recipient must not be zero")
	}
	if cfg.Owner == (common.Address{}) {
		return fmt.Errorf("owner must not be zero")
	}
	if cfg.WrappedNative == (common.Address{}) {
		return fmt.Errorf("wrapped native address must not be zero")
	}
	return nil
}
