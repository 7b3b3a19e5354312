package entity

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentToken is a whitelisted fungible payment asset together with the
// price feed that quotes it in USD. The wrapped-native currency is a regular
// entry in this set with Decimals == 18.
type PaymentToken struct {
	Address     common.Address
	Symbol      string
	Decimals    uint8
	FeedAddress common.Address // USD price feed, 8 fractional decimal digits
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewPaymentToken creates a new PaymentToken entity with validation.
func NewPaymentToken(address common.Address, symbol string, decimals uint8, feedAddress common.Address, enabled bool) (*PaymentToken, error) {
	pt := &PaymentToken{
		Address:     address,
		Symbol:      symbol,
		Decimals:    decimals,
		FeedAddress: feedAddress,
		Enabled:     enabled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := pt.validate(); err != nil {
		return nil, err
	}
	return pt, nil
}

func (pt *PaymentToken) validate() error {
	if pt.Address == (common.Address{}) {
		return fmt.Errorf("token address must not be zero")
	}
	if pt.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if pt.FeedAddress == (common.Address{}) {
		return fmt.Errorf("feed address must not be zero")
	}
	return nil
}
