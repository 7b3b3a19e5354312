package entity

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeReceipt is the durable record of one successful settlement. Amounts
// are decimal strings in the payment asset's native units so the receipt
// round-trips through JSON without precision loss.
type TradeReceipt struct {
	Buyer        common.Address `json:"buyer"`
	Seller       common.Address `json:"seller"`
	ItemContract common.Address `json:"itemContract"`
	ItemID       uint64         `json:"itemId"`
	Amount       uint64         `json:"amount"`
	PriceUSD     uint64         `json:"priceUsd"`
	PaymentToken common.Address `json:"paymentToken"`
	FinalAmount  string         `json:"finalAmount"`
	FeeAmount    string         `json:"feeAmount"`
	AcceptedAt   time.Time      `json:"acceptedAt"`
}

// NewTradeReceipt builds a receipt from a settled offer and the converted
// payment amounts.
func NewTradeReceipt(buyer common.Address, offer *Offer, paymentToken common.Address, finalAmount, feeAmount *big.Int) (*TradeReceipt, error) {
	if offer == nil {
		return nil, fmt.Errorf("offer must not be nil")
	}
	if finalAmount == nil || feeAmount == nil {
		return nil, fmt.Errorf("amounts must not be nil")
	}
	return &TradeReceipt{
		Buyer:        buyer,
		Seller:       offer.Seller,
		ItemContract: offer.ItemContract,
		ItemID:       offer.ItemID,
		Amount:       offer.Amount,
		PriceUSD:     offer.PriceUSD,
		PaymentToken: paymentToken,
		FinalAmount:  finalAmount.String(),
		FeeAmount:    feeAmount.String(),
		AcceptedAt:   time.Now().UTC(),
	}, nil
}
