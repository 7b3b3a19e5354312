package exchange

import (
	"fmt"
	"math/big"
)

// oracleDecimals is the fixed-point precision of USD oracle prices.
const oracleDecimals = 8

// NativeDecimals is the decimal precision of the wrapped native currency.
// Settlements paid in native currency always convert with this precision.
const NativeDecimals uint8 = 18

var ten = big.NewInt(10)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// ConvertUSDToAsset converts an offer's fixed-point USD price (8 fractional
// digits) into payment-asset native units and splits out the fee.
//
// The oracle price is first normalized from 8 decimals to the asset's
// decimal count: scaled up by 10^(d-8) when the asset has more than 8
// decimals, otherwise divided by 10^(8-d). The USD price is then scaled by
// 10^(2d) before dividing by the normalized price and scaling back down by
// 10^d, which keeps the intermediate division exact. With 6-decimal USDC, an
// oracle price of 150000000000 (1500 USD) and a 1000 USD offer this yields
// exactly 66666666 units.
//
// feeAmount is finalAmount / feeDivisor with truncating division; the seller
// receives finalAmount - feeAmount. All arithmetic uses math/big so
// intermediate values cannot wrap; invalid inputs fail closed with an error
// and no amounts.
func ConvertUSDToAsset(priceUSD uint64, assetDecimals uint8, assetPriceUSD *big.Int, feeDivisor uint64) (finalAmount, feeAmount *big.Int, err error) {
	if priceUSD == 0 {
		return nil, nil, fmt.Errorf("usd price must be positive")
	}
	if assetPriceUSD == nil || assetPriceUSD.Sign() <= 0 {
		return nil, nil, fmt.Errorf("oracle price must be positive")
	}
	if feeDivisor == 0 {
		return nil, nil, fmt.Errorf("fee divisor must be positive")
	}

	normalized := new(big.Int)
	if assetDecimals > oracleDecimals {
		normalized.Mul(assetPriceUSD, pow10(assetDecimals-oracleDecimals))
	} else {
		normalized.Quo(assetPriceUSD, pow10(oracleDecimals-assetDecimals))
	}
	if normalized.Sign() == 0 {
		// Oracle price rounds to zero at the asset's precision.
		return nil, nil, fmt.Errorf("oracle price %s too small for %d asset decimals", assetPriceUSD, assetDecimals)
	}

	scaled := new(big.Int).SetUint64(priceUSD)
	scaled.Mul(scaled, pow10(assetDecimals))
	scaled.Mul(scaled, pow10(assetDecimals))

	finalAmount = scaled.Quo(scaled, normalized)
	finalAmount.Quo(finalAmount, pow10(assetDecimals))
	if finalAmount.Sign() == 0 {
		return nil, nil, fmt.Errorf("converted amount is zero")
	}

	feeAmount = new(big.Int).Quo(finalAmount, new(big.Int).SetUint64(feeDivisor))
	return finalAmount, feeAmount, nil
}
