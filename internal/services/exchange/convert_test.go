package exchange

import (
	"math/big"
	"testing"
)

func TestConvertUSDToAsset(t *testing.T) {
	tests := []struct {
		name          string
		priceUSD      uint64
		assetDecimals uint8
		oraclePrice   *big.Int
		feeDivisor    uint64
		wantFinal     string
		wantFee       string
		wantErr       bool
	}{
		{
			// 1000 USD offer, USDC at 1500 USD/unit, 1% fee.
			name:          "six decimal asset",
			priceUSD:      100_000_000_000,
			assetDecimals: 6,
			oraclePrice:   big.NewInt(150_000_000_000),
			feeDivisor:    100,
			wantFinal:     "66666666",
			wantFee:       "666666",
		},
		{
			// 1000 USD offer, native currency at 2000 USD, 5% fee (divisor 20).
			name:          "eighteen decimal asset",
			priceUSD:      100_000_000_000,
			assetDecimals: 18,
			oraclePrice:   big.NewInt(200_000_000_000),
			feeDivisor:    20,
			wantFinal:     "50000000",
			wantFee:       "2500000",
		},
		{
			// Same precision as the oracle: no normalization.
			name:          "eight decimal asset",
			priceUSD:      200_000_000, // 2 USD
			assetDecimals: 8,
			oraclePrice:   big.NewInt(100_000_000), // 1 USD
			feeDivisor:    100,
			wantFinal:     "200000000",
			wantFee:       "2000000",
		},
		{
			// Divisor 1 means the entire amount is fee.
			name:          "full fee divisor",
			priceUSD:      100_000_000,
			assetDecimals: 6,
			oraclePrice:   big.NewInt(100_000_000),
			feeDivisor:    1,
			wantFinal:     "100000000",
			wantFee:       "100000000",
		},
		{
			name:          "truncating fee division",
			priceUSD:      100_000_000_000,
			assetDecimals: 6,
			oraclePrice:   big.NewInt(150_000_000_000),
			feeDivisor:    7,
			wantFinal:     "66666666",
			wantFee:       "9523809", // 66666666 / 7 truncated
		},
		{"zero usd price", 0, 6, big.NewInt(1), 100, "", "", true},
		{"nil oracle price", 1, 6, nil, 100, "", "", true},
		{"zero oracle price", 1, 6, big.NewInt(0), 100, "", "", true},
		{"negative oracle price", 1, 6, big.NewInt(-5), 100, "", "", true},
		{"zero fee divisor", 1, 6, big.NewInt(100_000_000), 0, "", "", true},
		{
			// Price below the asset's representable precision normalizes to zero.
			name:          "oracle price rounds to zero",
			priceUSD:      100_000_000,
			assetDecimals: 0,
			oraclePrice:   big.NewInt(99_999_999),
			feeDivisor:    100,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final, fee, err := ConvertUSDToAsset(tt.priceUSD, tt.assetDecimals, tt.oraclePrice, tt.feeDivisor)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if final.String() != tt.wantFinal {
				t.Errorf("final amount: expected %s, got %s", tt.wantFinal, final)
			}
			if fee.String() != tt.wantFee {
				t.Errorf("fee amount: expected %s, got %s", tt.wantFee, fee)
			}

			// Net + fee must always reassemble the full amount.
			net := new(big.Int).Sub(final, fee)
			if new(big.Int).Add(net, fee).Cmp(final) != 0 {
				t.Error("net plus fee does not equal final amount")
			}
		})
	}
}

func TestConvertUSDToAssetLargeValues(t *testing.T) {
	// A large offer against an 18-decimal asset pushes the double-scaled
	// intermediate value past 10^53; the math must stay exact.
	priceUSD := uint64(1_000_000_000_00000000)        // 1e9 USD
	oraclePrice := new(big.Int).SetUint64(3_00000000) // 3 USD
	final, fee, err := ConvertUSDToAsset(priceUSD, 18, oraclePrice, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantFinal, _ := new(big.Int).SetString("33333333333333333", 10)
	if final.Cmp(wantFinal) != 0 {
		t.Errorf("final amount: expected %s, got %s", wantFinal, final)
	}
	wantFee, _ := new(big.Int).SetString("11111111111111111", 10)
	if fee.Cmp(wantFee) != 0 {
		t.Errorf("fee amount: expected %s, got %s", wantFee, fee)
	}
}
