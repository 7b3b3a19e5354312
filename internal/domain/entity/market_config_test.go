package entity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testOwner     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testRecipient = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testWrapped   = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func TestNewMarketConfig(t *testing.T) {
	tests := []struct {
		name       string
		feeDivisor uint64
		recipient  common.Address
		owner      common.Address
		wrapped    common.Address
		wantErr    bool
	}{
		{"valid one percent", 100, testRecipient, testOwner, testWrapped, false},
		{"valid full fee", 1, testRecipient, testOwner, testWrapped, false},
		{"zero divisor", 0, testRecipient, testOwner, testWrapped, true},
		{"zero recipient", 100, common.Address{}, testOwner, testWrapped, true},
		{"zero owner", 100, testRecipient, common.Address{}, testWrapped, true},
		{"zero wrapped native", 100, testRecipient, testOwner, common.Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewMarketConfig(tt.feeDivisor, tt.recipient, tt.owner, tt.wrapped)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.FeeDivisor != tt.feeDivisor {
				t.Errorf("expected divisor %d, got %d", tt.feeDivisor, cfg.FeeDivisor)
			}
			if cfg.Version != 1 {
				t.Errorf("expected initial version 1, got %d", cfg.Version)
			}
		})
	}
}

func TestNewPaymentToken(t *testing.T) {
	addr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	feed := common.HexToAddress("0x7777777777777777777777777777777777777777")

	pt, err := NewPaymentToken(addr, "USDC", 6, feed, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pt.Decimals != 6 || !pt.Enabled {
		t.Errorf("unexpected token: %+v", pt)
	}

	if _, err := NewPaymentToken(common.Address{}, "USDC", 6, feed, true); err == nil {
		t.Error("expected error for zero token address")
	}
	if _, err := NewPaymentToken(addr, "", 6, feed, true); err == nil {
		t.Error("expected error for empty symbol")
	}
	if _, err := NewPaymentToken(addr, "USDC", 6, common.Address{}, true); err == nil {
		t.Error("expected error for zero feed address")
	}
}
