package exchange

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
)

// Admin operations mutate the configuration the engine reads. They are
// restricted to the configured owner; the exchange paths never call them.

// SetFee updates the fee divisor. A divisor of 1 takes the whole amount as
// fee; 0 is rejected.
func (s *Service) SetFee(ctx context.Context, caller common.Address, divisor uint64) error {
	if err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if divisor == 0 {
		return fmt.Errorf("fee divisor must be positive")
	}
	if err := s.store.SetFeeDivisor(ctx, divisor); err != nil {
		return fmt.Errorf("setting fee divisor: %w", err)
	}
	s.logger.Info("fee divisor updated", "divisor", divisor)
	return nil
}

// SetFeeRecipient updates the address fees are forwarded to.
func (s *Service) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	if err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("fee recipient must not be zero")
	}
	if err := s.store.SetFeeRecipient(ctx, recipient); err != nil {
		return fmt.Errorf("setting fee recipient: %w", err)
	}
	s.logger.Info("fee recipient updated", "recipient", recipient.Hex())
	return nil
}

// SetWhitelistedPaymentToken upserts a payment-asset whitelist entry.
// Disabling an entry removes the asset from the accepted set without
// deleting its feed routing.
func (s *Service) SetWhitelistedPaymentToken(ctx context.Context, caller common.Address, token *entity.PaymentToken) error {
	if err := s.requireOwner(ctx, caller); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("payment token must not be nil")
	}
	if err := s.store.SetPaymentToken(ctx, token); err != nil {
		return fmt.Errorf("setting payment token: %w", err)
	}
	s.logger.Info("payment token whitelisted",
		"token", token.Address.Hex(), "symbol", token.Symbol, "enabled", token.Enabled)
	return nil
}

func (s *Service) requireOwner(ctx context.Context, caller common.Address) error {
	cfg, err := s.store.MarketConfig(ctx)
	if err != nil {
		return fmt.Errorf("reading market config: %w", err)
	}
	if caller != cfg.Owner {
		return entity.ErrNotOwner
	}
	return nil
}
