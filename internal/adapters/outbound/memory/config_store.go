package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that ConfigStore implements outbound.ConfigStore.
var _ outbound.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is an in-memory implementation of the marketplace
// configuration store.
type ConfigStore struct {
	mu     sync.RWMutex
	config entity.MarketConfig
	tokens map[common.Address]*entity.PaymentToken
}

// NewConfigStore creates a config store seeded with the given configuration.
func NewConfigStore(cfg *entity.MarketConfig) *ConfigStore {
	return &ConfigStore{
		config: *cfg,
		tokens: make(map[common.Address]*entity.PaymentToken),
	}
}

// MarketConfig returns a copy of the current configuration snapshot.
func (s *ConfigStore) MarketConfig(ctx context.Context) (*entity.MarketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.config
	return &cp, nil
}

// PaymentToken returns the whitelist entry for the asset, or
// entity.ErrUnsupportedAsset.
func (s *ConfigStore) PaymentToken(ctx context.Context, asset common.Address) (*entity.PaymentToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[asset]
	if !ok {
		return nil, entity.ErrUnsupportedAsset
	}
	cp := *token
	return &cp, nil
}

// ListPaymentTokens returns copies of all whitelist entries.
func (s *ConfigStore) ListPaymentTokens(ctx context.Context) ([]*entity.PaymentToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.PaymentToken, 0, len(s.tokens))
	for _, token := range s.tokens {
		cp := *token
		out = append(out, &cp)
	}
	return out, nil
}

// SetFeeDivisor updates the fee divisor and bumps the config version.
func (s *ConfigStore) SetFeeDivisor(ctx context.Context, divisor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.FeeDivisor = divisor
	s.bump()
	return nil
}

// SetFeeRecipient updates the fee recipient and bumps the config version.
func (s *ConfigStore) SetFeeRecipient(ctx context.Context, recipient common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.FeeRecipient = recipient
	s.bump()
	return nil
}

// SetPaymentToken upserts a whitelist entry and bumps the config version.
func (s *ConfigStore) SetPaymentToken(ctx context.Context, token *entity.PaymentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	cp.UpdatedAt = time.Now().UTC()
	s.tokens[token.Address] = &cp
	s.bump()
	return nil
}

func (s *ConfigStore) bump() {
	s.config.Version++
	s.config.UpdatedAt = time.Now().UTC()
}
