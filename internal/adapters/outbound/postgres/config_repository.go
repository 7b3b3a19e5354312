package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that ConfigRepository implements outbound.ConfigStore.
var _ outbound.ConfigStore = (*ConfigRepository)(nil)

// ConfigRepository is a PostgreSQL implementation of the marketplace
// configuration store. The market_config table holds a single row; every
// mutation bumps its version so caching layers can detect staleness.
type ConfigRepository struct {
	pool   *pgxpool.Pool
	txm    outbound.TxManager
	logger *slog.Logger
}

// NewConfigRepository creates a new PostgreSQL config repository. The
// transaction manager coordinates whitelist upserts with the config version
// bump.
func NewConfigRepository(pool *pgxpool.Pool, txm outbound.TxManager, logger *slog.Logger) (*ConfigRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool cannot be nil")
	}
	if txm == nil {
		return nil, fmt.Errorf("transaction manager cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigRepository{pool: pool, txm: txm, logger: logger}, nil
}

// MarketConfig returns the current configuration snapshot.
func (r *ConfigRepository) MarketConfig(ctx context.Context) (*entity.MarketConfig, error) {
	query := `
		SELECT fee_divisor, fee_recipient, owner, wrapped_native, version, updated_at
		FROM market_config
		WHERE id = 1
	`
	var (
		feeDivisor                          int64
		recipientBytes, ownerBytes, wnBytes []byte
		cfg                                 entity.MarketConfig
	)
	err := r.pool.QueryRow(ctx, query).Scan(
		&feeDivisor, &recipientBytes, &ownerBytes, &wnBytes, &cfg.Version, &cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read market config: %w", err)
	}
	cfg.FeeDivisor = uint64(feeDivisor)
	cfg.FeeRecipient = common.BytesToAddress(recipientBytes)
	cfg.Owner = common.BytesToAddress(ownerBytes)
	cfg.WrappedNative = common.BytesToAddress(wnBytes)
	return &cfg, nil
}

// PaymentToken returns the whitelist entry for the asset, or
// entity.ErrUnsupportedAsset if no entry exists.
func (r *ConfigRepository) PaymentToken(ctx context.Context, asset common.Address) (*entity.PaymentToken, error) {
	query := `
		SELECT address, symbol, decimals, feed_address, enabled, created_at, updated_at
		FROM payment_token
		WHERE address = $1
	`
	token, err := scanPaymentToken(r.pool.QueryRow(ctx, query, asset.Bytes()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrUnsupportedAsset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payment token: %w", err)
	}
	return token, nil
}

// ListPaymentTokens returns all whitelist entries in symbol order.
func (r *ConfigRepository) ListPaymentTokens(ctx context.Context) ([]*entity.PaymentToken, error) {
	query := `
		SELECT address, symbol, decimals, feed_address, enabled, created_at, updated_at
		FROM payment_token
		ORDER BY symbol ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*entity.PaymentToken
	for rows.Next() {
		token, err := scanPaymentToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment tokens: %w", err)
	}
	return tokens, nil
}

// SetFeeDivisor updates the fee divisor and bumps the config version.
func (r *ConfigRepository) SetFeeDivisor(ctx context.Context, divisor uint64) error {
	query := `
		UPDATE market_config
		SET fee_divisor = $1, version = version + 1, updated_at = NOW()
		WHERE id = 1
	`
	if _, err := r.pool.Exec(ctx, query, int64(divisor)); err != nil {
		return fmt.Errorf("failed to set fee divisor: %w", err)
	}
	return nil
}

// SetFeeRecipient updates the fee recipient and bumps the config version.
func (r *ConfigRepository) SetFeeRecipient(ctx context.Context, recipient common.Address) error {
	query := `
		UPDATE market_config
		SET fee_recipient = $1, version = version + 1, updated_at = NOW()
		WHERE id = 1
	`
	if _, err := r.pool.Exec(ctx, query, recipient.Bytes()); err != nil {
		return fmt.Errorf("failed to set fee recipient: %w", err)
	}
	return nil
}

// SetPaymentToken upserts a whitelist entry. The upsert and the config
// version bump commit in one transaction so a cached config version can never
// be newer than the whitelist it was read with.
func (r *ConfigRepository) SetPaymentToken(ctx context.Context, token *entity.PaymentToken) error {
	return r.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO payment_token (address, symbol, decimals, feed_address, enabled, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (address) DO UPDATE SET
				symbol = EXCLUDED.symbol,
				decimals = EXCLUDED.decimals,
				feed_address = EXCLUDED.feed_address,
				enabled = EXCLUDED.enabled,
				updated_at = NOW()
		`
		_, err := tx.Exec(ctx, upsert,
			token.Address.Bytes(), token.Symbol, int16(token.Decimals),
			token.FeedAddress.Bytes(), token.Enabled)
		if err != nil {
			return fmt.Errorf("failed to upsert payment token: %w", err)
		}

		bump := `UPDATE market_config SET version = version + 1, updated_at = NOW() WHERE id = 1`
		if _, err := tx.Exec(ctx, bump); err != nil {
			return fmt.Errorf("failed to bump config version: %w", err)
		}
		return nil
	})
}

// EnsureMarketConfig inserts the singleton config row if it does not exist
// yet. An existing row is left untouched, so this is safe to run on every
// startup.
func (r *ConfigRepository) EnsureMarketConfig(ctx context.Context, cfg *entity.MarketConfig) error {
	query := `
		INSERT INTO market_config (id, fee_divisor, fee_recipient, owner, wrapped_native, version, updated_at)
		VALUES (1, $1, $2, $3, $4, 1, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		int64(cfg.FeeDivisor), cfg.FeeRecipient.Bytes(), cfg.Owner.Bytes(), cfg.WrappedNative.Bytes())
	if err != nil {
		return fmt.Errorf("failed to seed market config: %w", err)
	}
	return nil
}

func scanPaymentToken(row pgx.Row) (*entity.PaymentToken, error) {
	var (
		addrBytes, feedBytes []byte
		decimals             int16
		token                entity.PaymentToken
	)
	err := row.Scan(&addrBytes, &token.Symbol, &decimals, &feedBytes,
		&token.Enabled, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return nil, err
	}
	token.Address = common.BytesToAddress(addrBytes)
	token.FeedAddress = common.BytesToAddress(feedBytes)
	token.Decimals = uint8(decimals)
	return &token, nil
}
