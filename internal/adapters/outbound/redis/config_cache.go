// Package redis provides a Redis read-through cache for marketplace
// configuration.
//
// Only configuration is cached: the fee parameters and the payment-asset
// whitelist change rarely and tolerate a short TTL. Oracle prices are never
// cached anywhere; every settlement reads the feed fresh.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that ConfigCache implements outbound.ConfigStore.
var _ outbound.ConfigStore = (*ConfigCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached config lives before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for the config cache.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       30 * time.Second,
		KeyPrefix: "exchange",
	}
}

// redisClient is the subset of go-redis commands the cache uses.
// *redis.Client satisfies this.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ConfigCache decorates a ConfigStore with a Redis read-through cache.
// Reads serve from Redis when possible; mutations write through to the inner
// store and invalidate the affected keys. Cache failures degrade to the inner
// store, they never fail an operation.
type ConfigCache struct {
	client redisClient
	inner  outbound.ConfigStore
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	closer func() error
}

// NewConfigCache creates a config cache over the given inner store.
func NewConfigCache(cfg Config, inner outbound.ConfigStore, logger *slog.Logger) (*ConfigCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if inner == nil {
		return nil, fmt.Errorf("inner config store is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ConfigDefaults().TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = ConfigDefaults().KeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &ConfigCache{
		client: client,
		inner:  inner,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		logger: logger.With("component", "redis-config-cache"),
		closer: client.Close,
	}, nil
}

// newConfigCacheWithClient is used by tests to inject a mock client.
func newConfigCacheWithClient(client redisClient, inner outbound.ConfigStore, ttl time.Duration, prefix string, logger *slog.Logger) *ConfigCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigCache{client: client, inner: inner, ttl: ttl, prefix: prefix, logger: logger}
}

// Close closes the Redis connection.
func (c *ConfigCache) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

func (c *ConfigCache) configKey() string {
	return c.prefix + ":market_config"
}

func (c *ConfigCache) tokenKey(asset common.Address) string {
	return c.prefix + ":token:" + asset.Hex()
}

// MarketConfig returns the cached configuration, falling back to the inner
// store on a miss.
func (c *ConfigCache) MarketConfig(ctx context.Context) (*entity.MarketConfig, error) {
	var cached entity.MarketConfig
	if c.lookup(ctx, c.configKey(), &cached) {
		return &cached, nil
	}

	cfg, err := c.inner.MarketConfig(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, c.configKey(), cfg)
	return cfg, nil
}

// PaymentToken returns the cached whitelist entry, falling back to the inner
// store on a miss. Absent entries are not negatively cached, so a freshly
// whitelisted asset is usable immediately.
func (c *ConfigCache) PaymentToken(ctx context.Context, asset common.Address) (*entity.PaymentToken, error) {
	var cached entity.PaymentToken
	if c.lookup(ctx, c.tokenKey(asset), &cached) {
		return &cached, nil
	}

	token, err := c.inner.PaymentToken(ctx, asset)
	if err != nil {
		return nil, err
	}
	c.store(ctx, c.tokenKey(asset), token)
	return token, nil
}

// ListPaymentTokens always reads the inner store; listing is an admin-side
// operation and not on the settlement path.
func (c *ConfigCache) ListPaymentTokens(ctx context.Context) ([]*entity.PaymentToken, error) {
	return c.inner.ListPaymentTokens(ctx)
}

// SetFeeDivisor writes through and invalidates the config key.
func (c *ConfigCache) SetFeeDivisor(ctx context.Context, divisor uint64) error {
	if err := c.inner.SetFeeDivisor(ctx, divisor); err != nil {
		return err
	}
	c.invalidate(ctx, c.configKey())
	return nil
}

// SetFeeRecipient writes through and invalidates the config key.
func (c *ConfigCache) SetFeeRecipient(ctx context.Context, recipient common.Address) error {
	if err := c.inner.SetFeeRecipient(ctx, recipient); err != nil {
		return err
	}
	c.invalidate(ctx, c.configKey())
	return nil
}

// SetPaymentToken writes through and invalidates both the entry and the
// config key, since whitelist changes bump the config version.
func (c *ConfigCache) SetPaymentToken(ctx context.Context, token *entity.PaymentToken) error {
	if err := c.inner.SetPaymentToken(ctx, token); err != nil {
		return err
	}
	c.invalidate(ctx, c.tokenKey(token.Address), c.configKey())
	return nil
}

// lookup reads and unmarshals a cached value, reporting whether it was
// usable. Errors other than a plain miss are logged and treated as misses.
func (c *ConfigCache) lookup(ctx context.Context, key string, out any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *ConfigCache) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *ConfigCache) invalidate(ctx context.Context, keys ...string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}
