// Package main runs the item exchange API server.
//
// Storage, chain access, caching and messaging are all selected through
// environment variables. With no DATABASE_URL and no ETH_RPC_URL the server
// runs fully in-process (in-memory repository and token ledger), which is the
// local development mode.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	exchangehttp "github.com/archon-research/item-exchange/internal/adapters/inbound/http"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/chainlink"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/evm"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/memory"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/postgres"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/redis"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/s3"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/sns"
	"github.com/archon-research/item-exchange/internal/adapters/outbound/telemetry"
	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/pkg/env"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
	"github.com/archon-research/item-exchange/internal/services/exchange"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("exchange server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	seed, err := seedConfigFromEnv()
	if err != nil {
		return err
	}

	var operator common.Address

	// Chain access. With an RPC endpoint the oracle, token reads and
	// settlement all go on-chain; without one an in-process ledger stands in.
	var (
		feed     outbound.PriceFeed
		tokens   outbound.TokenReader
		executor outbound.TransferExecutor
	)
	if rpcURL := env.Get("ETH_RPC_URL", ""); rpcURL != "" {
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return fmt.Errorf("dialing eth rpc: %w", err)
		}
		defer client.Close()

		key, err := crypto.HexToECDSA(strings.TrimPrefix(requireEnv("OPERATOR_PRIVATE_KEY"), "0x"))
		if err != nil {
			return fmt.Errorf("parsing operator key: %w", err)
		}
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("reading chain id: %w", err)
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return fmt.Errorf("building transactor: %w", err)
		}
		operator = crypto.PubkeyToAddress(key.PublicKey)

		if feed, err = chainlink.NewPriceFeed(client, logger); err != nil {
			return err
		}
		if tokens, err = evm.NewTokenReader(client); err != nil {
			return err
		}
		if executor, err = evm.NewExecutor(client, opts, logger); err != nil {
			return err
		}
		logger.Info("chain access enabled", "chainId", chainID, "operator", operator.Hex())
	} else {
		operator, err = addressEnv("OPERATOR_ADDRESS")
		if err != nil {
			return err
		}
		ledger := memory.NewLedger(operator)
		tokens, executor = ledger, ledger
		feed = memory.NewPriceFeed()
		logger.Warn("ETH_RPC_URL not set, using in-process token ledger")
	}

	// Storage.
	var (
		offers outbound.OfferRepository
		store  outbound.ConfigStore
	)
	if databaseURL := env.Get("DATABASE_URL", ""); databaseURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(databaseURL))
		if err != nil {
			return fmt.Errorf("opening database pool: %w", err)
		}
		defer pool.Close()

		if offers, err = postgres.NewOfferRepository(pool, logger); err != nil {
			return err
		}
		txm, err := postgres.NewTxManager(pool, logger)
		if err != nil {
			return err
		}
		configRepo, err := postgres.NewConfigRepository(pool, txm, logger)
		if err != nil {
			return err
		}
		if err := configRepo.EnsureMarketConfig(ctx, seed); err != nil {
			return fmt.Errorf("seeding market config: %w", err)
		}
		store = configRepo
		logger.Info("postgres storage enabled")
	} else {
		offers = memory.NewOfferRepository()
		store = memory.NewConfigStore(seed)
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	if redisAddr := env.Get("REDIS_ADDR", ""); redisAddr != "" {
		cache, err := redis.NewConfigCache(redis.Config{
			Addr:     redisAddr,
			Password: env.Get("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			TTL:      time.Duration(env.GetInt("REDIS_TTL_SECONDS", 30)) * time.Second,
		}, store, logger)
		if err != nil {
			return fmt.Errorf("creating config cache: %w", err)
		}
		defer cache.Close()
		store = cache
		logger.Info("redis config cache enabled", "addr", redisAddr)
	}

	awsCfg := awsConfigLoader(ctx)

	// Events.
	var events outbound.EventSink
	topics := sns.TopicARNs{
		Created:   env.Get("SNS_TOPIC_OFFER_CREATED", ""),
		Accepted:  env.Get("SNS_TOPIC_OFFER_ACCEPTED", ""),
		Cancelled: env.Get("SNS_TOPIC_OFFER_CANCELLED", ""),
	}
	if topics.Created != "" && topics.Accepted != "" && topics.Cancelled != "" {
		cfg, err := awsCfg()
		if err != nil {
			return err
		}
		sink, err := sns.NewEventSink(awssns.NewFromConfig(cfg), sns.Config{
			Topics: topics,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("creating sns event sink: %w", err)
		}
		defer sink.Close()
		events = sink
		logger.Info("sns event publishing enabled")
	} else {
		events = memory.NewEventSink()
		logger.Warn("SNS topics not configured, events stay in-process")
	}

	// Receipts are optional.
	var receipts outbound.ReceiptArchiver
	if bucket := env.Get("S3_RECEIPTS_BUCKET", ""); bucket != "" {
		cfg, err := awsCfg()
		if err != nil {
			return err
		}
		archiver, err := s3.NewArchiver(cfg, bucket, logger)
		if err != nil {
			return fmt.Errorf("creating receipt archiver: %w", err)
		}
		receipts = archiver
		logger.Info("receipt archiving enabled", "bucket", bucket)
	}

	metrics, err := telemetry.NewMetrics("item-exchange")
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	svc, err := exchange.New(exchange.Config{
		Offers:   offers,
		Store:    store,
		Feed:     feed,
		Tokens:   tokens,
		Executor: executor,
		Events:   events,
		Operator: operator,
		Receipts: receipts,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating exchange service: %w", err)
	}

	handler, err := exchangehttp.NewHandler(svc, svc, logger)
	if err != nil {
		return err
	}
	server := exchangehttp.NewServer(exchangehttp.ServerConfig{
		Addr:   env.Get("LISTEN_ADDR", ":8080"),
		Logger: logger,
	}, handler)

	server.Start()
	<-ctx.Done()

	logger.Info("shutting down")
	if err := server.Shutdown(10 * time.Second); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// seedConfigFromEnv builds the market configuration used to seed an empty
// store. An existing database row always wins over these values.
func seedConfigFromEnv() (*entity.MarketConfig, error) {
	recipient, err := addressEnv("FEE_RECIPIENT")
	if err != nil {
		return nil, err
	}
	owner, err := addressEnv("OWNER_ADDRESS")
	if err != nil {
		return nil, err
	}
	wrapped, err := addressEnv("WRAPPED_NATIVE")
	if err != nil {
		return nil, err
	}
	divisor := env.GetInt("FEE_DIVISOR", 100)
	if divisor <= 0 {
		return nil, fmt.Errorf("FEE_DIVISOR must be positive, got %d", divisor)
	}
	return entity.NewMarketConfig(uint64(divisor), recipient, owner, wrapped)
}

// awsConfigLoader loads the default AWS config at most once.
func awsConfigLoader(ctx context.Context) func() (aws.Config, error) {
	var (
		loaded bool
		cfg    aws.Config
	)
	return func() (aws.Config, error) {
		if loaded {
			return cfg, nil
		}
		var err error
		cfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("loading aws config: %w", err)
		}
		loaded = true
		return cfg, nil
	}
}

func addressEnv(key string) (common.Address, error) {
	raw := requireEnv(key)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s is not a hex address: %q", key, raw)
	}
	return common.HexToAddress(raw), nil
}

func requireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		slog.Error("required environment variable not set", "key", key)
		os.Exit(1)
	}
	return value
}
