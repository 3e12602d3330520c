package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/chainbazaar/escrowd/internal/blob/s3"
	"github.com/chainbazaar/escrowd/internal/cache/redis"
	"github.com/chainbazaar/escrowd/internal/config"
	"github.com/chainbazaar/escrowd/internal/crypto"
	"github.com/chainbazaar/escrowd/internal/domain"
	"github.com/chainbazaar/escrowd/internal/lock"
	"github.com/chainbazaar/escrowd/internal/notify"
	"github.com/chainbazaar/escrowd/internal/registry/eth"
	"github.com/chainbazaar/escrowd/internal/store/memory"
	"github.com/chainbazaar/escrowd/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
//
// ListingCache, RateLimiter, and EventBus are nil when Redis is not
// configured; Writer is nil when S3 is not configured. Consumers degrade
// accordingly.
type Dependencies struct {
	// Stores
	ListingStore domain.ListingStore
	AuditStore   domain.AuditStore

	// Redis-backed infrastructure
	ListingCache domain.ListingCache
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter
	EventBus     domain.EventBus

	// Chain access
	Registry domain.AssetRegistry
	Payments domain.PaymentBackend
	Operator common.Address

	// Audit archival
	Writer *s3blob.Writer

	// Operator alerts
	Alerter *notify.Alerter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Listing and audit stores ---
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ListingStore = postgres.NewListingStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		logger.Warn("wire: postgres not configured, using in-memory stores")
		deps.ListingStore = memory.NewListingStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis: per-key locks, read cache, rate limiter, event bus ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.ListingCache = redis.NewListingCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	} else {
		logger.Warn("wire: redis not configured, using in-process locks")
		deps.LockManager = lock.NewKeyMutex()
	}

	// --- Chain client, asset registry, payment backend ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Operator.PrivateKey,
		EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
		KeyPassword:      cfg.Operator.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: operator key: %w", err)
	}

	ethClient, err := eth.Dial(ctx, cfg.Chain.RPCURL, keyHex)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: eth dial: %w", err)
	}
	closers = append(closers, ethClient.Close)
	deps.Operator = ethClient.Operator()

	registry, err := eth.NewRegistry(ethClient)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: registry: %w", err)
	}
	deps.Registry = registry

	var paymentToken common.Address
	if cfg.Chain.PaymentToken != "" {
		paymentToken = common.HexToAddress(cfg.Chain.PaymentToken)
	}
	payments, err := eth.NewPayments(ethClient, paymentToken)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: payments: %w", err)
	}
	deps.Payments = payments

	// --- S3 audit archival ---
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Writer = s3blob.NewWriter(s3Client)
	}

	// --- Operator alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramBotToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Alerter = notify.NewAlerter(senders, logger)

	return deps, cleanup, nil
}
