package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/tealbay/nftmarketd/internal/blob/s3"
	"github.com/tealbay/nftmarketd/internal/cache/redis"
	"github.com/tealbay/nftmarketd/internal/config"
	"github.com/tealbay/nftmarketd/internal/crypto"
	"github.com/tealbay/nftmarketd/internal/domain"
	"github.com/tealbay/nftmarketd/internal/notify"
	"github.com/tealbay/nftmarketd/internal/platform/chainindex"
	"github.com/tealbay/nftmarketd/internal/store/postgres"
)

// ActivityPruner deletes archived activity rows after a successful upload.
type ActivityPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Chain access
	Wallet  domain.Wallet
	Ledger  domain.LedgerQuery
	Builder domain.TxBuilder
	Scripts domain.ScriptRegistry

	// Stores
	ActivityStore  domain.ActivityStore
	ActivityPruner ActivityPruner
	AuditStore     domain.AuditStore

	// Caches
	MarketCache  domain.MarketCache
	RoyaltyCache domain.RoyaltyCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	EventBus     domain.EventBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Operator wallet ---
	if cfg.Wallet.SigningKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		seed, err := crypto.LoadKey(crypto.KeyConfig{
			RawSigningKey:    cfg.Wallet.SigningKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		wallet, err := crypto.NewWallet(domain.Network(cfg.Network), seed, cfg.Wallet.StakeKeyHash)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		deps.Wallet = wallet
	}

	// --- Chain index ---
	ci := chainindex.New(cfg.ChainIndex.BaseURL, cfg.ChainIndex.ProjectKey)
	deps.Ledger = ci
	deps.Builder = ci

	var validatorRef, policyRef domain.OutRef
	haveRefs := cfg.Contract.TradeValidatorRef != "" && cfg.Contract.MintPolicyRef != ""
	if haveRefs {
		txHash, index, err := config.SplitRef(cfg.Contract.TradeValidatorRef)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: trade validator ref: %w", err)
		}
		validatorRef = domain.OutRef{TxHash: txHash, Index: index}
		txHash, index, err = config.SplitRef(cfg.Contract.MintPolicyRef)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: mint policy ref: %w", err)
		}
		policyRef = domain.OutRef{TxHash: txHash, Index: index}
	}
	deps.Scripts = chainindex.NewRegistry(ci, validatorRef, policyRef, haveRefs)

	// --- PostgreSQL ---
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

	// Run migrations if enabled.
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	activityStore := postgres.NewActivityStore(pool)
	deps.ActivityStore = activityStore
	deps.ActivityPruner = activityStore
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RoyaltyCache = redis.NewRoyaltyCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, activityStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
