package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/azubet/azubet/internal/azuro"
	s3blob "github.com/azubet/azubet/internal/blob/s3"
	"github.com/azubet/azubet/internal/cache/redis"
	"github.com/azubet/azubet/internal/chain"
	"github.com/azubet/azubet/internal/config"
	"github.com/azubet/azubet/internal/crypto"
	"github.com/azubet/azubet/internal/domain"
	"github.com/azubet/azubet/internal/notify"
	"github.com/azubet/azubet/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Wallet
	Signer *crypto.Signer

	// Stores
	BetStore   domain.BetStore
	AuditStore domain.AuditStore

	// Caches
	OddsCache   domain.OddsCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain access
	Executor *chain.Executor
	TxEngine *chain.TxEngine

	// Protocol surfaces
	Relayer    *azuro.RelayerClient
	Feed       *azuro.FeedClient
	OddsStream *azuro.OddsStream

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
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

	// --- Wallet signer ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer

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

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	betStore := postgres.NewBetStore(pool)
	deps.BetStore = betStore
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

	deps.OddsCache = redis.NewOddsCache(redisClient, 10*time.Minute)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Chain access ---
	rpcPool, err := chain.NewEndpointPool(cfg.Chain.RPCEndpoints)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: rpc pool: %w", err)
	}
	executor := chain.NewExecutor(rpcPool, cfg.Chain.ChainID, chain.RetryConfig{
		MaxRetries:  cfg.Retry.MaxRetries,
		BackoffBase: cfg.Retry.BackoffBase.Duration,
		BackoffMax:  cfg.Retry.BackoffMax.Duration,
	}, logger)
	closers = append(closers, executor.Close)
	deps.Executor = executor

	deps.TxEngine = chain.NewTxEngine(executor, signer, chain.GasConfig{
		PriceMultiplier: cfg.Gas.PriceMultiplier,
		FloorGwei:       cfg.Gas.FloorGwei,
		Limit:           uint64(cfg.Gas.Limit),
		ReceiptTimeout:  cfg.Gas.ReceiptTimeout.Duration,
	}, logger)

	// --- Azuro protocol surfaces ---
	deps.Relayer = azuro.NewRelayerClient(cfg.Azuro.RelayerURL, cfg.Azuro.Environment)
	deps.Feed = azuro.NewFeedClient(cfg.Azuro.SubgraphURL, cfg.Azuro.SubgraphAPIKey)
	if cfg.Azuro.WsURL != "" {
		stream := azuro.NewOddsStream(cfg.Azuro.WsURL)
		closers = append(closers, func() { _ = stream.Close() })
		deps.OddsStream = stream
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
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

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewBetArchiver(writer, reader, betStore, deps.AuditStore)
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
