package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AZUBET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AZUBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AZUBET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AZUBET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AZUBET_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStringSlice(&cfg.Chain.RPCEndpoints, "AZUBET_CHAIN_RPC_ENDPOINTS")
	setInt64(&cfg.Chain.ChainID, "AZUBET_CHAIN_ID")

	// ── Azuro ──
	setStr(&cfg.Azuro.RelayerURL, "AZUBET_AZURO_RELAYER_URL")
	setStr(&cfg.Azuro.Environment, "AZUBET_AZURO_ENVIRONMENT")
	setStr(&cfg.Azuro.SubgraphURL, "AZUBET_AZURO_SUBGRAPH_URL")
	setStr(&cfg.Azuro.SubgraphAPIKey, "AZUBET_AZURO_SUBGRAPH_API_KEY")
	setStr(&cfg.Azuro.WsURL, "AZUBET_AZURO_WS_URL")
	setStr(&cfg.Azuro.LPAddress, "AZUBET_AZURO_LP_ADDRESS")
	setStr(&cfg.Azuro.CoreAddress, "AZUBET_AZURO_CORE_ADDRESS")
	setStr(&cfg.Azuro.ExpressCoreAddress, "AZUBET_AZURO_EXPRESS_CORE_ADDRESS")
	setStr(&cfg.Azuro.AzuroBetAddress, "AZUBET_AZURO_AZURO_BET_ADDRESS")
	setStr(&cfg.Azuro.TokenAddress, "AZUBET_AZURO_TOKEN_ADDRESS")
	setStr(&cfg.Azuro.Affiliate, "AZUBET_AZURO_AFFILIATE")
	setStr(&cfg.Azuro.DomainName, "AZUBET_AZURO_DOMAIN_NAME")
	setStr(&cfg.Azuro.DomainVersion, "AZUBET_AZURO_DOMAIN_VERSION")

	// ── Betting ──
	setFloat64(&cfg.Betting.SlippagePct, "AZUBET_BETTING_SLIPPAGE_PCT")
	setDuration(&cfg.Betting.ExpiryWindow, "AZUBET_BETTING_EXPIRY_WINDOW")
	setDuration(&cfg.Betting.PollInterval, "AZUBET_BETTING_POLL_INTERVAL")
	setDuration(&cfg.Betting.PollBudget, "AZUBET_BETTING_POLL_BUDGET")
	setDuration(&cfg.Betting.CashoutPollBudget, "AZUBET_BETTING_CASHOUT_POLL_BUDGET")
	setDuration(&cfg.Betting.MinBetGap, "AZUBET_BETTING_MIN_BET_GAP")
	setDuration(&cfg.Betting.LockTTL, "AZUBET_BETTING_LOCK_TTL")
	setInt(&cfg.Betting.RPCBudgetPerMinute, "AZUBET_BETTING_RPC_BUDGET_PER_MINUTE")

	// ── Retry ──
	setInt(&cfg.Retry.MaxRetries, "AZUBET_RETRY_MAX_RETRIES")
	setDuration(&cfg.Retry.BackoffBase, "AZUBET_RETRY_BACKOFF_BASE")
	setDuration(&cfg.Retry.BackoffMax, "AZUBET_RETRY_BACKOFF_MAX")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.StaleAge, "AZUBET_RECONCILE_STALE_AGE")
	setDuration(&cfg.Reconcile.Lookback, "AZUBET_RECONCILE_LOOKBACK")
	setFloat64(&cfg.Reconcile.AmountTolerancePct, "AZUBET_RECONCILE_AMOUNT_TOLERANCE_PCT")
	setDuration(&cfg.Reconcile.Interval, "AZUBET_RECONCILE_INTERVAL")

	// ── Gas ──
	setFloat64(&cfg.Gas.PriceMultiplier, "AZUBET_GAS_PRICE_MULTIPLIER")
	setInt64(&cfg.Gas.FloorGwei, "AZUBET_GAS_FLOOR_GWEI")
	setInt(&cfg.Gas.Limit, "AZUBET_GAS_LIMIT")
	setDuration(&cfg.Gas.ReceiptTimeout, "AZUBET_GAS_RECEIPT_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AZUBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AZUBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AZUBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AZUBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AZUBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AZUBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AZUBET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AZUBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AZUBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AZUBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AZUBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AZUBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AZUBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AZUBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AZUBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AZUBET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AZUBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AZUBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "AZUBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AZUBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AZUBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AZUBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AZUBET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "AZUBET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "AZUBET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "AZUBET_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AZUBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AZUBET_SERVER_PORT")
	setStr(&cfg.Server.APIToken, "AZUBET_SERVER_API_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "AZUBET_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "AZUBET_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AZUBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AZUBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AZUBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AZUBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AZUBET_MODE")
	setStr(&cfg.LogLevel, "AZUBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
