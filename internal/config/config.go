// Package config defines the top-level configuration for the betting service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AZUBET_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Azuro     AzuroConfig     `toml:"azuro"`
	Betting   BettingConfig   `toml:"betting"`
	Retry     RetryConfig     `toml:"retry"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Gas       GasConfig       `toml:"gas"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the betting wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC endpoints and chain parameters.
type ChainConfig struct {
	// RPCEndpoints is the rotation pool; the first entry is the initial
	// endpoint.
	RPCEndpoints []string `toml:"rpc_endpoints"`
	ChainID      int64    `toml:"chain_id"`
}

// AzuroConfig holds the Azuro protocol surfaces: relayer API, subgraph, odds
// feed, and the protocol contract addresses.
type AzuroConfig struct {
	RelayerURL     string `toml:"relayer_url"`
	Environment    string `toml:"environment"`
	SubgraphURL    string `toml:"subgraph_url"`
	SubgraphAPIKey string `toml:"subgraph_api_key"`
	WsURL          string `toml:"ws_url"`

	LPAddress          string `toml:"lp_address"`
	CoreAddress        string `toml:"core_address"`
	ExpressCoreAddress string `toml:"express_core_address"`
	AzuroBetAddress    string `toml:"azuro_bet_address"`
	TokenAddress       string `toml:"token_address"`
	Affiliate          string `toml:"affiliate"`

	DomainName    string `toml:"domain_name"`
	DomainVersion string `toml:"domain_version"`
}

// BettingConfig holds bet placement parameters.
type BettingConfig struct {
	// SlippagePct is the tolerated odds drop in percent when converting
	// quoted odds into the signed minimum odds bound.
	SlippagePct  float64  `toml:"slippage_pct"`
	ExpiryWindow duration `toml:"expiry_window"`
	PollInterval duration `toml:"poll_interval"`
	PollBudget   duration `toml:"poll_budget"`
	// CashoutPollBudget bounds the status poll after a cashout order is
	// created. Shorter than PollBudget since cashout quotes expire fast.
	CashoutPollBudget duration `toml:"cashout_poll_budget"`
	// MinBetGap is the minimum pause between two submissions from the
	// wallet.
	MinBetGap duration `toml:"min_bet_gap"`
	// LockTTL bounds how long the wallet lock may be held by one
	// submission before it expires on its own.
	LockTTL duration `toml:"lock_ttl"`
	// RPCBudgetPerMinute rate-limits outbound RPC requests.
	RPCBudgetPerMinute int `toml:"rpc_budget_per_minute"`
}

// RetryConfig holds the blockchain retry/backoff parameters.
type RetryConfig struct {
	MaxRetries  int      `toml:"max_retries"`
	BackoffBase duration `toml:"backoff_base"`
	BackoffMax  duration `toml:"backoff_max"`
}

// ReconcileConfig holds ghost-bet reconciliation parameters.
type ReconcileConfig struct {
	StaleAge           duration `toml:"stale_age"`
	Lookback           duration `toml:"lookback"`
	AmountTolerancePct float64  `toml:"amount_tolerance_pct"`
	// Interval is the cadence of the background reconciliation loop.
	Interval duration `toml:"interval"`
}

// GasConfig holds transaction pricing parameters.
type GasConfig struct {
	PriceMultiplier float64  `toml:"price_multiplier"`
	FloorGwei       int64    `toml:"floor_gwei"`
	Limit           int      `toml:"limit"`
	ReceiptTimeout  duration `toml:"receipt_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIToken    string   `toml:"api_token"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitPerMin caps requests per client IP per minute; 0 disables.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCEndpoints: []string{"https://polygon-rpc.com"},
			ChainID:      137,
		},
		Azuro: AzuroConfig{
			RelayerURL:    "https://api.azuro.org/api/v1/public",
			Environment:   "PolygonUSDT",
			SubgraphURL:   "https://thegraph.azuro.org/subgraphs/name/azuro-protocol/azuro-api-polygon-v3",
			WsURL:         "wss://streams.azuro.org/v1/streams/conditions",
			DomainName:    "Azuro Liquidity Pool",
			DomainVersion: "1",
		},
		Betting: BettingConfig{
			SlippagePct:        2.0,
			ExpiryWindow:       duration{5 * time.Minute},
			PollInterval:       duration{2 * time.Second},
			PollBudget:         duration{30 * time.Second},
			CashoutPollBudget:  duration{20 * time.Second},
			MinBetGap:          duration{3 * time.Second},
			LockTTL:            duration{2 * time.Minute},
			RPCBudgetPerMinute: 300,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BackoffBase: duration{500 * time.Millisecond},
			BackoffMax:  duration{30 * time.Second},
		},
		Reconcile: ReconcileConfig{
			StaleAge:           duration{5 * time.Minute},
			Lookback:           duration{24 * time.Hour},
			AmountTolerancePct: 5,
			Interval:           duration{10 * time.Minute},
		},
		Gas: GasConfig{
			PriceMultiplier: 1.2,
			FloorGwei:       30,
			Limit:           300_000,
			ReceiptTimeout:  duration{2 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "azubet",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "azubet-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"bet_accepted", "bet_rejected", "ghost_recovered", "settled", "payout_withdrawn", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":    true,
	"reconcile": true,
	"settle":    true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, reconcile, settle, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — every mode signs something (bets, withdrawals, cancels).
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if len(c.Chain.RPCEndpoints) == 0 {
		errs = append(errs, "chain: at least one rpc endpoint is required")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
	}

	// Azuro endpoints and contracts
	if c.Azuro.RelayerURL == "" {
		errs = append(errs, "azuro: relayer_url must not be empty")
	}
	if c.Azuro.Environment == "" {
		errs = append(errs, "azuro: environment must not be empty")
	}
	if c.Azuro.SubgraphURL == "" {
		errs = append(errs, "azuro: subgraph_url must not be empty")
	}
	if c.Azuro.LPAddress == "" {
		errs = append(errs, "azuro: lp_address must not be empty")
	}
	if c.Azuro.CoreAddress == "" {
		errs = append(errs, "azuro: core_address must not be empty")
	}
	if c.Azuro.TokenAddress == "" {
		errs = append(errs, "azuro: token_address must not be empty")
	}

	// Betting
	if c.Betting.SlippagePct < 0 || c.Betting.SlippagePct >= 100 {
		errs = append(errs, fmt.Sprintf("betting: slippage_pct must be in [0, 100), got %v", c.Betting.SlippagePct))
	}
	if c.Betting.PollInterval.Duration <= 0 {
		errs = append(errs, "betting: poll_interval must be > 0")
	}
	if c.Betting.PollBudget.Duration < c.Betting.PollInterval.Duration {
		errs = append(errs, "betting: poll_budget must be >= poll_interval")
	}
	if c.Betting.CashoutPollBudget.Duration < c.Betting.PollInterval.Duration {
		errs = append(errs, "betting: cashout_poll_budget must be >= poll_interval")
	}
	if c.Betting.RPCBudgetPerMinute < 1 {
		errs = append(errs, "betting: rpc_budget_per_minute must be >= 1")
	}

	// Retry
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry: max_retries must be >= 0")
	}
	if c.Retry.BackoffBase.Duration <= 0 {
		errs = append(errs, "retry: backoff_base must be > 0")
	}
	if c.Retry.BackoffMax.Duration < c.Retry.BackoffBase.Duration {
		errs = append(errs, "retry: backoff_max must be >= backoff_base")
	}

	// Reconcile
	if c.Reconcile.StaleAge.Duration <= 0 {
		errs = append(errs, "reconcile: stale_age must be > 0")
	}
	if c.Reconcile.AmountTolerancePct < 0 || c.Reconcile.AmountTolerancePct >= 100 {
		errs = append(errs, fmt.Sprintf("reconcile: amount_tolerance_pct must be in [0, 100), got %v", c.Reconcile.AmountTolerancePct))
	}

	// Gas
	if c.Gas.PriceMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("gas: price_multiplier must be >= 1, got %v", c.Gas.PriceMultiplier))
	}
	if c.Gas.FloorGwei < 0 {
		errs = append(errs, "gas: floor_gwei must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
