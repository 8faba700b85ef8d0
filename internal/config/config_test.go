package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe512961708279f1d4ecbb22fa4b4b5b"
	cfg.Azuro.LPAddress = "0x0000000000000000000000000000000000000001"
	cfg.Azuro.CoreAddress = "0x0000000000000000000000000000000000000002"
	cfg.Azuro.TokenAddress = "0x0000000000000000000000000000000000000003"
	return cfg
}

func TestValidateDefaultsWithSecrets(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	cfg.Chain.ChainID = 0
	cfg.Betting.SlippagePct = 150

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"mode", "chain_id", "slippage_pct"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error must mention %s: %v", want, err)
		}
	}
}

func TestValidateWalletRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing wallet key must fail validation")
	}

	cfg.Wallet.EncryptedKeyPath = "/tmp/key.enc"
	if err := cfg.Validate(); err == nil {
		t.Fatal("encrypted key without password must fail validation")
	}

	cfg.Wallet.KeyPassword = "hunter2"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidatePollBudget(t *testing.T) {
	cfg := validConfig()
	cfg.Betting.PollInterval = duration{10 * time.Second}
	cfg.Betting.PollBudget = duration{5 * time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("poll_budget below poll_interval must fail validation")
	}

	cfg = validConfig()
	cfg.Betting.CashoutPollBudget = duration{time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("cashout_poll_budget below poll_interval must fail validation")
	}
}

func TestValidateS3OnlyWhenArchiveEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("archive disabled must not require s3: %v", err)
	}

	cfg.Archive.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("archive enabled without s3 must fail validation")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "reconcile"

[betting]
slippage_pct = 3.5
poll_budget = "45s"

[chain]
chain_id = 100
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "reconcile" {
		t.Fatalf("mode = %s", cfg.Mode)
	}
	if cfg.Betting.SlippagePct != 3.5 {
		t.Fatalf("slippage_pct = %v", cfg.Betting.SlippagePct)
	}
	if cfg.Betting.PollBudget.Duration != 45*time.Second {
		t.Fatalf("poll_budget = %v", cfg.Betting.PollBudget.Duration)
	}
	if cfg.Chain.ChainID != 100 {
		t.Fatalf("chain_id = %d", cfg.Chain.ChainID)
	}

	// Untouched values keep their defaults.
	if cfg.Betting.PollInterval.Duration != 2*time.Second {
		t.Fatalf("poll_interval default lost: %v", cfg.Betting.PollInterval.Duration)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("server port default lost: %d", cfg.Server.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"full\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AZUBET_MODE", "settle")
	t.Setenv("AZUBET_WALLET_PRIVATE_KEY", "deadbeef")
	t.Setenv("AZUBET_CHAIN_RPC_ENDPOINTS", "https://a, https://b")
	t.Setenv("AZUBET_RECONCILE_STALE_AGE", "7m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "settle" {
		t.Fatalf("mode = %s, env must win", cfg.Mode)
	}
	if cfg.Wallet.PrivateKey != "deadbeef" {
		t.Fatalf("private key override lost")
	}
	if len(cfg.Chain.RPCEndpoints) != 2 || cfg.Chain.RPCEndpoints[1] != "https://b" {
		t.Fatalf("rpc endpoints = %v", cfg.Chain.RPCEndpoints)
	}
	if cfg.Reconcile.StaleAge.Duration != 7*time.Minute {
		t.Fatalf("stale_age = %v", cfg.Reconcile.StaleAge.Duration)
	}
}
