// Command azubet runs the bet lifecycle service: it loads and validates the
// configuration, wires the dependencies, and runs the configured mode until a
// shutdown signal arrives.
//
// With -encrypt-key it instead seals the wallet key from
// AZUBET_WALLET_PRIVATE_KEY under AZUBET_KEY_PASSWORD and writes the key file,
// then exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/azubet/azubet/internal/app"
	"github.com/azubet/azubet/internal/config"
	"github.com/azubet/azubet/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKey := flag.String("encrypt-key", "", "write an encrypted key file to this path and exit")
	flag.Parse()

	if *encryptKey != "" {
		if err := writeKeyFile(*encryptKey); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("azubet starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited", slog.String("error", err.Error()))
		return err
	}

	logger.Info("azubet stopped")
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// writeKeyFile seals the wallet key from the environment so the plaintext key
// never has to live in config.toml.
func writeKeyFile(path string) error {
	keyHex := os.Getenv("AZUBET_WALLET_PRIVATE_KEY")
	if keyHex == "" {
		return errors.New("AZUBET_WALLET_PRIVATE_KEY is not set")
	}
	password := os.Getenv("AZUBET_KEY_PASSWORD")
	if password == "" {
		return errors.New("AZUBET_KEY_PASSWORD is not set")
	}

	blob, err := crypto.EncryptKey(keyHex, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("encrypted key written to %s\n", path)
	return nil
}
