package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cliConfig is the subset of server configuration the admin commands need.
// Flags override environment values.
type cliConfig struct {
	DatabaseURL         string        `env:"DATABASE_URL"`
	RPCURL              string        `env:"RPC_URL" envDefault:"http://127.0.0.1:8545"`
	NodeRegistryAddress string        `env:"NODE_REGISTRY_ADDRESS"`
	CallTimeout         time.Duration `env:"CHAIN_CALL_TIMEOUT" envDefault:"30s"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
}

var (
	cfg    cliConfig
	logger *slog.Logger

	databaseURL string
	rpcURL      string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "inferctl",
	Short: "Administrative CLI for the InferChain marketplace",
	Long: `inferctl runs one-off administrative tasks against an InferChain deployment.
It reads the same environment variables (and .env file) as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadCLIConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if databaseURL != "" {
			loaded.DatabaseURL = databaseURL
		}
		if rpcURL != "" {
			loaded.RPCURL = rpcURL
		}
		cfg = loaded

		level := slog.LevelInfo
		if verbose || cfg.LogLevel == "debug" {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
			With("service", "inferctl")
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres connection URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", "", "JSON-RPC endpoint (overrides RPC_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func loadCLIConfig() (cliConfig, error) {
	_ = godotenv.Load()

	var c cliConfig
	if err := env.Parse(&c); err != nil {
		return cliConfig{}, err
	}
	return c, nil
}

func requireDatabase() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL or --database-url is required")
	}
	return nil
}
