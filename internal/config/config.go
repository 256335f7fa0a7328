// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles,
// with an optional .env file for local development.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Payment failure policies.
const (
	// PolicyDegrade issues the credential even when the ledger fails.
	PolicyDegrade = "degrade"
	// PolicyFailClosed refuses to issue a credential without a successful payment.
	PolicyFailClosed = "fail_closed"
)

// Settlement modes.
const (
	SettlementSync  = "sync"
	SettlementAsync = "async"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Secrets
	JWTSecret    string        `env:"JWT_SECRET"`
	JWTTTL       time.Duration `env:"JWT_TTL" envDefault:"24h"`
	TokenSealKey string        `env:"TOKEN_SEAL_KEY"`

	// Rentals and payments
	DefaultRentalHours   int    `env:"DEFAULT_RENTAL_HOURS" envDefault:"24"`
	MaxRentalHours       int    `env:"MAX_RENTAL_HOURS" envDefault:"8760"`
	PaymentsEnabled      bool   `env:"PAYMENTS_ENABLED" envDefault:"false"`
	PaymentFailurePolicy string `env:"PAYMENT_FAILURE_POLICY" envDefault:"degrade"`
	SettlementMode       string `env:"SETTLEMENT_MODE" envDefault:"sync"`
	PerMessageMetering   bool   `env:"PER_MESSAGE_METERING" envDefault:"true"`
	CommissionBps        int64  `env:"COMMISSION_BPS" envDefault:"2500"`

	// Blockchain
	ChainEnabled            bool          `env:"CHAIN_ENABLED" envDefault:"false"`
	RPCURL                  string        `env:"RPC_URL" envDefault:"http://127.0.0.1:8545"`
	RPCWSURL                string        `env:"RPC_WS_URL"`
	ChainCallTimeout        time.Duration `env:"CHAIN_CALL_TIMEOUT" envDefault:"30s"`
	ChainRPS                float64       `env:"CHAIN_RPS" envDefault:"20"`
	ModelRegistryAddress    string        `env:"MODEL_REGISTRY_ADDRESS"`
	InferenceManagerAddress string        `env:"INFERENCE_MANAGER_ADDRESS"`
	NodeRegistryAddress     string        `env:"NODE_REGISTRY_ADDRESS"`

	// Service-operated signing accounts. Never logged.
	PayerPrivateKey     string `env:"PAYER_PRIVATE_KEY"`
	NodePrivateKey      string `env:"NODE_PRIVATE_KEY"`
	PublisherPrivateKey string `env:"PUBLISHER_PRIVATE_KEY"`
	AdminPrivateKey     string `env:"ADMIN_PRIVATE_KEY"`

	// Event listener and settlement worker
	ListenerEnabled        bool          `env:"LISTENER_ENABLED" envDefault:"false"`
	SettlementPollInterval time.Duration `env:"SETTLEMENT_POLL_INTERVAL" envDefault:"2s"`
	SettlementBatchSize    int           `env:"SETTLEMENT_BATCH_SIZE" envDefault:"20"`
	SettlementMaxAttempts  int           `env:"SETTLEMENT_MAX_ATTEMPTS" envDefault:"6"`
	InferenceDelay         time.Duration `env:"INFERENCE_DELAY" envDefault:"2s"`

	// IPFS pinning
	PinataAPIKey    string `env:"PINATA_API_KEY"`
	PinataSecretKey string `env:"PINATA_SECRET_KEY"`
	PinataURL       string `env:"PINATA_URL" envDefault:"https://api.pinata.cloud"`
	StrictCID       bool   `env:"STRICT_CID" envDefault:"false"`
	MaxUploadBytes  int64  `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`

	// Rate limiting
	RateLimitEnabled     bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitQAPerMinute int  `env:"RATE_LIMIT_QA_PER_MINUTE" envDefault:"60"`
	RateLimitIPPerMinute int  `env:"RATE_LIMIT_IP_PER_MINUTE" envDefault:"120"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "http://localhost:3000")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SettlementWorkerEnabled reports whether the settlement worker must run.
// Payments leave pending claims behind in async mode and after a failed
// inline commit, and the listener records claims from chain events. The
// worker only needs the HTTP RPC endpoint.
func (c *Config) SettlementWorkerEnabled() bool {
	return c.ChainEnabled && (c.PaymentsEnabled || c.ListenerEnabled)
}

// FailClosed reports whether a failed payment must block credential issuance.
func (c *Config) FailClosed() bool {
	return c.PaymentFailurePolicy == PolicyFailClosed
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// SealKey decodes TOKEN_SEAL_KEY.
func (c *Config) SealKey() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(c.TokenSealKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_SEAL_KEY is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOKEN_SEAL_KEY must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// PinataConfigured reports whether IPFS pinning credentials are present.
func (c *Config) PinataConfigured() bool {
	return c.PinataAPIKey != "" && c.PinataSecretKey != ""
}

// Validate checks cross-field constraints and reports every problem at once.
func (c *Config) Validate() error {
	var errs error

	if len(c.JWTSecret) < 32 {
		errs = multierr.Append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if _, err := c.SealKey(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.DefaultRentalHours <= 0 || c.DefaultRentalHours > c.MaxRentalHours {
		errs = multierr.Append(errs, fmt.Errorf("DEFAULT_RENTAL_HOURS must be in 1..%d", c.MaxRentalHours))
	}
	if c.PaymentFailurePolicy != PolicyDegrade && c.PaymentFailurePolicy != PolicyFailClosed {
		errs = multierr.Append(errs, fmt.Errorf("PAYMENT_FAILURE_POLICY must be %q or %q", PolicyDegrade, PolicyFailClosed))
	}
	if c.SettlementMode != SettlementSync && c.SettlementMode != SettlementAsync {
		errs = multierr.Append(errs, fmt.Errorf("SETTLEMENT_MODE must be %q or %q", SettlementSync, SettlementAsync))
	}
	if c.CommissionBps < 0 || c.CommissionBps > 10000 {
		errs = multierr.Append(errs, errors.New("COMMISSION_BPS must be in 0..10000"))
	}
	if c.PaymentsEnabled && !c.ChainEnabled {
		errs = multierr.Append(errs, errors.New("PAYMENTS_ENABLED requires CHAIN_ENABLED"))
	}
	if c.ListenerEnabled && (!c.ChainEnabled || c.RPCWSURL == "") {
		errs = multierr.Append(errs, errors.New("LISTENER_ENABLED requires CHAIN_ENABLED and RPC_WS_URL"))
	}
	if c.SettlementWorkerEnabled() {
		if c.SettlementBatchSize <= 0 || c.SettlementPollInterval <= 0 || c.SettlementMaxAttempts <= 0 {
			errs = multierr.Append(errs, errors.New("SETTLEMENT_BATCH_SIZE, SETTLEMENT_POLL_INTERVAL and SETTLEMENT_MAX_ATTEMPTS must be positive when payments or the listener are enabled"))
		}
	}
	if c.ChainCallTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("CHAIN_CALL_TIMEOUT must be positive"))
	}

	if c.ChainEnabled {
		for name, addr := range map[string]string{
			"MODEL_REGISTRY_ADDRESS":    c.ModelRegistryAddress,
			"INFERENCE_MANAGER_ADDRESS": c.InferenceManagerAddress,
			"NODE_REGISTRY_ADDRESS":     c.NodeRegistryAddress,
		} {
			if !common.IsHexAddress(addr) {
				errs = multierr.Append(errs, fmt.Errorf("%s is not a valid address", name))
			}
		}
		if c.RPCURL == "" {
			errs = multierr.Append(errs, errors.New("RPC_URL is required when CHAIN_ENABLED"))
		}
	}

	return errs
}

// Load reads an optional .env file, parses environment variables and validates the result.
// Returns an error if required variables are missing or inconsistent.
func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
