// Package main is the entrypoint for the InferChain marketplace API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/cache"
	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/config"
	"github.com/inferchain/inferchain/internal/handler"
	"github.com/inferchain/inferchain/internal/ipfs"
	"github.com/inferchain/inferchain/internal/listener"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/middleware"
	"github.com/inferchain/inferchain/internal/repository"
	"github.com/inferchain/inferchain/internal/server"
	"github.com/inferchain/inferchain/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Key material is checked before any connection is opened.
	sealer, err := newSealer(cfg)
	if err != nil {
		return err
	}

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	// Chain interfaces stay untyped nil when the chain is disabled so
	// services can test them against nil.
	var (
		client   *chain.Client
		payments chain.Payments
		registry chain.Registry
		gateway  chain.Gateway
		nodes    chain.Nodes
		chainHC  handler.HealthChecker
	)
	if cfg.ChainEnabled {
		keys, err := chain.NewStaticKeyProvider(map[chain.Account]string{
			chain.AccountPayer:     cfg.PayerPrivateKey,
			chain.AccountNode:      cfg.NodePrivateKey,
			chain.AccountPublisher: cfg.PublisherPrivateKey,
			chain.AccountAdmin:     cfg.AdminPrivateKey,
		})
		if err != nil {
			repo.Close()
			_ = cacheClient.Close()
			return err
		}
		client, err = chain.Dial(ctx, chain.Config{
			RPCURL:           cfg.RPCURL,
			WSURL:            cfg.RPCWSURL,
			ModelRegistry:    common.HexToAddress(cfg.ModelRegistryAddress),
			InferenceManager: common.HexToAddress(cfg.InferenceManagerAddress),
			NodeRegistry:     common.HexToAddress(cfg.NodeRegistryAddress),
			CallTimeout:      cfg.ChainCallTimeout,
			RPS:              cfg.ChainRPS,
		}, keys, recorder, logger)
		if err != nil {
			repo.Close()
			_ = cacheClient.Close()
			logger.Error("failed to connect to chain",
				slog.String("error", sanitizeError(err, cfg.RPCURL)),
				slog.String("rpc_url", redactURL(cfg.RPCURL)),
			)
			return err
		}
		payments, registry, gateway, nodes, chainHC = client, client, client, client, client
		logger.Info("connected to chain", "chain_id", client.ChainID().String())
	} else {
		logger.Warn("blockchain integration disabled, keys are issued without payment")
	}

	sessions := auth.NewSessionManager(cfg.JWTSecret, cfg.JWTTTL)
	hasher := auth.NewPasswordHasher(auth.DefaultArgon2Params)

	tokenEnv := "test"
	if cfg.IsProduction() {
		tokenEnv = "live"
	}

	// Initialize services
	paymentService := service.NewPaymentService(payments, repo, service.PaymentConfigFromConfig(cfg), recorder, logger)
	catalogService := service.NewCatalogService(repo, repo, registry, cfg.StrictCID, logger)
	apiKeyService := service.NewAPIKeyService(repo, repo, cacheClient, catalogService, paymentService, sealer,
		service.APIKeyConfig{
			TokenEnv:     tokenEnv,
			DefaultHours: cfg.DefaultRentalHours,
			MaxHours:     cfg.MaxRentalHours,
		}, recorder, logger)
	qaService := service.NewQAService(catalogService, paymentService, cfg.PerMessageMetering, recorder, logger)
	userService := service.NewUserService(repo, repo, catalogService, hasher, sessions, logger)
	inferenceService := service.NewInferenceService(gateway, repo, catalogService, cfg.SettlementMaxAttempts, logger)
	nodeService := service.NewNodeService(nodes, logger)

	pinata := ipfs.NewClient(ipfs.Config{
		BaseURL:   cfg.PinataURL,
		APIKey:    cfg.PinataAPIKey,
		SecretKey: cfg.PinataSecretKey,
	}, logger)

	info := handler.ServiceInfo{
		ChainEnabled:    cfg.ChainEnabled,
		PaymentsEnabled: paymentService.Enabled(),
		SettlementMode:  cfg.SettlementMode,
	}
	if client != nil {
		info.ChainID = client.ChainID().String()
	}

	// Initialize handlers
	handlers := server.Handlers{
		Root:      handler.New(info),
		Health:    handler.NewHealthHandler(repo, cacheClient, chainHC, logger),
		Metrics:   handler.NewMetricsHandler(recorder),
		APIKeys:   handler.NewAPIKeyHandler(apiKeyService, logger),
		QA:        handler.NewQAHandler(qaService, logger),
		Models:    handler.NewModelHandler(catalogService, logger),
		Users:     handler.NewUserHandler(userService, logger),
		Inference: handler.NewInferenceHandler(inferenceService, logger),
		Nodes:     handler.NewNodeHandler(nodeService, logger),
		IPFS:      handler.NewIPFSHandler(pinata, cfg.MaxUploadBytes, logger),
	}

	r := server.NewRouter(handlers, server.RouterConfig{
		Logger:         logger,
		IsDevelopment:  cfg.IsDevelopment(),
		AllowedOrigins: cfg.GetCORSAllowedOrigins(),
		MaxBodyBytes:   cfg.MaxRequestBodySize,
		Validator:      apiKeyService,
		Sessions:       sessions,
		RateLimit: middleware.RateLimitConfig{
			Logger:          logger,
			Limiter:         cacheClient,
			Enabled:         cfg.RateLimitEnabled,
			RentalPerMinute: cfg.RateLimitQAPerMinute,
			IPPerMinute:     cfg.RateLimitIPPerMinute,
		},
	})

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     2 * cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Hooks run LIFO: chain first, then Redis, then Postgres.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	if client != nil {
		srv.OnShutdown("chain", func(context.Context) error {
			client.Close()
			return nil
		})
	}

	// The worker settles every pending claim, including those issuance leaves
	// behind. Only the listener needs the websocket endpoint.
	if cfg.SettlementWorkerEnabled() && client != nil {
		w := listener.NewWorker(client, repo, listener.DelayInferencer{Delay: cfg.InferenceDelay}, listener.WorkerConfig{
			BatchSize:    cfg.SettlementBatchSize,
			PollInterval: cfg.SettlementPollInterval,
		}, logger, recorder)
		srv.Background("settlement-worker", w.Run)
	}
	if cfg.ListenerEnabled && client != nil {
		l := listener.NewListener(client, repo, cfg.SettlementMaxAttempts, logger, recorder)
		srv.Background("event-listener", l.Run)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"chain_enabled", cfg.ChainEnabled,
		"payments_enabled", paymentService.Enabled(),
		"payment_failure_policy", cfg.PaymentFailurePolicy,
		"settlement_mode", cfg.SettlementMode,
		"listener_enabled", cfg.ListenerEnabled,
		"settlement_worker", cfg.SettlementWorkerEnabled(),
		"ipfs_configured", pinata.Configured(),
	)

	return srv.Run(ctx)
}

func newSealer(cfg *config.Config) (*auth.Sealer, error) {
	key, err := cfg.SealKey()
	if err != nil {
		return nil, err
	}
	return auth.NewSealer(key)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "inferchain-api")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

var (
	passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)
	// Hosted RPC endpoints carry the project key in the last path segment.
	rpcKeyPattern = regexp.MustCompile(`(/v[0-9]+/)[A-Za-z0-9_-]{16,}`)
)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}
	parsed.RawQuery = ""

	return rpcKeyPattern.ReplaceAllString(parsed.String(), "${1}redacted")
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
