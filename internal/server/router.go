package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/inferchain/inferchain/internal/handler"
	"github.com/inferchain/inferchain/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Root      *handler.Handler
	Health    *handler.HealthHandler
	Metrics   *handler.MetricsHandler
	APIKeys   *handler.APIKeyHandler
	QA        *handler.QAHandler
	Models    *handler.ModelHandler
	Users     *handler.UserHandler
	Inference *handler.InferenceHandler
	Nodes     *handler.NodeHandler
	IPFS      *handler.IPFSHandler
}

// RouterConfig carries the middleware settings.
type RouterConfig struct {
	Logger         *slog.Logger
	IsDevelopment  bool
	AllowedOrigins []string
	MaxBodyBytes   int64

	Validator middleware.RentalValidator
	Sessions  middleware.SessionVerifier
	RateLimit middleware.RateLimitConfig
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(h Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment}))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.IsDevelopment,
		MaxAge:         86400,
	}))

	// Probes and root info (no auth, no rate limit)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Get("/metrics", h.Metrics.Metrics)
	r.Get("/", h.Root.Hello)

	rentalAuth := middleware.RentalAuth(middleware.RentalAuthConfig{Logger: cfg.Logger, Validator: cfg.Validator})
	sessionAuth := middleware.SessionAuth(middleware.SessionAuthConfig{Logger: cfg.Logger, Sessions: cfg.Sessions})

	// JSON API
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(cfg.RateLimit))
		r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))

		r.Route("/api-keys", func(r chi.Router) {
			r.Get("/", h.APIKeys.List)
			r.Post("/generate", h.APIKeys.Generate)
			r.Post("/validate", h.APIKeys.Validate)
			r.Post("/revoke", h.APIKeys.Revoke)
		})

		r.Route("/qa", func(r chi.Router) {
			r.Get("/models", h.QA.Models)
			r.With(rentalAuth, middleware.RateLimitRental(cfg.RateLimit)).Post("/ask", h.QA.Ask)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.Models.List)
			r.Post("/", h.Models.Create)
			r.Get("/blockchain/next-id", h.Models.NextChainID)
			r.Get("/blockchain/{id}", h.Models.ChainView)
			r.Get("/{id}", h.Models.Get)
			r.Delete("/{id}", h.Models.Delete)
			r.Put("/{id}/price", h.Models.UpdatePrice)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", h.Users.RegisterWallet)
			r.With(middleware.ValidateWalletParam("wallet")).Get("/{wallet}", h.Users.GetByWallet)
		})

		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/register", h.Users.Register)
			r.Post("/auth/login", h.Users.Login)
			r.With(sessionAuth).Get("/auth/me", h.Users.Me)
			r.With(middleware.ValidateEmailParam("email")).Get("/user/{email}", h.Users.Stats)
			r.With(middleware.ValidateEmailParam("email")).Get("/creator/{email}/models", h.Users.CreatorModels)
		})

		r.Route("/inference", func(r chi.Router) {
			r.Post("/request", h.Inference.Request)
			r.Get("/status/{requestId}", h.Inference.Status)
			r.Post("/submit", h.Inference.Submit)
			r.Get("/next-request-id", h.Inference.NextRequestID)
			r.Get("/commission-account", h.Inference.CommissionAccount)
		})

		r.Route("/nodes", func(r chi.Router) {
			r.With(middleware.ValidateWalletParam("address")).Get("/check/{address}", h.Nodes.Check)
			r.Get("/admin", h.Nodes.Admin)
			r.Group(func(r chi.Router) {
				r.Use(sessionAuth, middleware.RequireAdmin())
				r.Post("/add", h.Nodes.Add)
				r.Post("/remove", h.Nodes.Remove)
			})
		})
	})

	// Uploads carry their own, larger limit.
	r.With(middleware.RateLimitIP(cfg.RateLimit)).Post("/ipfs/upload", h.IPFS.Upload)

	// 404 and 405 handlers
	r.NotFound(h.Root.NotFound)
	r.MethodNotAllowed(h.Root.MethodNotAllowed)

	return r
}
