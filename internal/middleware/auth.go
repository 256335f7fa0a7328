package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/service"
)

// APIKeyHeader carries a rental token.
const APIKeyHeader = "X-API-Key"

const missingKeyMessage = "API key required. Include 'x-api-key' header."

// RentalValidator validates rental tokens.
type RentalValidator interface {
	Validate(ctx context.Context, apiKey string) (*model.RentalContext, error)
}

// RentalAuthConfig holds configuration for the rental auth middleware.
type RentalAuthConfig struct {
	Logger    *slog.Logger
	Validator RentalValidator
}

// RentalAuth authenticates requests that carry a rental token and injects the
// validated rental into the request context.
func RentalAuth(cfg RentalAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				logAuthFailure(cfg.Logger, r, "missing_key")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", missingKeyMessage)
				return
			}

			rental, err := cfg.Validator.Validate(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrRentalNotFound),
					errors.Is(err, service.ErrRentalExpired),
					errors.Is(err, service.ErrRentalRevoked):
					logAuthFailure(cfg.Logger, r, err.Error())
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				default:
					cfg.Logger.Error("rental validation failed",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate API key")
				}
				return
			}

			annotate(r.Context(),
				slog.String("rental_id", rental.RentalID),
				slog.String("model_id", rental.ModelID),
			)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithRental(r.Context(), rental)))
		})
	}
}

// SessionVerifier verifies session tokens.
type SessionVerifier interface {
	Verify(token string) (*auth.SessionClaims, error)
}

// SessionAuthConfig holds configuration for the session auth middleware.
type SessionAuthConfig struct {
	Logger   *slog.Logger
	Sessions SessionVerifier
}

// SessionAuth requires a Bearer session token.
func SessionAuth(cfg SessionAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				logAuthFailure(cfg.Logger, r, "missing_token")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			claims, err := cfg.Sessions.Verify(token)
			if err != nil {
				logAuthFailure(cfg.Logger, r, "invalid_token")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session")
				return
			}

			annotate(r.Context(), slog.String("user_id", claims.Subject))
			next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), claims)))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// extractAPIKey reads the x-api-key header, falling back to a Bearer token.
func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
