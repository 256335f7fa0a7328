package auth

import (
	"context"

	"github.com/inferchain/inferchain/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	rentalContextKey  contextKey = "rental_context"
	sessionContextKey contextKey = "session_context"
)

// ContextWithRental adds a validated rental to the context.
func ContextWithRental(ctx context.Context, rental *model.RentalContext) context.Context {
	return context.WithValue(ctx, rentalContextKey, rental)
}

// RentalFromContext retrieves the validated rental.
// Returns nil if not present.
func RentalFromContext(ctx context.Context) *model.RentalContext {
	rental, ok := ctx.Value(rentalContextKey).(*model.RentalContext)
	if !ok {
		return nil
	}
	return rental
}

// ContextWithSession adds verified session claims to the context.
func ContextWithSession(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, sessionContextKey, claims)
}

// SessionFromContext retrieves session claims.
// Returns nil if not authenticated.
func SessionFromContext(ctx context.Context) *SessionClaims {
	claims, ok := ctx.Value(sessionContextKey).(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// UserIDFromContext is a convenience function to get the session user id.
// Returns empty string if not authenticated.
func UserIDFromContext(ctx context.Context) string {
	claims := SessionFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}
