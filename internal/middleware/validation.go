package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inferchain/inferchain/internal/service"
)

// ValidateWalletParam rejects requests whose named URL parameter is not a
// 0x-prefixed 20-byte address.
func ValidateWalletParam(param string) func(http.Handler) http.Handler {
	return validateParam(param, func(v string) bool {
		_, err := service.NormalizeWallet(v)
		return err == nil
	}, "Invalid wallet address")
}

// ValidateEmailParam rejects requests whose named URL parameter is not a bare email address.
func ValidateEmailParam(param string) func(http.Handler) http.Handler {
	return validateParam(param, func(v string) bool {
		_, err := service.NormalizeEmail(v)
		return err == nil
	}, "Invalid email address")
}

func validateParam(param string, valid func(string) bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !valid(chi.URLParam(r, param)) {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
