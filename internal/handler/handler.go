// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/service"
)

// Version is reported by the root endpoint.
const Version = "0.1.0"

// ServiceInfo describes the running deployment on the root endpoint.
type ServiceInfo struct {
	ChainEnabled    bool
	ChainID         string
	PaymentsEnabled bool
	SettlementMode  string
}

// Handler serves the unauthenticated root routes.
type Handler struct {
	info ServiceInfo
}

// New creates a new Handler instance.
func New(info ServiceInfo) *Handler {
	return &Handler{info: info}
}

type rootResponse struct {
	Message         string `json:"message"`
	Version         string `json:"version"`
	ChainEnabled    bool   `json:"chainEnabled"`
	ChainID         string `json:"chainId,omitempty"`
	PaymentsEnabled bool   `json:"paymentsEnabled"`
	SettlementMode  string `json:"settlementMode,omitempty"`
}

// Hello identifies the service and its ledger mode.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message:         "Inference backend running",
		Version:         Version,
		ChainEnabled:    h.info.ChainEnabled,
		ChainID:         h.info.ChainID,
		PaymentsEnabled: h.info.PaymentsEnabled,
		SettlementMode:  h.info.SettlementMode,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing useful can be done with an encode error.
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// writeErrorDetails writes an error response with details.
func writeErrorDetails(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code, Details: details})
}

// orEmpty keeps list responses from encoding as null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// decodeJSON reads a request body. It writes the 400 itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

// errorMapper maps service errors to responses. Each handler family embeds one.
type errorMapper struct {
	logger *slog.Logger
}

// handleServiceError writes the response for err using the shared taxonomy.
func (m errorMapper) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	// 400
	case errors.Is(err, service.ErrIdentityRequired),
		errors.Is(err, service.ErrInvalidWallet),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrModelRequired),
		errors.Is(err, service.ErrAPIKeyRequired),
		errors.Is(err, service.ErrQuestionRequired),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidCID),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidMinutes),
		errors.Is(err, chain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())

	// 401
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, service.ErrRentalNotFound),
		errors.Is(err, service.ErrRentalExpired),
		errors.Is(err, service.ErrRentalRevoked):
		writeError(w, http.StatusUnauthorized, "INVALID_API_KEY", err.Error())

	// 402
	case errors.Is(err, service.ErrPaymentRequired):
		writeErrorDetails(w, http.StatusPaymentRequired, "PAYMENT_REQUIRED", service.ErrPaymentRequired.Error(), err.Error())

	// 403
	case errors.Is(err, service.ErrRoleRequired),
		errors.Is(err, service.ErrNotModelOwner),
		errors.Is(err, service.ErrNotRentalOwner):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())

	// 404
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "MODEL_NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "REQUEST_NOT_FOUND", "Inference request not found")

	// 409
	case errors.Is(err, service.ErrEmailExists):
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered")
	case errors.Is(err, service.ErrChainModelExists):
		writeError(w, http.StatusConflict, "MODEL_EXISTS", err.Error())

	// 503
	case errors.Is(err, service.ErrChainDisabled):
		writeError(w, http.StatusServiceUnavailable, "CHAIN_DISABLED", service.ErrChainDisabled.Error())

	case errors.Is(err, service.ErrLedger):
		m.logger.Error("ledger_error", "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "LEDGER_ERROR", "Blockchain operation failed", ledgerDetails(err))
	default:
		m.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// ledgerDetails surfaces a revert reason when there is one.
func ledgerDetails(err error) string {
	if revert, ok := chain.IsRevert(err); ok {
		return revert.Error()
	}
	return "ledger call failed"
}
