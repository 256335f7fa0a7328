package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/service"
)

// APIKeyHandler handles rental key endpoints.
type APIKeyHandler struct {
	errorMapper
	svc *service.APIKeyService
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc *service.APIKeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		errorMapper: errorMapper{logger: logger},
		svc:         svc,
	}
}

// Generate handles POST /api-keys/generate.
func (h *APIKeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	issued, err := h.svc.Generate(r.Context(), service.GenerateInput{
		Identity:      service.Identity{Wallet: req.Wallet, Email: req.Email},
		ModelRef:      req.ModelID.String(),
		DurationHours: req.DurationHours,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToGenerateKeyResponse(issued))
}

// List handles GET /api-keys?wallet= or ?email=.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	keys, err := h.svc.List(r.Context(), service.Identity{
		Wallet: query.Get("wallet"),
		Email:  query.Get("email"),
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToListedKeyResponses(keys))
}

// Validate handles POST /api-keys/validate.
func (h *APIKeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", service.ErrAPIKeyRequired.Error())
		return
	}

	rental, err := h.svc.Validate(r.Context(), req.APIKey)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.ValidateKeyResponse{
			Valid:     true,
			ModelID:   rental.ModelID,
			ExpiresAt: &rental.ExpiresAt,
		})
	case errors.Is(err, service.ErrRentalNotFound),
		errors.Is(err, service.ErrRentalExpired),
		errors.Is(err, service.ErrRentalRevoked):
		writeJSON(w, http.StatusUnauthorized, dto.ValidateKeyResponse{Valid: false, Reason: err.Error()})
	default:
		h.handleServiceError(w, err)
	}
}

// Revoke handles POST /api-keys/revoke.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req dto.RevokeKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rental, err := h.svc.Revoke(r.Context(), req.APIKey, service.Identity{Wallet: req.Wallet, Email: req.Email})
	if err != nil {
		// Unknown keys are 404 here, not 401.
		if errors.Is(err, service.ErrRentalNotFound) {
			writeError(w, http.StatusNotFound, "API_KEY_NOT_FOUND", err.Error())
			return
		}
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RevokeKeyResponse{Revoked: true, ModelID: rental.ModelID})
}
