package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/service"
)

const (
	defaultModelLimit = 50
	maxModelLimit     = 200
)

// ModelHandler handles catalog endpoints.
type ModelHandler struct {
	errorMapper
	svc *service.CatalogService
}

// NewModelHandler creates a new ModelHandler.
func NewModelHandler(svc *service.CatalogService, logger *slog.Logger) *ModelHandler {
	return &ModelHandler{
		errorMapper: errorMapper{logger: logger},
		svc:         svc,
	}
}

// Create handles POST /models.
func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	registered, err := h.svc.Register(r.Context(), req.ToInput(""))
	if err != nil {
		h.handleMutationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RegisterModelResponse{Model: registered.Model, TxHash: registered.TxHash})
}

// List handles GET /models.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultModelLimit
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxModelLimit {
			limit = parsed
		}
	}
	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	models, err := h.svc.List(r.Context(), model.ModelFilter{
		Search: query.Get("search"),
		Owner:  query.Get("owner"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orEmpty(models))
}

// Get handles GET /models/{id}. The id may be canonical or a chain id.
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdatePrice handles PUT /models/{id}/price.
func (h *ModelHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	update, err := h.svc.UpdatePrice(r.Context(), chi.URLParam(r, "id"), req.Wallet, req.NewPricePerMinute.String())
	if err != nil {
		h.handleMutationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUpdatePriceResponse(update))
}

// Delete handles DELETE /models/{id}?wallet=.
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("wallet"))
	if err != nil {
		h.handleMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// NextChainID handles GET /models/blockchain/next-id.
func (h *ModelHandler) NextChainID(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NextChainID(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NextIDResponse{NextID: id})
}

// ChainView handles GET /models/blockchain/{id}.
func (h *ModelHandler) ChainView(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ChainView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleMutationError surfaces contract reverts on owner-gated writes as 400.
func (h *ModelHandler) handleMutationError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrLedger) {
		if revert, ok := chain.IsRevert(err); ok {
			h.logger.Warn("model mutation reverted", "method", revert.Method, "reason", revert.Reason)
			writeErrorDetails(w, http.StatusBadRequest, "CHAIN_REVERT", "Blockchain transaction reverted", revert.Error())
			return
		}
	}
	h.handleServiceError(w, err)
}
