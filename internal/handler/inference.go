package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/service"
)

// InferenceHandler exposes the InferenceManager contract.
type InferenceHandler struct {
	errorMapper
	svc *service.InferenceService
}

// NewInferenceHandler creates a new InferenceHandler.
func NewInferenceHandler(svc *service.InferenceService, logger *slog.Logger) *InferenceHandler {
	return &InferenceHandler{
		errorMapper: errorMapper{logger: logger},
		svc:         svc,
	}
}

// Request handles POST /inference/request. It returns a transaction for the
// caller's wallet to sign; nothing is sent from here.
func (h *InferenceHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req dto.QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.svc.Quote(r.Context(), req.ModelID.String(), req.Wallet, req.DurationMinutes)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToQuoteResponse(quote))
}

// Status handles GET /inference/status/{requestId}.
func (h *InferenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Status(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToRequestStatusResponse(status))
}

// Submit handles POST /inference/submit.
func (h *InferenceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Submit(r.Context(), req.RequestID.String())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSubmitResponse(result))
}

// NextRequestID handles GET /inference/next-request-id.
func (h *InferenceHandler) NextRequestID(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NextRequestID(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NextRequestIDResponse{NextRequestID: id})
}

// CommissionAccount handles GET /inference/commission-account.
func (h *InferenceHandler) CommissionAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := h.svc.CommissionAccount(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AddressResponse{Address: addr})
}

// NodeHandler manages NodeRegistry approvals.
type NodeHandler struct {
	errorMapper
	svc *service.NodeService
}

// NewNodeHandler creates a new NodeHandler.
func NewNodeHandler(svc *service.NodeService, logger *slog.Logger) *NodeHandler {
	return &NodeHandler{
		errorMapper: errorMapper{logger: logger},
		svc:         svc,
	}
}

// Add handles POST /nodes/add. Admin only.
func (h *NodeHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req dto.NodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.svc.Add(r.Context(), req.Address)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NodeTxResponse{Success: true, Address: req.Address, TxHash: tx})
}

// Remove handles POST /nodes/remove. Admin only.
func (h *NodeHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req dto.NodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.svc.Remove(r.Context(), req.Address)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NodeTxResponse{Success: true, Address: req.Address, TxHash: tx})
}

// Check handles GET /nodes/check/{address}.
func (h *NodeHandler) Check(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	approved, err := h.svc.IsApproved(r.Context(), address)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NodeCheckResponse{Address: address, Approved: approved})
}

// Admin handles GET /nodes/admin.
func (h *NodeHandler) Admin(w http.ResponseWriter, r *http.Request) {
	addr, err := h.svc.Admin(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AddressResponse{Address: addr})
}
