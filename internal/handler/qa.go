package handler

import (
	"log/slog"
	"net/http"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/service"
)

// QAHandler serves the keyword Q&A model.
type QAHandler struct {
	errorMapper
	svc *service.QAService
}

// NewQAHandler creates a new QAHandler.
func NewQAHandler(svc *service.QAService, logger *slog.Logger) *QAHandler {
	return &QAHandler{
		errorMapper: errorMapper{logger: logger},
		svc:         svc,
	}
}

// Ask handles POST /qa/ask. The rental is placed in the context by RentalAuth.
func (h *QAHandler) Ask(w http.ResponseWriter, r *http.Request) {
	rental := auth.RentalFromContext(r.Context())
	if rental == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required. Include 'x-api-key' header.")
		return
	}

	var req dto.AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Ask(r.Context(), rental, req.Question)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToAskResponse(result))
}

// Models handles GET /qa/models.
func (h *QAHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.Models(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(models))
}
