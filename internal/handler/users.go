package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/service"
)

// UserHandler handles wallet users, email accounts and sessions.
type UserHandler struct {
	errorMapper
	svc *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		errorMapper: errorMapper{logger: logger},
		svc:         svc,
	}
}

// RegisterWallet handles POST /users/register.
func (h *UserHandler) RegisterWallet(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterWalletRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, created, err := h.svc.RegisterWallet(r.Context(), req.Wallet, req.Roles)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RegisterWalletResponse{User: user, Created: created})
}

// GetByWallet handles GET /users/{wallet}.
func (h *UserHandler) GetByWallet(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetByWallet(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Register handles POST /api/auth/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.AccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.Register(r.Context(), service.AccountInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Role:     req.Role,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToSessionResponse(session))
}

// Login handles POST /api/auth/login.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSessionResponse(session))
}

// Me handles GET /api/auth/me. SessionAuth guarantees a session.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	user, err := h.svc.GetByID(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Stats handles GET /api/user/{email}.
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	stats, err := h.svc.Stats(r.Context(), user)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.UserStatsResponse{User: user, Stats: stats})
}

// CreatorModels handles GET /api/creator/{email}/models.
func (h *UserHandler) CreatorModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.CreatorModels(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(models))
}
