package dto

import (
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/service"
)

// RegisterWalletRequest represents the request body for wallet registration.
type RegisterWalletRequest struct {
	Wallet string   `json:"wallet"`
	Roles  []string `json:"roles"`
}

// RegisterWalletResponse is the upserted user.
type RegisterWalletResponse struct {
	User    *model.User `json:"user"`
	Created bool        `json:"created"`
}

// AccountRequest represents the request body for email sign-up.
type AccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest represents the request body for email sign-in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is an authenticated user plus a bearer token.
type SessionResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// ToSessionResponse converts a session.
func ToSessionResponse(s *service.Session) SessionResponse {
	return SessionResponse{User: s.User, Token: s.Token, ExpiresAt: s.ExpiresAt}
}

// UserStatsResponse is a user plus rental statistics.
type UserStatsResponse struct {
	User  *model.User      `json:"user"`
	Stats *model.UserStats `json:"stats"`
}
