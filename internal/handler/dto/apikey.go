package dto

import (
	"time"

	"github.com/inferchain/inferchain/internal/service"
)

// GenerateKeyRequest represents the request body for issuing a rental key.
type GenerateKeyRequest struct {
	Wallet        string     `json:"wallet,omitempty"`
	Email         string     `json:"email,omitempty"`
	ModelID       FlexString `json:"modelId"`
	DurationHours *int       `json:"durationHours,omitempty"`
}

// GenerateKeyResponse represents an issued rental key.
type GenerateKeyResponse struct {
	APIKey           string             `json:"apiKey"`
	ExpiresAt        time.Time          `json:"expiresAt"`
	ModelID          string             `json:"modelId"`
	ChainModelID     *string            `json:"chainModelId,omitempty"`
	DurationHours    int                `json:"durationHours"`
	RequestID        string             `json:"requestId,omitempty"`
	PaymentProcessed bool               `json:"paymentProcessed"`
	PaymentDetails   *service.Breakdown `json:"paymentDetails,omitempty"`
	AccountCreated   bool               `json:"accountCreated"`
}

// ToGenerateKeyResponse converts an issued key.
func ToGenerateKeyResponse(k *service.IssuedKey) GenerateKeyResponse {
	resp := GenerateKeyResponse{
		APIKey:           k.APIKey,
		ExpiresAt:        k.Rental.ExpiresAt,
		ModelID:          k.Model.ID,
		ChainModelID:     k.Model.ChainModelID,
		DurationHours:    k.DurationHours,
		PaymentProcessed: k.Rental.PaymentProcessed,
		PaymentDetails:   service.NewBreakdown(k.Charge, k.DurationHours),
		AccountCreated:   k.AccountCreated,
	}
	if k.Rental.RequestID != nil {
		resp.RequestID = *k.Rental.RequestID
	}
	return resp
}

// ListedKeyResponse is one key in a customer's listing.
type ListedKeyResponse struct {
	APIKey           string    `json:"apiKey"`
	ModelID          string    `json:"modelId"`
	ExpiresAt        time.Time `json:"expiresAt"`
	IsExpired        bool      `json:"isExpired"`
	Active           bool      `json:"active"`
	PaymentProcessed bool      `json:"paymentProcessed"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ToListedKeyResponses converts a listing.
func ToListedKeyResponses(keys []service.ListedKey) []ListedKeyResponse {
	out := make([]ListedKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, ListedKeyResponse{
			APIKey:           k.APIKey,
			ModelID:          k.Rental.ModelID,
			ExpiresAt:        k.Rental.ExpiresAt,
			IsExpired:        k.IsExpired,
			Active:           k.Rental.Active,
			PaymentProcessed: k.Rental.PaymentProcessed,
			CreatedAt:        k.Rental.CreatedAt,
		})
	}
	return out
}

// ValidateKeyRequest represents the request body for checking a key.
type ValidateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// ValidateKeyResponse reports whether a key is usable.
type ValidateKeyResponse struct {
	Valid     bool       `json:"valid"`
	ModelID   string     `json:"modelId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// RevokeKeyRequest represents the request body for revoking a key.
type RevokeKeyRequest struct {
	APIKey string `json:"apiKey"`
	Wallet string `json:"wallet,omitempty"`
	Email  string `json:"email,omitempty"`
}

// RevokeKeyResponse confirms a revocation.
type RevokeKeyResponse struct {
	Revoked bool   `json:"revoked"`
	ModelID string `json:"modelId"`
}

// AskRequest represents a question for the Q&A model.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is an answered question.
type AskResponse struct {
	Question         string `json:"question"`
	Answer           string `json:"answer"`
	ModelID          string `json:"modelId"`
	ModelName        string `json:"modelName"`
	Timestamp        string `json:"timestamp"`
	PaymentProcessed bool   `json:"paymentProcessed"`
	RequestID        string `json:"requestId,omitempty"`
}

// ToAskResponse converts a Q&A result.
func ToAskResponse(r *service.QAResult) AskResponse {
	return AskResponse{
		Question:         r.Question,
		Answer:           r.Answer,
		ModelID:          r.ModelID,
		ModelName:        r.ModelName,
		Timestamp:        r.Timestamp.UTC().Format(time.RFC3339),
		PaymentProcessed: r.PaymentProcessed,
		RequestID:        r.RequestID,
	}
}
