package dto

import (
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/service"
)

// RegisterModelRequest represents the request body for registering a model.
type RegisterModelRequest struct {
	Wallet         string     `json:"wallet,omitempty"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Category       string     `json:"category,omitempty"`
	IPFSCid        string     `json:"ipfsCid"`
	PricePerMinute FlexString `json:"pricePerMinute"`
}

// ToInput converts the request. wallet overrides the body when the caller is authenticated.
func (r RegisterModelRequest) ToInput(wallet string) service.RegisterModelInput {
	if wallet == "" {
		wallet = r.Wallet
	}
	return service.RegisterModelInput{
		Wallet:         wallet,
		Name:           r.Name,
		Description:    r.Description,
		Category:       r.Category,
		ContentPointer: r.IPFSCid,
		PricePerMinute: r.PricePerMinute.String(),
	}
}

// RegisterModelResponse is a registered model plus its registry transaction.
type RegisterModelResponse struct {
	*model.Model
	TxHash string `json:"txHash,omitempty"`
}

// UpdatePriceRequest represents the request body for a price change.
type UpdatePriceRequest struct {
	NewPricePerMinute FlexString `json:"newPricePerMinute"`
	Wallet            string     `json:"wallet"`
}

// UpdatePriceResponse confirms a price change.
type UpdatePriceResponse struct {
	Success        bool    `json:"success"`
	TxHash         string  `json:"txHash,omitempty"`
	ModelID        string  `json:"modelId"`
	ChainModelID   *string `json:"chainModelId,omitempty"`
	PricePerMinute string  `json:"pricePerMinute"`
}

// ToUpdatePriceResponse converts a price update.
func ToUpdatePriceResponse(u *service.PriceUpdate) UpdatePriceResponse {
	return UpdatePriceResponse{
		Success:        true,
		TxHash:         u.TxHash,
		ModelID:        u.Model.ID,
		ChainModelID:   u.Model.ChainModelID,
		PricePerMinute: u.Model.PricePerMinute,
	}
}

// NextIDResponse carries the next id a contract will assign.
type NextIDResponse struct {
	NextID string `json:"nextId"`
}
