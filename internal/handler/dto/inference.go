package dto

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/service"
)

// QuoteRequest represents the request body for pricing an inference request.
type QuoteRequest struct {
	ModelID         FlexString `json:"modelId"`
	Wallet          string     `json:"wallet,omitempty"`
	DurationMinutes int64      `json:"durationMinutes"`
}

// UnsignedTxResponse is a transaction for the caller's wallet to sign.
type UnsignedTxResponse struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// QuoteResponse is a priced inference request.
type QuoteResponse struct {
	Transaction     UnsignedTxResponse `json:"transaction"`
	ModelID         string             `json:"modelId"`
	DurationMinutes int64              `json:"durationMinutes"`
	PricePerMinute  string             `json:"pricePerMinute"`
	TotalCost       string             `json:"totalCost"`
	TotalCostWei    string             `json:"totalCostWei"`
}

// ToQuoteResponse converts a quote.
func ToQuoteResponse(q *service.Quote) QuoteResponse {
	return QuoteResponse{
		Transaction: UnsignedTxResponse{
			To:    q.Tx.To.Hex(),
			Data:  hexutil.Encode(q.Tx.Data),
			Value: q.Tx.Value.String(),
		},
		ModelID:         q.ChainModelID,
		DurationMinutes: q.Minutes,
		PricePerMinute:  q.PricePerMinute.String(),
		TotalCost:       chain.FormatEther(q.TotalCost),
		TotalCostWei:    q.TotalCost.String(),
	}
}

// RequestStatusResponse is an on-chain request plus its local settlement.
type RequestStatusResponse struct {
	RequestID  string            `json:"requestId"`
	User       string            `json:"user"`
	ModelID    string            `json:"modelId"`
	PaidAmount string            `json:"paidAmount"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Fulfilled  bool              `json:"fulfilled"`
	Settlement *model.Settlement `json:"settlement,omitempty"`
}

// ToRequestStatusResponse converts a request status.
func ToRequestStatusResponse(s *service.RequestStatus) RequestStatusResponse {
	return RequestStatusResponse{
		RequestID:  s.Request.RequestID.String(),
		User:       s.Request.User.Hex(),
		ModelID:    s.Request.ModelID.String(),
		PaidAmount: s.Request.PaidAmount.String(),
		ExpiresAt:  s.Request.ExpiresAt,
		Fulfilled:  s.Request.Fulfilled,
		Settlement: s.Settlement,
	}
}

// SubmitRequest represents the request body for settling a request.
type SubmitRequest struct {
	RequestID FlexString `json:"requestId"`
}

// SubmitResponse reports a manual settlement.
type SubmitResponse struct {
	RequestID      string `json:"requestId"`
	Settled        bool   `json:"settled"`
	AlreadySettled bool   `json:"alreadySettled"`
	TxHash         string `json:"txHash,omitempty"`
}

// ToSubmitResponse converts a settlement result.
func ToSubmitResponse(r *service.SubmitResult) SubmitResponse {
	return SubmitResponse{
		RequestID:      r.RequestID,
		Settled:        r.Settled,
		AlreadySettled: r.AlreadySettled,
		TxHash:         r.TxHash,
	}
}

// NextRequestIDResponse carries the next request id.
type NextRequestIDResponse struct {
	NextRequestID string `json:"nextRequestId"`
}

// AddressResponse carries a single contract-reported address.
type AddressResponse struct {
	Address string `json:"address"`
}

// NodeRequest represents the request body for node approval changes.
type NodeRequest struct {
	Address string `json:"address"`
}

// NodeTxResponse confirms a node approval change.
type NodeTxResponse struct {
	Success bool   `json:"success"`
	Address string `json:"address"`
	TxHash  string `json:"txHash"`
}

// NodeCheckResponse reports a node's approval.
type NodeCheckResponse struct {
	Address  string `json:"address"`
	Approved bool   `json:"approved"`
}

// UploadResponse is a file pinned to IPFS.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Hash     string `json:"hash"`
	Path     string `json:"path"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}
