package model

import "time"

// SettlementStatus is the lifecycle state of a settlement claim.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementSettled   SettlementStatus = "settled"
	SettlementFailed    SettlementStatus = "failed"
	SettlementExhausted SettlementStatus = "exhausted"
)

// SettlementSource records which flow claimed the request.
type SettlementSource string

const (
	SourceIssuance SettlementSource = "issuance"
	SourceQuery    SettlementSource = "query"
	SourceEvent    SettlementSource = "event"
	SourceManual   SettlementSource = "manual"
)

// Settlement is the idempotency record for one on-chain inference request.
// The request id is the primary key, so a request is settled at most once
// no matter how many flows observe it.
type Settlement struct {
	RequestID    string           `json:"requestId"`
	ModelID      *string          `json:"modelId,omitempty"`
	RentalID     *string          `json:"rentalId,omitempty"`
	Source       SettlementSource `json:"source"`
	Status       SettlementStatus `json:"status"`
	AttemptCount int              `json:"attemptCount"`
	MaxAttempts  int              `json:"maxAttempts"`
	NextRetryAt  time.Time        `json:"nextRetryAt"`
	LastError    *string          `json:"lastError,omitempty"`
	TxHash       *string          `json:"txHash,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	SettledAt    *time.Time       `json:"settledAt,omitempty"`
}

// IsTerminal reports whether no further attempts will be made.
func (s *Settlement) IsTerminal() bool {
	return s.Status == SettlementSettled || s.Status == SettlementExhausted
}
