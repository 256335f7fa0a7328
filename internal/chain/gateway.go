// Package chain is the gateway to the ModelRegistry, InferenceManager and
// NodeRegistry contracts. Payments are two-phase: Reserve escrows funds through
// requestInference and Commit releases them through submitResult.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Common gateway errors.
var (
	ErrModelNotOnChain = errors.New("model not found on chain")
	ErrRequestNotFound = errors.New("inference request not found on chain")
	ErrInvalidID       = errors.New("invalid on-chain id")
	ErrDisabled        = errors.New("blockchain integration disabled")
	ErrMissingKey      = errors.New("signing key not configured")
)

// RevertError carries the revert reason of a failed contract call.
type RevertError struct {
	Method string
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s reverted", e.Method)
	}
	return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
}

// IsRevert reports whether err is a contract revert and returns it.
func IsRevert(err error) (*RevertError, bool) {
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev, true
	}
	return nil, false
}

// Reservation is the result of escrowing a payment.
type Reservation struct {
	RequestID *big.Int
	TxHash    common.Hash
	Value     *big.Int
	Minutes   int64
	ExpiresAt time.Time
}

// Receipt is the result of committing (settling) a reservation.
type Receipt struct {
	RequestID *big.Int
	TxHash    common.Hash
}

// OnChainModel is a ModelRegistry record.
type OnChainModel struct {
	ID             *big.Int
	Owner          common.Address
	ContentPointer string
	PricePerMinute *big.Int
	Active         bool
}

// InferenceRequest is an InferenceManager request record.
type InferenceRequest struct {
	RequestID  *big.Int
	User       common.Address
	ModelID    *big.Int
	PaidAmount *big.Int
	ExpiresAt  time.Time
	Fulfilled  bool
}

// PaymentRequested is a decoded InferenceRequested event.
type PaymentRequested struct {
	RequestID   *big.Int
	User        common.Address
	ModelID     *big.Int
	Minutes     *big.Int
	ExpiresAt   time.Time
	TxHash      common.Hash
	BlockNumber uint64
}

// UnsignedTx is a populated transaction for wallet-side signing.
type UnsignedTx struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Payments is the two-phase payment surface.
type Payments interface {
	ResolvePrice(ctx context.Context, modelID *big.Int) (*big.Int, error)
	Reserve(ctx context.Context, modelID *big.Int, minutes int64, value *big.Int) (*Reservation, error)
	Commit(ctx context.Context, requestID *big.Int) (*Receipt, error)
}

// Registry is the ModelRegistry surface.
type Registry interface {
	RegisterModel(ctx context.Context, contentPointer string, price *big.Int) (*big.Int, common.Hash, error)
	UpdatePrice(ctx context.Context, modelID, price *big.Int) (common.Hash, error)
	GetModel(ctx context.Context, modelID *big.Int) (*OnChainModel, error)
	NextModelID(ctx context.Context) (*big.Int, error)
}

// Inference is the read side of InferenceManager plus quoting.
type Inference interface {
	RequestStatus(ctx context.Context, requestID *big.Int) (*InferenceRequest, error)
	NextRequestID(ctx context.Context) (*big.Int, error)
	CommissionAccount(ctx context.Context) (common.Address, error)
	QuoteInference(ctx context.Context, modelID *big.Int, minutes int64) (*UnsignedTx, *big.Int, error)
}

// Nodes is the NodeRegistry surface.
type Nodes interface {
	AddNode(ctx context.Context, node common.Address) (common.Hash, error)
	RemoveNode(ctx context.Context, node common.Address) (common.Hash, error)
	IsApproved(ctx context.Context, node common.Address) (bool, error)
	Admin(ctx context.Context) (common.Address, error)
}

// Events delivers InferenceRequested notifications.
type Events interface {
	SubscribePaymentRequests(ctx context.Context, sink chan<- *PaymentRequested) (event.Subscription, error)
}

// Gateway is the full contract surface.
type Gateway interface {
	Payments
	Registry
	Inference
	Nodes
	Events
}
