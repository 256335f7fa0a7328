// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Payment outcomes.
const (
	PaymentSettled = "settled"
	PaymentPending = "pending"
	PaymentFailed  = "failed"
	PaymentSkipped = "skipped"
)

// Validation results.
const (
	ValidationValid    = "valid"
	ValidationNotFound = "not_found"
	ValidationExpired  = "expired"
	ValidationRevoked  = "revoked"
)

// Settlement outcomes.
const (
	SettlementSettled   = "settled"
	SettlementFailed    = "failed"
	SettlementExhausted = "exhausted"
	SettlementDuplicate = "duplicate"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Rental metrics
	IncAPIKeyIssued(paid bool)
	IncAPIKeyValidation(result string)
	IncQuestionAnswered()

	// Payment and settlement metrics
	IncPayment(outcome string)
	IncSettlement(outcome string)
	SetSettlementQueueDepth(depth int64)

	// Chain gateway metrics
	ObserveChainCall(duration time.Duration, failed bool)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
