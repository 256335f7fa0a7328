package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncAPIKeyIssued is a no-op.
func (n *NoopRecorder) IncAPIKeyIssued(paid bool) {}

// IncAPIKeyValidation is a no-op.
func (n *NoopRecorder) IncAPIKeyValidation(result string) {}

// IncQuestionAnswered is a no-op.
func (n *NoopRecorder) IncQuestionAnswered() {}

// IncPayment is a no-op.
func (n *NoopRecorder) IncPayment(outcome string) {}

// IncSettlement is a no-op.
func (n *NoopRecorder) IncSettlement(outcome string) {}

// SetSettlementQueueDepth is a no-op.
func (n *NoopRecorder) SetSettlementQueueDepth(depth int64) {}

// ObserveChainCall is a no-op.
func (n *NoopRecorder) ObserveChainCall(duration time.Duration, failed bool) {}
