package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	APIKeysIssuedPaid   uint64
	APIKeysIssuedUnpaid uint64

	ValidationsValid    uint64
	ValidationsNotFound uint64
	ValidationsExpired  uint64
	ValidationsRevoked  uint64

	QuestionsAnswered uint64

	PaymentsSettled uint64
	PaymentsPending uint64
	PaymentsFailed  uint64
	PaymentsSkipped uint64

	SettlementsSettled   uint64
	SettlementsFailed    uint64
	SettlementsExhausted uint64
	SettlementsDuplicate uint64
	SettlementQueueDepth int64

	ChainCallCount   uint64
	ChainCallErrors  uint64
	ChainCallTotalNs int64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	s := &m.snap
	return Snapshot{
		APIKeysIssuedPaid:    atomic.LoadUint64(&s.APIKeysIssuedPaid),
		APIKeysIssuedUnpaid:  atomic.LoadUint64(&s.APIKeysIssuedUnpaid),
		ValidationsValid:     atomic.LoadUint64(&s.ValidationsValid),
		ValidationsNotFound:  atomic.LoadUint64(&s.ValidationsNotFound),
		ValidationsExpired:   atomic.LoadUint64(&s.ValidationsExpired),
		ValidationsRevoked:   atomic.LoadUint64(&s.ValidationsRevoked),
		QuestionsAnswered:    atomic.LoadUint64(&s.QuestionsAnswered),
		PaymentsSettled:      atomic.LoadUint64(&s.PaymentsSettled),
		PaymentsPending:      atomic.LoadUint64(&s.PaymentsPending),
		PaymentsFailed:       atomic.LoadUint64(&s.PaymentsFailed),
		PaymentsSkipped:      atomic.LoadUint64(&s.PaymentsSkipped),
		SettlementsSettled:   atomic.LoadUint64(&s.SettlementsSettled),
		SettlementsFailed:    atomic.LoadUint64(&s.SettlementsFailed),
		SettlementsExhausted: atomic.LoadUint64(&s.SettlementsExhausted),
		SettlementsDuplicate: atomic.LoadUint64(&s.SettlementsDuplicate),
		SettlementQueueDepth: atomic.LoadInt64(&s.SettlementQueueDepth),
		ChainCallCount:       atomic.LoadUint64(&s.ChainCallCount),
		ChainCallErrors:      atomic.LoadUint64(&s.ChainCallErrors),
		ChainCallTotalNs:     atomic.LoadInt64(&s.ChainCallTotalNs),
	}
}

// IncAPIKeyIssued counts issued rentals by payment outcome.
func (m *InMemoryRecorder) IncAPIKeyIssued(paid bool) {
	if paid {
		atomic.AddUint64(&m.snap.APIKeysIssuedPaid, 1)
		return
	}
	atomic.AddUint64(&m.snap.APIKeysIssuedUnpaid, 1)
}

// IncAPIKeyValidation counts validation results.
func (m *InMemoryRecorder) IncAPIKeyValidation(result string) {
	switch result {
	case ValidationValid:
		atomic.AddUint64(&m.snap.ValidationsValid, 1)
	case ValidationNotFound:
		atomic.AddUint64(&m.snap.ValidationsNotFound, 1)
	case ValidationExpired:
		atomic.AddUint64(&m.snap.ValidationsExpired, 1)
	case ValidationRevoked:
		atomic.AddUint64(&m.snap.ValidationsRevoked, 1)
	}
}

// IncQuestionAnswered counts answered questions.
func (m *InMemoryRecorder) IncQuestionAnswered() {
	atomic.AddUint64(&m.snap.QuestionsAnswered, 1)
}

// IncPayment counts payment attempts by outcome.
func (m *InMemoryRecorder) IncPayment(outcome string) {
	switch outcome {
	case PaymentSettled:
		atomic.AddUint64(&m.snap.PaymentsSettled, 1)
	case PaymentPending:
		atomic.AddUint64(&m.snap.PaymentsPending, 1)
	case PaymentFailed:
		atomic.AddUint64(&m.snap.PaymentsFailed, 1)
	case PaymentSkipped:
		atomic.AddUint64(&m.snap.PaymentsSkipped, 1)
	}
}

// IncSettlement counts settlement worker outcomes.
func (m *InMemoryRecorder) IncSettlement(outcome string) {
	switch outcome {
	case SettlementSettled:
		atomic.AddUint64(&m.snap.SettlementsSettled, 1)
	case SettlementFailed:
		atomic.AddUint64(&m.snap.SettlementsFailed, 1)
	case SettlementExhausted:
		atomic.AddUint64(&m.snap.SettlementsExhausted, 1)
	case SettlementDuplicate:
		atomic.AddUint64(&m.snap.SettlementsDuplicate, 1)
	}
}

// SetSettlementQueueDepth records outstanding settlement claims.
func (m *InMemoryRecorder) SetSettlementQueueDepth(depth int64) {
	atomic.StoreInt64(&m.snap.SettlementQueueDepth, depth)
}

// ObserveChainCall records a chain gateway round-trip.
func (m *InMemoryRecorder) ObserveChainCall(duration time.Duration, failed bool) {
	atomic.AddUint64(&m.snap.ChainCallCount, 1)
	atomic.AddInt64(&m.snap.ChainCallTotalNs, duration.Nanoseconds())
	if failed {
		atomic.AddUint64(&m.snap.ChainCallErrors, 1)
	}
}
