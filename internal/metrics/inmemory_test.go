package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Counters(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncAPIKeyIssued(true)
	m.IncAPIKeyIssued(false)
	m.IncAPIKeyIssued(false)
	m.IncAPIKeyValidation(ValidationExpired)
	m.IncAPIKeyValidation("unknown")
	m.IncPayment(PaymentFailed)
	m.IncSettlement(SettlementDuplicate)
	m.SetSettlementQueueDepth(7)
	m.ObserveChainCall(250*time.Millisecond, true)

	snap := m.Snapshot()
	if snap.APIKeysIssuedPaid != 1 || snap.APIKeysIssuedUnpaid != 2 {
		t.Errorf("issued = %d/%d, want 1/2", snap.APIKeysIssuedPaid, snap.APIKeysIssuedUnpaid)
	}
	if snap.ValidationsExpired != 1 || snap.ValidationsValid != 0 {
		t.Errorf("unexpected validation counters %+v", snap)
	}
	if snap.PaymentsFailed != 1 || snap.SettlementsDuplicate != 1 {
		t.Errorf("unexpected payment/settlement counters %+v", snap)
	}
	if snap.SettlementQueueDepth != 7 {
		t.Errorf("queue depth = %d, want 7", snap.SettlementQueueDepth)
	}
	if snap.ChainCallCount != 1 || snap.ChainCallErrors != 1 || snap.ChainCallTotalNs != int64(250*time.Millisecond) {
		t.Errorf("unexpected chain counters %+v", snap)
	}
}

func TestInMemoryRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncQuestionAnswered()
		}()
	}
	wg.Wait()

	if got := m.Snapshot().QuestionsAnswered; got != 50 {
		t.Errorf("QuestionsAnswered = %d, want 50", got)
	}
}

func TestNoopRecorder_Satisfies(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNoop()
	r.IncPayment(PaymentSettled)
	r.ObserveChainCall(time.Second, false)
}
