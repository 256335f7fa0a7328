package handler

import (
	"fmt"
	"net/http"

	"github.com/inferchain/inferchain/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "inferchain_api_keys_issued_total{paid=\"true\"} %d\n", snap.APIKeysIssuedPaid)
	writeMetric(w, "inferchain_api_keys_issued_total{paid=\"false\"} %d\n", snap.APIKeysIssuedUnpaid)

	writeMetric(w, "inferchain_api_key_validations_total{result=\"valid\"} %d\n", snap.ValidationsValid)
	writeMetric(w, "inferchain_api_key_validations_total{result=\"not_found\"} %d\n", snap.ValidationsNotFound)
	writeMetric(w, "inferchain_api_key_validations_total{result=\"expired\"} %d\n", snap.ValidationsExpired)
	writeMetric(w, "inferchain_api_key_validations_total{result=\"revoked\"} %d\n", snap.ValidationsRevoked)

	writeMetric(w, "inferchain_questions_answered_total %d\n", snap.QuestionsAnswered)

	writeMetric(w, "inferchain_payments_total{outcome=\"settled\"} %d\n", snap.PaymentsSettled)
	writeMetric(w, "inferchain_payments_total{outcome=\"pending\"} %d\n", snap.PaymentsPending)
	writeMetric(w, "inferchain_payments_total{outcome=\"failed\"} %d\n", snap.PaymentsFailed)
	writeMetric(w, "inferchain_payments_total{outcome=\"skipped\"} %d\n", snap.PaymentsSkipped)

	writeMetric(w, "inferchain_settlements_total{outcome=\"settled\"} %d\n", snap.SettlementsSettled)
	writeMetric(w, "inferchain_settlements_total{outcome=\"failed\"} %d\n", snap.SettlementsFailed)
	writeMetric(w, "inferchain_settlements_total{outcome=\"exhausted\"} %d\n", snap.SettlementsExhausted)
	writeMetric(w, "inferchain_settlements_total{outcome=\"duplicate\"} %d\n", snap.SettlementsDuplicate)
	writeMetric(w, "inferchain_settlement_queue_depth %d\n", snap.SettlementQueueDepth)

	writeMetric(w, "inferchain_chain_call_duration_seconds_count %d\n", snap.ChainCallCount)
	writeMetric(w, "inferchain_chain_call_duration_seconds_sum %.6f\n", float64(snap.ChainCallTotalNs)/1e9)
	writeMetric(w, "inferchain_chain_call_errors_total %d\n", snap.ChainCallErrors)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
