package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/model"
)

const (
	// DefaultBatchSize is the number of claims to process per poll.
	DefaultBatchSize = 20
	// DefaultPollInterval is the time between polling for due claims.
	DefaultPollInterval = 2 * time.Second
	// DefaultMetricsInterval is how often to update queue depth metrics.
	DefaultMetricsInterval = 10 * time.Second
	// DefaultLease is how long a leased claim is hidden from other workers.
	DefaultLease = time.Minute
)

// SettlementStore is the worker's view of the settlement table.
type SettlementStore interface {
	LeaseDueSettlements(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Settlement, error)
	MarkSettlementSettled(ctx context.Context, requestID, txHash string) error
	MarkSettlementFailure(ctx context.Context, requestID, errMsg string, nextRetryAt time.Time, exhausted bool) error
	CountOutstandingSettlements(ctx context.Context) (int64, error)
}

// Ledger reads and settles inference requests.
type Ledger interface {
	RequestStatus(ctx context.Context, requestID *big.Int) (*chain.InferenceRequest, error)
	Commit(ctx context.Context, requestID *big.Int) (*chain.Receipt, error)
}

// Inferencer performs the work a request paid for before it is settled.
type Inferencer interface {
	Infer(ctx context.Context, s *model.Settlement) error
}

// DelayInferencer stands in for real inference by waiting a fixed delay.
type DelayInferencer struct {
	Delay time.Duration
}

// Infer waits for the delay or until ctx is done.
func (d DelayInferencer) Infer(ctx context.Context, _ *model.Settlement) error {
	if d.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(d.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WorkerConfig tunes the settlement worker. Zero values take defaults.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
}

// Worker settles claimed requests.
type Worker struct {
	ledger          Ledger
	store           SettlementStore
	inferencer      Inferencer
	logger          *slog.Logger
	metrics         metrics.Recorder
	batchSize       int
	pollInterval    time.Duration
	lease           time.Duration
	metricsInterval time.Duration
	lastMetrics     time.Time
	now             func() time.Time
	started         bool
}

// NewWorker creates a settlement worker.
func NewWorker(ledger Ledger, store SettlementStore, inferencer Inferencer, cfg WorkerConfig, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if inferencer == nil {
		inferencer = DelayInferencer{}
	}
	w := &Worker{
		ledger:          ledger,
		store:           store,
		inferencer:      inferencer,
		logger:          logger.With("component", "settlement.worker"),
		metrics:         recorder,
		batchSize:       DefaultBatchSize,
		pollInterval:    DefaultPollInterval,
		lease:           DefaultLease,
		metricsInterval: DefaultMetricsInterval,
		now:             time.Now,
	}
	if cfg.BatchSize > 0 {
		w.batchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		w.pollInterval = cfg.PollInterval
	}
	if cfg.Lease > 0 {
		w.lease = cfg.Lease
	}
	return w
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("settlement worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("settlement worker stopping")
			return nil
		case <-ticker.C:
			if err := w.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// processOnce leases and settles a batch of due claims.
func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	claims, err := w.store.LeaseDueSettlements(ctx, w.now(), w.lease, w.batchSize)
	if err != nil {
		return fmt.Errorf("lease due settlements: %w", err)
	}

	for _, claim := range claims {
		if err := w.settle(ctx, claim); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("settlement attempt failed",
				"request_id", claim.RequestID,
				"error", err,
			)
		}
	}
	return nil
}

// settle runs one attempt for a claim.
func (w *Worker) settle(ctx context.Context, claim *model.Settlement) error {
	requestID, err := chain.ParseID(claim.RequestID)
	if err != nil {
		return w.store.MarkSettlementFailure(ctx, claim.RequestID, "invalid request id", w.now(), true)
	}

	req, err := w.ledger.RequestStatus(ctx, requestID)
	if err != nil {
		return w.handleFailure(ctx, claim, fmt.Errorf("read request: %w", err))
	}
	if req.Fulfilled {
		return w.markSettled(ctx, claim, "")
	}

	if err := w.inferencer.Infer(ctx, claim); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.handleFailure(ctx, claim, fmt.Errorf("inference: %w", err))
	}

	receipt, err := w.ledger.Commit(ctx, requestID)
	if err != nil {
		if rev, ok := chain.IsRevert(err); ok && rev.Reason == "Already fulfilled" {
			return w.markSettled(ctx, claim, "")
		}
		return w.handleFailure(ctx, claim, err)
	}
	return w.markSettled(ctx, claim, receipt.TxHash.Hex())
}

func (w *Worker) markSettled(ctx context.Context, claim *model.Settlement, txHash string) error {
	if err := w.store.MarkSettlementSettled(ctx, claim.RequestID, txHash); err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	w.metrics.IncSettlement(metrics.SettlementSettled)
	w.logger.Info("request settled",
		"request_id", claim.RequestID,
		"source", string(claim.Source),
		"attempt", claim.AttemptCount+1,
		"tx_hash", txHash,
	)
	return nil
}

// handleFailure records a failed attempt and schedules the next one.
func (w *Worker) handleFailure(ctx context.Context, claim *model.Settlement, cause error) error {
	nextAttempt := claim.AttemptCount + 1
	exhausted := IsExhausted(nextAttempt, claim.MaxAttempts)

	status := metrics.SettlementFailed
	if exhausted {
		status = metrics.SettlementExhausted
	}

	w.logger.Warn("settlement failed",
		"request_id", claim.RequestID,
		"attempt", nextAttempt,
		"exhausted", exhausted,
		"error", cause,
	)
	w.metrics.IncSettlement(status)

	nextRetryAt := w.now().Add(NextRetryDelay(claim.AttemptCount))
	return w.store.MarkSettlementFailure(ctx, claim.RequestID, cause.Error(), nextRetryAt, exhausted)
}

// maybeUpdateQueueDepth periodically updates the queue depth metric.
func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.now().Sub(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = w.now()

	depth, err := w.store.CountOutstandingSettlements(ctx)
	if err != nil {
		w.logger.Warn("failed to get queue depth", "error", err)
		return
	}
	w.metrics.SetSettlementQueueDepth(depth)
}
