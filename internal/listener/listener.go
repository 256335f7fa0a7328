// Package listener turns InferenceRequested events into settlement claims and
// settles due claims against the InferenceManager.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/model"
)

var errSubscriptionClosed = errors.New("subscription closed")

// ClaimStore records settlement claims. ClaimSettlement is insert-if-absent.
type ClaimStore interface {
	ClaimSettlement(ctx context.Context, s *model.Settlement) (bool, error)
}

// Listener subscribes to InferenceRequested and claims each request for settlement.
type Listener struct {
	events      chain.Events
	store       ClaimStore
	maxAttempts int
	buffer      int
	metrics     metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
	backoff     func(failures int) time.Duration
	started     bool
}

// NewListener creates an event listener.
func NewListener(events chain.Events, store ClaimStore, maxAttempts int, logger *slog.Logger, recorder metrics.Recorder) *Listener {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Listener{
		events:      events,
		store:       store,
		maxAttempts: maxAttempts,
		buffer:      64,
		metrics:     recorder,
		logger:      logger.With("component", "listener"),
		now:         time.Now,
		backoff:     resubscribeDelay,
	}
}

// Run consumes events until ctx is cancelled, resubscribing with backoff
// whenever the subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	if l.started {
		return errors.New("listener already started")
	}
	l.started = true

	l.logger.Info("event listener started")

	failures := 0
	for {
		received, err := l.consume(ctx)
		if ctx.Err() != nil {
			l.logger.Info("event listener stopping")
			return nil
		}
		if received > 0 {
			failures = 0
		}
		failures++

		delay := l.backoff(failures)
		l.logger.Warn("event subscription lost, resubscribing",
			"error", err,
			"attempt", failures,
			"retry_in", delay.String(),
		)

		select {
		case <-ctx.Done():
			l.logger.Info("event listener stopping")
			return nil
		case <-time.After(delay):
		}
	}
}

// consume runs one subscription and returns the number of events handled.
func (l *Listener) consume(ctx context.Context) (int, error) {
	sink := make(chan *chain.PaymentRequested, l.buffer)
	sub, err := l.events.SubscribePaymentRequests(ctx, sink)
	if err != nil {
		return 0, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	l.logger.Info("subscribed to InferenceRequested")

	received := 0
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				return received, errSubscriptionClosed
			}
			return received, err
		case ev := <-sink:
			received++
			l.handle(ctx, ev)
		}
	}
}

// handle claims one request. Requests claimed earlier by any flow are dropped.
func (l *Listener) handle(ctx context.Context, ev *chain.PaymentRequested) {
	if ev == nil || ev.RequestID == nil {
		return
	}
	requestID := ev.RequestID.String()
	now := l.now()

	claimed, err := l.store.ClaimSettlement(ctx, &model.Settlement{
		RequestID:   requestID,
		Source:      model.SourceEvent,
		MaxAttempts: l.maxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
	})
	if err != nil {
		l.logger.Error("failed to claim settlement",
			"request_id", requestID,
			"tx_hash", ev.TxHash.Hex(),
			"error", err,
		)
		return
	}
	if !claimed {
		l.logger.Debug("request already claimed", "request_id", requestID)
		l.metrics.IncSettlement(metrics.SettlementDuplicate)
		return
	}

	l.logger.Info("inference request claimed",
		"request_id", requestID,
		"model_id", ev.ModelID.String(),
		"user", ev.User.Hex(),
		"block", ev.BlockNumber,
	)
}
