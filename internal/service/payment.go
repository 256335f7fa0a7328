package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/config"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/model"
)

// PaymentConfig controls how charges are taken.
type PaymentConfig struct {
	Enabled       bool
	FailClosed    bool
	Mode          string
	CommissionBps int64
	MaxAttempts   int
	// SyncGrace delays worker pickup of a claim the caller is about to commit inline.
	SyncGrace time.Duration
}

// PaymentConfigFromConfig derives payment settings from application config.
func PaymentConfigFromConfig(cfg *config.Config) PaymentConfig {
	return PaymentConfig{
		Enabled:       cfg.PaymentsEnabled,
		FailClosed:    cfg.FailClosed(),
		Mode:          cfg.SettlementMode,
		CommissionBps: cfg.CommissionBps,
		MaxAttempts:   cfg.SettlementMaxAttempts,
		SyncGrace:     2 * cfg.ChainCallTimeout,
	}
}

// ChargeInput describes one charge.
type ChargeInput struct {
	Model   *model.Model
	Minutes int64
	Source  model.SettlementSource
	// Degrade overrides the fail-closed policy. Used by per-message metering.
	Degrade bool
}

// Charge is the outcome of a charge attempt.
type Charge struct {
	Processed      bool
	RequestID      string
	ReserveTxHash  string
	CommitTxHash   string
	Settlement     string
	PricePerMinute *big.Int
	TotalCost      *big.Int
	Minutes        int64
	OwnerShare     *big.Int
	PlatformShare  *big.Int
	CommissionBps  int64
	// Failure is the ledger error swallowed under the degrade policy.
	Failure error
}

// PaymentService orchestrates the two-phase reserve/commit payment and records
// a settlement claim so every request is settled at most once.
type PaymentService struct {
	payments    chain.Payments
	settlements SettlementStore
	cfg         PaymentConfig
	metrics     metrics.Recorder
	logger      *slog.Logger
	now         Clock
}

// NewPaymentService creates a PaymentService. payments may be nil when the chain is disabled.
func NewPaymentService(payments chain.Payments, settlements SettlementStore, cfg PaymentConfig, recorder metrics.Recorder, logger *slog.Logger) *PaymentService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	return &PaymentService{
		payments:    payments,
		settlements: settlements,
		cfg:         cfg,
		metrics:     recorder,
		logger:      logger.With("component", "payments"),
		now:         systemClock,
	}
}

// SetClock overrides the time source.
func (s *PaymentService) SetClock(now Clock) { s.now = now }

// Enabled reports whether charges reach the ledger.
func (s *PaymentService) Enabled() bool {
	return s.cfg.Enabled && s.payments != nil
}

// CommissionBps is the platform share used for breakdowns.
func (s *PaymentService) CommissionBps() int64 { return s.cfg.CommissionBps }

// Charge takes payment for in.Minutes of model time. Models without a chain id
// and disabled payments are not charged. Ledger failures degrade to an
// unprocessed Charge unless the fail-closed policy applies, in which case
// ErrPaymentRequired is returned.
func (s *PaymentService) Charge(ctx context.Context, in ChargeInput) (*Charge, error) {
	out := &Charge{Minutes: in.Minutes, CommissionBps: s.cfg.CommissionBps}

	if !s.Enabled() || !in.Model.OnChain() {
		s.metrics.IncPayment(metrics.PaymentSkipped)
		return out, nil
	}

	chainID, err := chain.ParseID(*in.Model.ChainModelID)
	if err != nil {
		return s.fail(out, in, err)
	}

	price, err := s.payments.ResolvePrice(ctx, chainID)
	if err != nil {
		return s.fail(out, in, err)
	}
	out.PricePerMinute = price
	out.TotalCost = chain.TotalCost(price, in.Minutes)
	out.OwnerShare, out.PlatformShare = chain.Split(out.TotalCost, s.cfg.CommissionBps)

	res, err := s.payments.Reserve(ctx, chainID, in.Minutes, out.TotalCost)
	if err != nil {
		return s.fail(out, in, err)
	}
	out.Processed = true
	out.RequestID = res.RequestID.String()
	out.ReserveTxHash = res.TxHash.Hex()

	now := s.now()
	nextRetry := now
	if s.cfg.Mode == config.SettlementSync {
		nextRetry = now.Add(s.cfg.SyncGrace)
	}
	claimed, err := s.settlements.ClaimSettlement(ctx, &model.Settlement{
		RequestID:   out.RequestID,
		ModelID:     ptr(in.Model.ID),
		Source:      in.Source,
		MaxAttempts: s.cfg.MaxAttempts,
		NextRetryAt: nextRetry,
		CreatedAt:   now,
	})
	if err != nil {
		// The listener claims the request from its event, so settlement still happens.
		s.logger.Warn("settlement claim not recorded", "request_id", out.RequestID, "error", err)
	}

	if s.cfg.Mode != config.SettlementSync || (err == nil && !claimed) {
		out.Settlement = string(model.SettlementPending)
		s.metrics.IncPayment(metrics.PaymentPending)
		return out, nil
	}

	receipt, err := s.payments.Commit(ctx, res.RequestID)
	if err != nil {
		s.logger.Warn("inline settlement failed, deferring to worker",
			"request_id", out.RequestID,
			"error", err,
		)
		if markErr := s.settlements.MarkSettlementFailure(ctx, out.RequestID, err.Error(), s.now(), false); markErr != nil {
			s.logger.Error("failed to record settlement failure", "request_id", out.RequestID, "error", markErr)
		}
		out.Settlement = string(model.SettlementPending)
		s.metrics.IncPayment(metrics.PaymentPending)
		return out, nil
	}

	out.CommitTxHash = receipt.TxHash.Hex()
	out.Settlement = string(model.SettlementSettled)
	if err := s.settlements.MarkSettlementSettled(ctx, out.RequestID, out.CommitTxHash); err != nil {
		s.logger.Error("failed to record settlement", "request_id", out.RequestID, "error", err)
	}
	s.metrics.IncPayment(metrics.PaymentSettled)
	return out, nil
}

// LinkRental records which rental a claimed request paid for.
func (s *PaymentService) LinkRental(ctx context.Context, requestID, rentalID string) {
	if requestID == "" {
		return
	}
	if err := s.settlements.AttachSettlementRental(ctx, requestID, rentalID); err != nil {
		s.logger.Warn("failed to link settlement to rental", "request_id", requestID, "error", err)
	}
}

func (s *PaymentService) fail(out *Charge, in ChargeInput, err error) (*Charge, error) {
	s.metrics.IncPayment(metrics.PaymentFailed)
	if s.cfg.FailClosed && !in.Degrade {
		return nil, fmt.Errorf("%w: %w", ErrPaymentRequired, err)
	}
	s.logger.Warn("payment failed, continuing without payment",
		"model_id", in.Model.ID,
		"source", string(in.Source),
		"error", err,
	)
	out.Processed = false
	out.RequestID = ""
	out.Failure = err
	return out, nil
}
