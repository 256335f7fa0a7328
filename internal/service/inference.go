package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
)

// ErrRequestNotFound is returned for unknown chain request ids.
var ErrRequestNotFound = errors.New("inference request not found")

// InferenceService exposes the InferenceManager read side, wallet-signed
// request quotes and idempotent manual settlement.
type InferenceService struct {
	gateway     chain.Gateway
	settlements SettlementStore
	catalog     *CatalogService
	maxAttempts int
	logger      *slog.Logger
	now         Clock
}

// NewInferenceService creates an InferenceService. gateway is nil when the chain is disabled.
func NewInferenceService(gateway chain.Gateway, settlements SettlementStore, catalog *CatalogService, maxAttempts int, logger *slog.Logger) *InferenceService {
	return &InferenceService{
		gateway:     gateway,
		settlements: settlements,
		catalog:     catalog,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "inference"),
		now:         systemClock,
	}
}

// Quote is a priced, unsigned requestInference transaction.
type Quote struct {
	Tx             *chain.UnsignedTx
	ChainModelID   string
	Minutes        int64
	PricePerMinute *big.Int
	TotalCost      *big.Int
}

// Quote prices minutes of model time and builds the transaction for the wallet to sign.
func (s *InferenceService) Quote(ctx context.Context, modelRef, wallet string, minutes int64) (*Quote, error) {
	if s.gateway == nil {
		return nil, ErrChainDisabled
	}
	if wallet != "" {
		if _, err := NormalizeWallet(wallet); err != nil {
			return nil, err
		}
	}
	if minutes <= 0 {
		return nil, ErrInvalidMinutes
	}

	chainID, err := s.chainIDFor(ctx, modelRef)
	if err != nil {
		return nil, err
	}

	tx, price, err := s.gateway.QuoteInference(ctx, chainID, minutes)
	if err != nil {
		if errors.Is(err, chain.ErrModelNotOnChain) {
			return nil, fmt.Errorf("%w on blockchain", ErrModelNotFound)
		}
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return &Quote{
		Tx:             tx,
		ChainModelID:   chainID.String(),
		Minutes:        minutes,
		PricePerMinute: price,
		TotalCost:      tx.Value,
	}, nil
}

// chainIDFor accepts a chain id directly or a catalog reference that is mirrored on chain.
func (s *InferenceService) chainIDFor(ctx context.Context, ref string) (*big.Int, error) {
	if id, err := chain.ParseID(ref); err == nil {
		return id, nil
	}
	m, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !m.OnChain() {
		return nil, fmt.Errorf("%w on blockchain", ErrModelNotFound)
	}
	return chain.ParseID(*m.ChainModelID)
}

// RequestStatus is the on-chain record plus the local settlement claim, if any.
type RequestStatus struct {
	Request    *chain.InferenceRequest
	Settlement *model.Settlement
}

// Status reads a request record.
func (s *InferenceService) Status(ctx context.Context, requestID string) (*RequestStatus, error) {
	if s.gateway == nil {
		return nil, ErrChainDisabled
	}
	id, err := chain.ParseID(requestID)
	if err != nil {
		return nil, err
	}

	req, err := s.gateway.RequestStatus(ctx, id)
	if err != nil {
		if errors.Is(err, chain.ErrRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	out := &RequestStatus{Request: req}
	settlement, err := s.settlements.GetSettlement(ctx, id.String())
	switch {
	case err == nil:
		out.Settlement = settlement
	case errors.Is(err, repository.ErrSettlementNotFound):
	default:
		s.logger.Warn("settlement lookup failed", "request_id", id.String(), "error", err)
	}
	return out, nil
}

// SubmitResult reports the outcome of a manual settlement.
type SubmitResult struct {
	RequestID      string
	Settled        bool
	AlreadySettled bool
	TxHash         string
}

// Submit settles a request once. Repeated calls report the earlier settlement.
func (s *InferenceService) Submit(ctx context.Context, requestID string) (*SubmitResult, error) {
	if s.gateway == nil {
		return nil, ErrChainDisabled
	}
	id, err := chain.ParseID(requestID)
	if err != nil {
		return nil, err
	}
	key := id.String()
	out := &SubmitResult{RequestID: key}

	req, err := s.gateway.RequestStatus(ctx, id)
	if err != nil {
		if errors.Is(err, chain.ErrRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	now := s.now()
	if _, err := s.settlements.ClaimSettlement(ctx, &model.Settlement{
		RequestID:   key,
		Source:      model.SourceManual,
		MaxAttempts: s.maxAttempts,
		NextRetryAt: now.Add(time.Minute),
		CreatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("failed to claim settlement: %w", err)
	}

	existing, err := s.settlements.GetSettlement(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read settlement: %w", err)
	}
	if existing.Status == model.SettlementSettled {
		out.AlreadySettled = true
		if existing.TxHash != nil {
			out.TxHash = *existing.TxHash
		}
		return out, nil
	}

	if req.Fulfilled {
		// Settled outside this service.
		if err := s.settlements.MarkSettlementSettled(ctx, key, ""); err != nil {
			return nil, fmt.Errorf("failed to record settlement: %w", err)
		}
		out.AlreadySettled = true
		return out, nil
	}

	receipt, err := s.gateway.Commit(ctx, id)
	if err != nil {
		if markErr := s.settlements.MarkSettlementFailure(ctx, key, err.Error(), s.now(), false); markErr != nil {
			s.logger.Error("failed to record settlement failure", "request_id", key, "error", markErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}

	out.Settled = true
	out.TxHash = receipt.TxHash.Hex()
	if err := s.settlements.MarkSettlementSettled(ctx, key, out.TxHash); err != nil {
		s.logger.Error("failed to record settlement", "request_id", key, "error", err)
	}
	s.logger.Info("request settled manually", "request_id", key, "tx_hash", out.TxHash)
	return out, nil
}

// NextRequestID returns the id the next request will receive.
func (s *InferenceService) NextRequestID(ctx context.Context) (string, error) {
	if s.gateway == nil {
		return "", ErrChainDisabled
	}
	id, err := s.gateway.NextRequestID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return id.String(), nil
}

// CommissionAccount returns the platform commission address.
func (s *InferenceService) CommissionAccount(ctx context.Context) (string, error) {
	if s.gateway == nil {
		return "", ErrChainDisabled
	}
	addr, err := s.gateway.CommissionAccount(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return addr.Hex(), nil
}

// NodeService manages NodeRegistry approvals.
type NodeService struct {
	nodes  chain.Nodes
	logger *slog.Logger
}

// NewNodeService creates a NodeService. nodes is nil when the chain is disabled.
func NewNodeService(nodes chain.Nodes, logger *slog.Logger) *NodeService {
	return &NodeService{nodes: nodes, logger: logger.With("component", "nodes")}
}

func (s *NodeService) address(raw string) (common.Address, error) {
	if s.nodes == nil {
		return common.Address{}, ErrChainDisabled
	}
	normalized, err := NormalizeWallet(raw)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(normalized), nil
}

// Add approves a node.
func (s *NodeService) Add(ctx context.Context, node string) (string, error) {
	addr, err := s.address(node)
	if err != nil {
		return "", err
	}
	tx, err := s.nodes.AddNode(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedger, err)
	}
	s.logger.Info("node approved", "node", addr.Hex(), "tx_hash", tx.Hex())
	return tx.Hex(), nil
}

// Remove revokes a node.
func (s *NodeService) Remove(ctx context.Context, node string) (string, error) {
	addr, err := s.address(node)
	if err != nil {
		return "", err
	}
	tx, err := s.nodes.RemoveNode(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedger, err)
	}
	s.logger.Info("node removed", "node", addr.Hex(), "tx_hash", tx.Hex())
	return tx.Hex(), nil
}

// IsApproved reports whether a node is approved.
func (s *NodeService) IsApproved(ctx context.Context, node string) (bool, error) {
	addr, err := s.address(node)
	if err != nil {
		return false, err
	}
	ok, err := s.nodes.IsApproved(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return ok, nil
}

// Admin returns the registry admin.
func (s *NodeService) Admin(ctx context.Context) (string, error) {
	if s.nodes == nil {
		return "", ErrChainDisabled
	}
	addr, err := s.nodes.Admin(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return addr.Hex(), nil
}
