package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/ipfs"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
)

// CatalogService manages model metadata and its ModelRegistry mirror.
// Every caller resolves model references through Resolve, so downstream code
// only ever sees the canonical id.
type CatalogService struct {
	users     UserStore
	store     CatalogStore
	registry  chain.Registry
	strictCID bool
	logger    *slog.Logger
	now       Clock
}

// NewCatalogService creates a CatalogService. registry is nil when the chain is disabled.
func NewCatalogService(users UserStore, store CatalogStore, registry chain.Registry, strictCID bool, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		users:     users,
		store:     store,
		registry:  registry,
		strictCID: strictCID,
		logger:    logger.With("component", "catalog"),
		now:       systemClock,
	}
}

// ChainEnabled reports whether a registry is attached.
func (s *CatalogService) ChainEnabled() bool { return s.registry != nil }

// Resolve maps a canonical id or a chain id to an active model.
// Chain ids are tried first.
func (s *CatalogService) Resolve(ctx context.Context, ref string) (*model.Model, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrModelRequired
	}

	if _, err := chain.ParseID(ref); err == nil {
		m, err := s.store.GetModelByChainID(ctx, ref)
		if err == nil && m.Active {
			return m, nil
		}
		if err != nil && !errors.Is(err, repository.ErrModelNotFound) {
			return nil, fmt.Errorf("failed to resolve model: %w", err)
		}
	}

	m, err := s.store.GetModelByID(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrModelNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to resolve model: %w", err)
	}
	if !m.Active {
		return nil, ErrModelNotFound
	}
	return m, nil
}

// RegisterModelInput defines input for registering a model.
type RegisterModelInput struct {
	Wallet         string
	Name           string
	Description    string
	Category       string
	ContentPointer string
	PricePerMinute string
}

// RegisteredModel is a persisted model plus the registry transaction, if any.
type RegisteredModel struct {
	Model  *model.Model
	TxHash string
}

// Register validates and persists a model. With a registry attached the model
// is registered on chain first and nothing is persisted if that fails.
func (s *CatalogService) Register(ctx context.Context, input RegisterModelInput) (*RegisteredModel, error) {
	wallet, err := NormalizeWallet(input.Wallet)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.GetUserByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}
	if !owner.HasRole(model.RoleModelOwner) {
		return nil, ErrRoleRequired
	}

	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxModelNameLength {
		return nil, ErrInvalidName
	}
	pointer := strings.TrimSpace(input.ContentPointer)
	if err := ipfs.ValidateCID(pointer, s.strictCID); err != nil {
		return nil, ErrInvalidCID
	}
	price, err := chain.ParseWei(input.PricePerMinute)
	if err != nil {
		return nil, ErrInvalidPrice
	}

	m := &model.Model{
		ID:             newID(),
		OwnerWallet:    wallet,
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		Category:       strings.TrimSpace(input.Category),
		ContentPointer: pointer,
		PricePerMinute: price.String(),
		Active:         true,
		CreatedAt:      s.now(),
		UpdatedAt:      s.now(),
	}

	out := &RegisteredModel{Model: m}
	if s.registry != nil {
		chainID, txHash, err := s.registry.RegisterModel(ctx, pointer, price)
		if err != nil {
			s.logger.Error("model registration failed on chain", "owner", wallet, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrLedger, err)
		}
		m.ChainModelID = ptr(chainID.String())
		out.TxHash = txHash.Hex()
	}

	if err := s.store.CreateModel(ctx, m); err != nil {
		if errors.Is(err, repository.ErrChainModelExists) {
			return nil, ErrChainModelExists
		}
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	s.logger.Info("model registered",
		"model_id", m.ID,
		"chain_model_id", m.ChainModelID,
		"owner", wallet,
	)
	return out, nil
}

// Seed inserts a model that already exists on chain, creating its owner with
// the modelOwner role. Existing models with the same chain id are returned unchanged.
func (s *CatalogService) Seed(ctx context.Context, m *model.Model) (*model.Model, bool, error) {
	wallet, err := NormalizeWallet(m.OwnerWallet)
	if err != nil {
		return nil, false, err
	}
	if m.ChainModelID != nil {
		existing, err := s.store.GetModelByChainID(ctx, *m.ChainModelID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrModelNotFound) {
			return nil, false, err
		}
	}

	if _, _, err := s.users.UpsertWalletUser(ctx, &model.User{
		ID:        newID(),
		Wallet:    ptr(wallet),
		Roles:     []string{model.RoleModelOwner},
		CreatedAt: s.now(),
	}); err != nil {
		return nil, false, err
	}

	m.ID = newID()
	m.OwnerWallet = wallet
	m.Active = true
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
	if err := s.store.CreateModel(ctx, m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// List returns active models, newest first.
func (s *CatalogService) List(ctx context.Context, filter model.ModelFilter) ([]*model.Model, error) {
	if filter.Owner != "" {
		owner, err := NormalizeWallet(filter.Owner)
		if err != nil {
			return nil, err
		}
		filter.Owner = owner
	}
	filter.Search = strings.TrimSpace(filter.Search)

	models, err := s.store.ListModels(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// PriceUpdate is the result of a price change.
type PriceUpdate struct {
	Model  *model.Model
	TxHash string
}

// UpdatePrice changes a model's price. Only the owner may do so. The chain is
// updated first when the model is mirrored there.
func (s *CatalogService) UpdatePrice(ctx context.Context, ref, wallet, newPrice string) (*PriceUpdate, error) {
	m, err := s.ownedModel(ctx, ref, wallet)
	if err != nil {
		return nil, err
	}
	price, err := chain.ParseWei(newPrice)
	if err != nil {
		return nil, ErrInvalidPrice
	}

	out := &PriceUpdate{Model: m}
	if m.OnChain() && s.registry != nil {
		chainID, err := chain.ParseID(*m.ChainModelID)
		if err != nil {
			return nil, fmt.Errorf("corrupt chain id on model %s: %w", m.ID, err)
		}
		txHash, err := s.registry.UpdatePrice(ctx, chainID, price)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLedger, err)
		}
		out.TxHash = txHash.Hex()
	}

	if err := s.store.UpdateModelPrice(ctx, m.ID, price.String()); err != nil {
		return nil, fmt.Errorf("failed to update price: %w", err)
	}
	m.PricePerMinute = price.String()
	m.UpdatedAt = s.now()

	s.logger.Info("model price updated", "model_id", m.ID, "price_per_minute", m.PricePerMinute)
	return out, nil
}

// Deactivate soft-deletes a model. Only the owner may do so.
func (s *CatalogService) Deactivate(ctx context.Context, ref, wallet string) (*model.Model, error) {
	m, err := s.ownedModel(ctx, ref, wallet)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeactivateModel(ctx, m.ID); err != nil {
		if errors.Is(err, repository.ErrModelNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to deactivate model: %w", err)
	}
	m.Active = false

	s.logger.Info("model deactivated", "model_id", m.ID)
	return m, nil
}

func (s *CatalogService) ownedModel(ctx context.Context, ref, wallet string) (*model.Model, error) {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	m, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !m.IsOwnedBy(normalized) {
		return nil, ErrNotModelOwner
	}
	return m, nil
}

// ChainModelView is a ModelRegistry record as presented by the API.
type ChainModelView struct {
	ModelID        string `json:"modelId"`
	Owner          string `json:"owner"`
	IPFSCid        string `json:"ipfsCid"`
	PricePerMinute string `json:"pricePerMinute"`
	Active         bool   `json:"active"`
	Source         string `json:"source"`
}

// ChainView reads a model by chain id from the registry, or from the catalog
// when no registry is attached.
func (s *CatalogService) ChainView(ctx context.Context, chainID string) (*ChainModelView, error) {
	id, err := chain.ParseID(chainID)
	if err != nil {
		return nil, err
	}

	if s.registry == nil {
		m, err := s.store.GetModelByChainID(ctx, id.String())
		if err != nil {
			if errors.Is(err, repository.ErrModelNotFound) {
				return nil, ErrModelNotFound
			}
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
		return &ChainModelView{
			ModelID:        id.String(),
			Owner:          m.OwnerWallet,
			IPFSCid:        m.ContentPointer,
			PricePerMinute: m.PricePerMinute,
			Active:         m.Active,
			Source:         "catalog",
		}, nil
	}

	onChain, err := s.registry.GetModel(ctx, id)
	if err != nil {
		if errors.Is(err, chain.ErrModelNotOnChain) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return &ChainModelView{
		ModelID:        id.String(),
		Owner:          onChain.Owner.Hex(),
		IPFSCid:        onChain.ContentPointer,
		PricePerMinute: onChain.PricePerMinute.String(),
		Active:         onChain.Active,
		Source:         "chain",
	}, nil
}

// NextChainID returns the id the registry will assign next.
func (s *CatalogService) NextChainID(ctx context.Context) (string, error) {
	if s.registry == nil {
		return "", ErrChainDisabled
	}
	id, err := s.registry.NextModelID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return id.String(), nil
}
