package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
)

const maxTokenRetries = 3

// APIKeyConfig controls rental issuance.
type APIKeyConfig struct {
	// TokenEnv is "live" or "test" and is embedded in every token.
	TokenEnv     string
	DefaultHours int
	MaxHours     int
}

// APIKeyService issues, validates, lists and revokes rental API keys.
type APIKeyService struct {
	users    UserStore
	rentals  RentalStore
	cache    RentalCache
	catalog  *CatalogService
	payments *PaymentService
	sealer   *auth.Sealer
	cfg      APIKeyConfig
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      Clock
}

// NewAPIKeyService creates an APIKeyService. cache may be nil.
func NewAPIKeyService(
	users UserStore,
	rentals RentalStore,
	cache RentalCache,
	catalog *CatalogService,
	payments *PaymentService,
	sealer *auth.Sealer,
	cfg APIKeyConfig,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *APIKeyService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.DefaultHours <= 0 {
		cfg.DefaultHours = 24
	}
	if cfg.MaxHours <= 0 {
		cfg.MaxHours = 8760
	}
	return &APIKeyService{
		users:    users,
		rentals:  rentals,
		cache:    cache,
		catalog:  catalog,
		payments: payments,
		sealer:   sealer,
		cfg:      cfg,
		metrics:  recorder,
		logger:   logger.With("component", "apikeys"),
		now:      systemClock,
	}
}

// SetClock overrides the time source used for expiry.
func (s *APIKeyService) SetClock(now Clock) { s.now = now }

// GenerateInput defines input for issuing a key.
type GenerateInput struct {
	Identity
	ModelRef      string
	DurationHours *int
}

// IssuedKey is the result of a successful issuance.
type IssuedKey struct {
	APIKey         string
	Rental         *model.Rental
	Model          *model.Model
	DurationHours  int
	AccountCreated bool
	Charge         *Charge
}

// Generate issues a new rental key. Every call creates a distinct token and a distinct charge.
func (s *APIKeyService) Generate(ctx context.Context, input GenerateInput) (*IssuedKey, error) {
	id, err := input.Identity.normalize()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ModelRef) == "" {
		return nil, ErrModelRequired
	}

	hours := s.cfg.DefaultHours
	if input.DurationHours != nil {
		hours = *input.DurationHours
	}
	if hours <= 0 || hours > s.cfg.MaxHours {
		return nil, ErrInvalidDuration
	}

	m, err := s.catalog.Resolve(ctx, input.ModelRef)
	if err != nil {
		return nil, err
	}

	customer, created, err := s.customerFor(ctx, id)
	if err != nil {
		return nil, err
	}

	charge, err := s.payments.Charge(ctx, ChargeInput{
		Model:   m,
		Minutes: int64(hours) * 60,
		Source:  model.SourceIssuance,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	rental := &model.Rental{
		ModelID:          m.ID,
		CustomerID:       customer.ID,
		Customer:         id.label(),
		ExpiresAt:        now.Add(time.Duration(hours) * time.Hour),
		PaymentProcessed: charge.Processed,
		Active:           true,
		CreatedAt:        now,
	}
	if charge.RequestID != "" {
		rental.RequestID = ptr(charge.RequestID)
	}

	token, err := s.insertWithFreshToken(ctx, rental)
	if err != nil {
		return nil, err
	}
	s.payments.LinkRental(ctx, charge.RequestID, rental.ID)

	s.metrics.IncAPIKeyIssued(charge.Processed)
	s.logger.Info("api key issued",
		"rental_id", rental.ID,
		"model_id", m.ID,
		"customer_id", customer.ID,
		"duration_hours", hours,
		"payment_processed", charge.Processed,
	)

	return &IssuedKey{
		APIKey:         token,
		Rental:         rental,
		Model:          m,
		DurationHours:  hours,
		AccountCreated: created,
		Charge:         charge,
	}, nil
}

// customerFor finds the customer for an identity. Only an identity carrying an
// email may create a customer account; an unknown wallet on its own is refused.
func (s *APIKeyService) customerFor(ctx context.Context, id Identity) (*model.User, bool, error) {
	if id.Wallet != "" {
		u, err := s.users.GetUserByWallet(ctx, id.Wallet)
		if err == nil {
			return u, false, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, false, fmt.Errorf("failed to resolve customer: %w", err)
		}
		if id.Email == "" {
			return nil, false, ErrUserNotFound
		}
	}

	user := &model.User{
		ID:        newID(),
		Email:     ptr(id.Email),
		Username:  strings.SplitN(id.Email, "@", 2)[0],
		Roles:     []string{model.RoleCustomer},
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	u, created, err := s.users.GetOrCreateUser(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve customer: %w", err)
	}
	return u, created, nil
}

// insertWithFreshToken generates a token and inserts the rental, retrying on digest collision.
func (s *APIKeyService) insertWithFreshToken(ctx context.Context, rental *model.Rental) (string, error) {
	for attempt := 0; attempt < maxTokenRetries; attempt++ {
		gen, err := auth.GenerateRentalToken(s.cfg.TokenEnv)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		sealed, err := s.sealer.Seal(gen.Plaintext, gen.Digest)
		if err != nil {
			return "", fmt.Errorf("failed to seal token: %w", err)
		}

		rental.ID = newID()
		rental.TokenHash = gen.Digest
		rental.TokenSealed = sealed
		rental.TokenPrefix = gen.Prefix

		err = s.rentals.CreateRental(ctx, rental)
		if err == nil {
			return gen.Plaintext, nil
		}
		if !errors.Is(err, repository.ErrTokenExists) {
			return "", fmt.Errorf("failed to create rental: %w", err)
		}
		s.logger.Warn("rental token collision, regenerating", "attempt", attempt+1)
	}
	return "", fmt.Errorf("failed to create rental: %w", repository.ErrTokenExists)
}

// Validate resolves a presented key to its rental. Expiry is evaluated lazily
// against the service clock and nothing is mutated.
func (s *APIKeyService) Validate(ctx context.Context, apiKey string) (*model.RentalContext, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if !auth.ValidTokenFormat(apiKey) {
		s.metrics.IncAPIKeyValidation(metrics.ValidationNotFound)
		return nil, ErrRentalNotFound
	}
	digest := auth.TokenDigest(apiKey)
	now := s.now()

	if s.cache != nil {
		cached, err := s.cache.GetRental(ctx, digest)
		if err != nil {
			s.logger.Warn("rental cache read failed", "error", err)
		}
		if cached != nil {
			return s.checkRental(cached, now)
		}
	}

	rental, err := s.rentals.GetRentalByTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			s.metrics.IncAPIKeyValidation(metrics.ValidationNotFound)
			return nil, ErrRentalNotFound
		}
		return nil, fmt.Errorf("failed to look up rental: %w", err)
	}

	cached := rental.ToCached()
	if s.cache != nil {
		if err := s.cache.SetRental(ctx, digest, cached); err != nil {
			s.logger.Warn("rental cache write failed", "error", err)
		}
	}
	return s.checkRental(cached, now)
}

func (s *APIKeyService) checkRental(r *model.CachedRental, now time.Time) (*model.RentalContext, error) {
	if !r.Active {
		s.metrics.IncAPIKeyValidation(metrics.ValidationRevoked)
		return nil, ErrRentalRevoked
	}
	if !now.Before(r.ExpiresAt) {
		s.metrics.IncAPIKeyValidation(metrics.ValidationExpired)
		return nil, ErrRentalExpired
	}
	s.metrics.IncAPIKeyValidation(metrics.ValidationValid)
	return r.ToContext(), nil
}

// ListedKey is a rental as shown to its owner.
type ListedKey struct {
	APIKey    string
	Rental    *model.Rental
	IsExpired bool
}

// List returns the keys issued to a customer, newest first. Unknown customers have no keys.
func (s *APIKeyService) List(ctx context.Context, identity Identity) ([]ListedKey, error) {
	id, err := identity.normalize()
	if err != nil {
		return nil, err
	}

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []ListedKey{}, nil
		}
		return nil, err
	}

	rentals, err := s.rentals.ListRentalsByCustomerID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}

	now := s.now()
	out := make([]ListedKey, 0, len(rentals))
	for _, r := range rentals {
		plaintext, err := s.sealer.Open(r.TokenSealed, r.TokenHash)
		if err != nil {
			s.logger.Error("sealed token unreadable", "rental_id", r.ID, "error", err)
			plaintext = r.TokenPrefix
		}
		out = append(out, ListedKey{APIKey: plaintext, Rental: r, IsExpired: r.IsExpired(now)})
	}
	return out, nil
}

// Revoke deactivates a key. Only the customer the key was issued to may revoke it.
func (s *APIKeyService) Revoke(ctx context.Context, apiKey string, identity Identity) (*model.Rental, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	id, err := identity.normalize()
	if err != nil {
		return nil, err
	}

	digest := auth.TokenDigest(apiKey)
	rental, err := s.rentals.GetRentalByTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrRentalNotFound) {
			return nil, ErrRentalNotFound
		}
		return nil, fmt.Errorf("failed to look up rental: %w", err)
	}

	user, err := s.lookupUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNotRentalOwner
		}
		return nil, err
	}
	if user.ID != rental.CustomerID {
		return nil, ErrNotRentalOwner
	}

	if err := s.rentals.DeactivateRental(ctx, rental.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke rental: %w", err)
	}
	rental.Active = false

	if s.cache != nil {
		if err := s.cache.DeleteRental(ctx, digest); err != nil {
			s.logger.Warn("rental cache invalidation failed", "rental_id", rental.ID, "error", err)
		}
	}

	s.logger.Info("api key revoked", "rental_id", rental.ID, "customer_id", user.ID)
	return rental, nil
}

func (s *APIKeyService) lookupUser(ctx context.Context, id Identity) (*model.User, error) {
	var (
		u   *model.User
		err error
	)
	if id.Wallet != "" {
		u, err = s.users.GetUserByWallet(ctx, id.Wallet)
	} else {
		u, err = s.users.GetUserByEmail(ctx, id.Email)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return u, nil
}

// Breakdown renders a charge the way API responses present it.
type Breakdown struct {
	TotalCost       string            `json:"totalCost"`
	TotalCostWei    string            `json:"totalCostWei"`
	PricePerMinute  string            `json:"pricePerMinute"`
	DurationHours   int               `json:"durationHours"`
	DurationMinutes int64             `json:"durationMinutes"`
	Distribution    map[string]string `json:"distribution"`
	CommissionBps   int64             `json:"commissionBps"`
	Settlement      string            `json:"settlement"`
	ReserveTxHash   string            `json:"reserveTxHash,omitempty"`
	CommitTxHash    string            `json:"settleTxHash,omitempty"`
}

// NewBreakdown returns nil for charges that never reached the ledger.
func NewBreakdown(c *Charge, hours int) *Breakdown {
	if c == nil || !c.Processed || c.TotalCost == nil {
		return nil
	}
	return &Breakdown{
		TotalCost:       chain.FormatEther(c.TotalCost),
		TotalCostWei:    c.TotalCost.String(),
		PricePerMinute:  c.PricePerMinute.String(),
		DurationHours:   hours,
		DurationMinutes: c.Minutes,
		Distribution: map[string]string{
			"modelOwner": chain.FormatEther(c.OwnerShare),
			"platform":   chain.FormatEther(c.PlatformShare),
		},
		CommissionBps: c.CommissionBps,
		Settlement:    c.Settlement,
		ReserveTxHash: c.ReserveTxHash,
		CommitTxHash:  c.CommitTxHash,
	}
}
