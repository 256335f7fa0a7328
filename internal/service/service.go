// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/inferchain/inferchain/internal/chain"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/oklog/ulid/v2"
)

// Service errors.
var (
	ErrIdentityRequired   = errors.New("wallet or email is required")
	ErrInvalidWallet      = errors.New("invalid wallet address")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidDuration    = errors.New("durationHours must be a positive integer within the allowed maximum")
	ErrModelRequired      = errors.New("modelId is required")
	ErrModelNotFound      = errors.New("model not found")
	ErrPaymentRequired    = errors.New("payment could not be processed")
	ErrAPIKeyRequired     = errors.New("apiKey is required")
	ErrRentalNotFound     = errors.New("API key not found")
	ErrRentalExpired      = errors.New("API key expired")
	ErrRentalRevoked      = errors.New("API key revoked")
	ErrNotRentalOwner     = errors.New("API key belongs to another customer")
	ErrQuestionRequired   = errors.New("question is required")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrRoleRequired       = errors.New("user does not hold the required role")
	ErrEmailExists        = errors.New("email already registered")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidName        = errors.New("model name is required and must be at most 200 characters")
	ErrInvalidCID         = errors.New("invalid IPFS CID")
	ErrInvalidPrice       = errors.New("pricePerMinute must be a positive integer amount of wei")
	ErrNotModelOwner      = errors.New("only the model owner can perform this action")
	ErrChainModelExists   = errors.New("model already registered for this chain id")
	ErrInvalidMinutes     = errors.New("durationMinutes must be a positive integer")
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrLedger wraps failures reported by the chain gateway.
	ErrLedger = errors.New("ledger operation failed")

	// ErrChainDisabled is returned by chain-only operations when no gateway is configured.
	ErrChainDisabled = chain.ErrDisabled
)

const maxModelNameLength = 200

// Clock returns the current time. Injected so expiry can be tested.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByWallet(ctx context.Context, wallet string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpsertWalletUser(ctx context.Context, user *model.User) (*model.User, bool, error)
	GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, bool, error)
}

// CatalogStore persists models.
type CatalogStore interface {
	CreateModel(ctx context.Context, m *model.Model) error
	GetModelByID(ctx context.Context, id string) (*model.Model, error)
	GetModelByChainID(ctx context.Context, chainID string) (*model.Model, error)
	ListModels(ctx context.Context, filter model.ModelFilter) ([]*model.Model, error)
	UpdateModelPrice(ctx context.Context, id, priceWei string) error
	DeactivateModel(ctx context.Context, id string) error
}

// RentalStore persists rentals.
type RentalStore interface {
	CreateRental(ctx context.Context, rental *model.Rental) error
	GetRentalByTokenHash(ctx context.Context, tokenHash string) (*model.Rental, error)
	ListRentalsByCustomerID(ctx context.Context, customerID string) ([]*model.Rental, error)
	DeactivateRental(ctx context.Context, id string) error
}

// SettlementStore persists settlement claims.
type SettlementStore interface {
	ClaimSettlement(ctx context.Context, s *model.Settlement) (bool, error)
	AttachSettlementRental(ctx context.Context, requestID, rentalID string) error
	GetSettlement(ctx context.Context, requestID string) (*model.Settlement, error)
	MarkSettlementSettled(ctx context.Context, requestID, txHash string) error
	MarkSettlementFailure(ctx context.Context, requestID, errMsg string, nextRetryAt time.Time, exhausted bool) error
}

// RentalCache is the validation hot-path cache.
type RentalCache interface {
	GetRental(ctx context.Context, digest string) (*model.CachedRental, error)
	SetRental(ctx context.Context, digest string, rental *model.CachedRental) error
	DeleteRental(ctx context.Context, digest string) error
}

func newID() string {
	return ulid.Make().String()
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// NormalizeWallet validates a hex address and returns it lowercased.
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) || !strings.HasPrefix(strings.ToLower(wallet), "0x") {
		return "", ErrInvalidWallet
	}
	return strings.ToLower(wallet), nil
}

// NormalizeEmail validates a bare address and returns it lowercased.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

// Identity is a customer reference carried by a request: a wallet, an email, or both.
type Identity struct {
	Wallet string
	Email  string
}

// normalize validates whichever fields are set. At least one must be.
func (id Identity) normalize() (Identity, error) {
	if strings.TrimSpace(id.Wallet) == "" && strings.TrimSpace(id.Email) == "" {
		return id, ErrIdentityRequired
	}
	var out Identity
	var err error
	if strings.TrimSpace(id.Wallet) != "" {
		if out.Wallet, err = NormalizeWallet(id.Wallet); err != nil {
			return id, err
		}
	}
	if strings.TrimSpace(id.Email) != "" {
		if out.Email, err = NormalizeEmail(id.Email); err != nil {
			return id, err
		}
	}
	return out, nil
}

// label is the customer string stored on rentals: wallet first, then email.
func (id Identity) label() string {
	if id.Wallet != "" {
		return id.Wallet
	}
	return id.Email
}

func ptr[T any](v T) *T { return &v }
