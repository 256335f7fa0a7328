package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/inferchain/inferchain/internal/auth"
	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
)

const minPasswordLength = 8

// UserService manages wallet users, email accounts and sessions.
type UserService struct {
	users    UserStore
	rentals  RentalStore
	catalog  *CatalogService
	hasher   *auth.PasswordHasher
	sessions *auth.SessionManager
	logger   *slog.Logger
	now      Clock
}

// NewUserService creates a UserService.
func NewUserService(users UserStore, rentals RentalStore, catalog *CatalogService, hasher *auth.PasswordHasher, sessions *auth.SessionManager, logger *slog.Logger) *UserService {
	return &UserService{
		users:    users,
		rentals:  rentals,
		catalog:  catalog,
		hasher:   hasher,
		sessions: sessions,
		logger:   logger.With("component", "users"),
		now:      systemClock,
	}
}

// RegisterWallet creates a wallet user or merges roles into the existing one.
// Only self-service roles may be requested; an empty set means customer.
func (s *UserService) RegisterWallet(ctx context.Context, wallet string, roles []string) (*model.User, bool, error) {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, false, err
	}
	if len(roles) == 0 {
		roles = []string{model.RoleCustomer}
	}
	for _, r := range roles {
		if !slices.Contains(model.SelfServiceRoles, r) {
			return nil, false, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
	}

	now := s.now()
	u, inserted, err := s.users.UpsertWalletUser(ctx, &model.User{
		ID:        newID(),
		Wallet:    ptr(normalized),
		Roles:     model.MergeRoles(nil, roles),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to register user: %w", err)
	}

	s.logger.Info("wallet user registered", "user_id", u.ID, "created", inserted, "roles", u.Roles)
	return u, inserted, nil
}

// GetByWallet returns the user for a wallet.
func (s *UserService) GetByWallet(ctx context.Context, wallet string) (*model.User, error) {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.mapUser(s.users.GetUserByWallet(ctx, normalized))
}

// GetByEmail returns the user for an email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.mapUser(s.users.GetUserByEmail(ctx, normalized))
}

// GetByID returns a user by id.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.mapUser(s.users.GetUserByID(ctx, id))
}

func (s *UserService) mapUser(u *model.User, err error) (*model.User, error) {
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return u, nil
}

// AccountInput defines input for email sign-up.
type AccountInput struct {
	Email    string
	Password string
	Username string
	Role     string
}

// Session is an authenticated user plus a bearer token.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Register creates an email account and signs it in.
func (s *UserService) Register(ctx context.Context, input AccountInput) (*Session, error) {
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	role := input.Role
	if role == "" {
		role = model.RoleCustomer
	}
	if !slices.Contains(model.SelfServiceRoles, role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username", ErrInvalidName)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	u := &model.User{
		ID:           newID(),
		Email:        ptr(email),
		Username:     username,
		PasswordHash: hash,
		Roles:        []string{role},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account registered", "user_id", u.ID)
	return s.issue(u)
}

// Login verifies credentials and signs the user in. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", u.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *UserService) issue(u *model.User) (*Session, error) {
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	token, expiresAt, err := s.sessions.Issue(u.ID, email, u.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &Session{User: u, Token: token, ExpiresAt: expiresAt}, nil
}

// Stats summarizes a user's rentals.
func (s *UserService) Stats(ctx context.Context, u *model.User) (*model.UserStats, error) {
	rentals, err := s.rentals.ListRentalsByCustomerID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}

	now := s.now()
	stats := &model.UserStats{ModelIDs: []string{}}
	for _, r := range rentals {
		stats.TotalRentals++
		if r.Active && !r.IsExpired(now) {
			stats.ActiveRentals++
		}
		if r.PaymentProcessed {
			stats.PaidRentals++
		}
		if !slices.Contains(stats.ModelIDs, r.ModelID) {
			stats.ModelIDs = append(stats.ModelIDs, r.ModelID)
		}
	}
	return stats, nil
}

// CreatorModels lists the models owned by the wallet linked to an email account.
func (s *UserService) CreatorModels(ctx context.Context, email string) ([]*model.Model, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Wallet == nil {
		return []*model.Model{}, nil
	}
	return s.catalog.List(ctx, model.ModelFilter{Owner: *u.Wallet})
}
