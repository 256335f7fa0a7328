package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
	ErrWalletExists = errors.New("wallet already registered")
)

const userColumns = `id, wallet, email, username, password_hash, roles, created_at, updated_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, wallet, email, username, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Wallet,
		user.Email,
		user.Username,
		user.PasswordHash,
		pq.Array(user.Roles),
		user.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "idx_users_wallet" {
				return ErrWalletExists
			}
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.UpdatedAt = user.CreatedAt
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByWallet retrieves a user by lowercased wallet address.
func (r *Repository) GetUserByWallet(ctx context.Context, wallet string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet = $1`
	return scanUser(r.pool.QueryRow(ctx, query, wallet))
}

// GetUserByEmail retrieves a user by lowercased email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// UpsertWalletUser creates the wallet's user or merges roles into the existing one.
// Reports whether the row was inserted.
func (r *Repository) UpsertWalletUser(ctx context.Context, user *model.User) (*model.User, bool, error) {
	query := `
		INSERT INTO users (id, wallet, username, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (wallet) WHERE wallet IS NOT NULL DO UPDATE
		SET roles = ARRAY(
				SELECT DISTINCT unnest(users.roles || EXCLUDED.roles) ORDER BY 1
			),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns + `, (xmax = 0) AS inserted
	`

	var u model.User
	var passwordHash *string
	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Wallet,
		user.Username,
		pq.Array(user.Roles),
		user.CreatedAt,
	).Scan(&u.ID, &u.Wallet, &u.Email, &u.Username, &passwordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert wallet user: %w", err)
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	return &u, inserted, nil
}

// GetOrCreateUser returns the user matching the wallet or email of user,
// creating it when absent. Handles the concurrent-create race.
func (r *Repository) GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, bool, error) {
	lookup := func() (*model.User, error) {
		if user.Wallet != nil {
			return r.GetUserByWallet(ctx, *user.Wallet)
		}
		if user.Email != nil {
			return r.GetUserByEmail(ctx, *user.Email)
		}
		return nil, ErrUserNotFound
	}

	existing, err := lookup()
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}
	if user.Wallet == nil && user.Email == nil {
		return nil, false, ErrUserNotFound
	}

	if err := r.CreateUser(ctx, user); err != nil {
		// Another request may have created it
		if errors.Is(err, ErrEmailExists) || errors.Is(err, ErrWalletExists) {
			existing, err := lookup()
			return existing, false, err
		}
		return nil, false, err
	}
	return user, true, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var passwordHash *string
	err := row.Scan(&u.ID, &u.Wallet, &u.Email, &u.Username, &passwordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	return &u, nil
}
