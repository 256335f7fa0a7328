package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for rental operations.
var (
	ErrRentalNotFound = errors.New("rental not found")
	ErrTokenExists    = errors.New("rental token collision")
)

const rentalColumns = `id, model_id, customer_id, customer, token_hash, token_sealed, token_prefix,
	expires_at, request_id, payment_processed, active, created_at`

// CreateRental inserts a rental. A token digest collision returns ErrTokenExists
// and never overwrites the existing row.
func (r *Repository) CreateRental(ctx context.Context, rental *model.Rental) error {
	query := `
		INSERT INTO rentals (id, model_id, customer_id, customer, token_hash, token_sealed, token_prefix,
			expires_at, request_id, payment_processed, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		rental.ID,
		rental.ModelID,
		rental.CustomerID,
		rental.Customer,
		rental.TokenHash,
		rental.TokenSealed,
		rental.TokenPrefix,
		rental.ExpiresAt,
		rental.RequestID,
		rental.PaymentProcessed,
		rental.Active,
		rental.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "idx_rentals_token_hash" {
			return ErrTokenExists
		}
		return fmt.Errorf("failed to create rental: %w", err)
	}
	return nil
}

// GetRentalByTokenHash finds a rental by exact token digest.
func (r *Repository) GetRentalByTokenHash(ctx context.Context, tokenHash string) (*model.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE token_hash = $1`
	return scanRental(r.pool.QueryRow(ctx, query, tokenHash))
}

// ListRentalsByCustomerID lists rentals for a user id, newest first.
func (r *Repository) ListRentalsByCustomerID(ctx context.Context, customerID string) ([]*model.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE customer_id = $1 ORDER BY created_at DESC`
	return r.queryRentals(ctx, query, customerID)
}

// DeactivateRental clears the active flag. It is the only mutation a rental allows.
func (r *Repository) DeactivateRental(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rentals SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rental: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRentalNotFound
	}
	return nil
}

func (r *Repository) queryRentals(ctx context.Context, query string, args ...any) ([]*model.Rental, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rentals: %w", err)
	}
	defer rows.Close()

	rentals := make([]*model.Rental, 0)
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, rental)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rentals: %w", err)
	}
	return rentals, nil
}

func scanRental(row pgx.Row) (*model.Rental, error) {
	var rental model.Rental
	err := row.Scan(
		&rental.ID,
		&rental.ModelID,
		&rental.CustomerID,
		&rental.Customer,
		&rental.TokenHash,
		&rental.TokenSealed,
		&rental.TokenPrefix,
		&rental.ExpiresAt,
		&rental.RequestID,
		&rental.PaymentProcessed,
		&rental.Active,
		&rental.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRentalNotFound
		}
		return nil, fmt.Errorf("failed to scan rental: %w", err)
	}
	return &rental, nil
}
