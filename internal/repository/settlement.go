package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/jackc/pgx/v5"
)

// ErrSettlementNotFound is returned when no claim exists for a request id.
var ErrSettlementNotFound = errors.New("settlement not found")

const settlementColumns = `request_id, model_id, rental_id, source, status, attempt_count, max_attempts,
	next_retry_at, last_error, tx_hash, created_at, updated_at, settled_at`

// ClaimSettlement inserts a claim for a request id if none exists.
// Returns false when the request was already claimed by another flow.
func (r *Repository) ClaimSettlement(ctx context.Context, s *model.Settlement) (bool, error) {
	query := `
		INSERT INTO settlements (request_id, model_id, rental_id, source, status, attempt_count,
			max_attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)
		ON CONFLICT (request_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		s.RequestID,
		s.ModelID,
		s.RentalID,
		s.Source,
		model.SettlementPending,
		s.MaxAttempts,
		s.NextRetryAt,
		s.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim settlement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AttachSettlementRental links a claim to the rental it paid for.
func (r *Repository) AttachSettlementRental(ctx context.Context, requestID, rentalID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE settlements SET rental_id = $2, updated_at = $3 WHERE request_id = $1`,
		requestID, rentalID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to attach rental: %w", err)
	}
	return nil
}

// GetSettlement retrieves a claim.
func (r *Repository) GetSettlement(ctx context.Context, requestID string) (*model.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE request_id = $1`
	return scanSettlement(r.pool.QueryRow(ctx, query, requestID))
}

// LeaseDueSettlements returns claims ready for an attempt and pushes their
// next_retry_at forward by lease, so concurrent workers skip them.
func (r *Repository) LeaseDueSettlements(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Settlement, error) {
	query := `
		UPDATE settlements
		SET next_retry_at = $2, updated_at = $1
		WHERE request_id IN (
			SELECT request_id FROM settlements
			WHERE status IN ('pending', 'failed')
			  AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + settlementColumns

	rows, err := r.pool.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("query due settlements: %w", err)
	}
	defer rows.Close()

	var out []*model.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}
	return out, nil
}

// MarkSettlementSettled records a successful commit.
func (r *Repository) MarkSettlementSettled(ctx context.Context, requestID, txHash string) error {
	query := `
		UPDATE settlements
		SET status = 'settled',
			attempt_count = attempt_count + 1,
			tx_hash = NULLIF($2, ''),
			last_error = NULL,
			settled_at = $3,
			updated_at = $3
		WHERE request_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, requestID, txHash, time.Now())
	if err != nil {
		return fmt.Errorf("update settlement success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

// MarkSettlementFailure records a failed attempt and schedules the next one.
func (r *Repository) MarkSettlementFailure(ctx context.Context, requestID, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	status := model.SettlementFailed
	if exhausted {
		status = model.SettlementExhausted
	}

	query := `
		UPDATE settlements
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_error = $3,
			next_retry_at = $4,
			updated_at = $5
		WHERE request_id = $1
	`

	_, err := r.pool.Exec(ctx, query, requestID, status, errMsg, nextRetryAt, time.Now())
	if err != nil {
		return fmt.Errorf("update settlement failure: %w", err)
	}
	return nil
}

// CountOutstandingSettlements returns the number of claims still awaiting settlement.
func (r *Repository) CountOutstandingSettlements(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM settlements WHERE status IN ('pending', 'failed')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count settlements: %w", err)
	}
	return count, nil
}

func scanSettlement(row pgx.Row) (*model.Settlement, error) {
	var s model.Settlement
	err := row.Scan(
		&s.RequestID,
		&s.ModelID,
		&s.RentalID,
		&s.Source,
		&s.Status,
		&s.AttemptCount,
		&s.MaxAttempts,
		&s.NextRetryAt,
		&s.LastError,
		&s.TxHash,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, fmt.Errorf("failed to scan settlement: %w", err)
	}
	return &s, nil
}
