package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for catalog operations.
var (
	ErrModelNotFound    = errors.New("model not found")
	ErrChainModelExists = errors.New("chain model id already registered")
)

const modelColumns = `id, chain_model_id, owner_wallet, name, description, category,
	content_pointer, price_per_minute_wei, active, created_at, updated_at`

// CreateModel inserts a model.
func (r *Repository) CreateModel(ctx context.Context, m *model.Model) error {
	query := `
		INSERT INTO models (id, chain_model_id, owner_wallet, name, description, category,
			content_pointer, price_per_minute_wei, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.ChainModelID,
		m.OwnerWallet,
		m.Name,
		m.Description,
		m.Category,
		m.ContentPointer,
		m.PricePerMinute,
		m.Active,
		m.CreatedAt,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrChainModelExists
		}
		return fmt.Errorf("failed to create model: %w", err)
	}

	m.UpdatedAt = m.CreatedAt
	return nil
}

// GetModelByID retrieves a model by canonical id.
func (r *Repository) GetModelByID(ctx context.Context, id string) (*model.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE id = $1`
	return scanModel(r.pool.QueryRow(ctx, query, id))
}

// GetModelByChainID retrieves a model by its ModelRegistry id.
func (r *Repository) GetModelByChainID(ctx context.Context, chainID string) (*model.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models WHERE chain_model_id = $1`
	return scanModel(r.pool.QueryRow(ctx, query, chainID))
}

// ListModels returns active models, newest first.
func (r *Repository) ListModels(ctx context.Context, filter model.ModelFilter) ([]*model.Model, error) {
	var conditions []string
	var args []any
	argNum := 1

	conditions = append(conditions, "active = true")

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argNum))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argNum++
	}
	if filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("owner_wallet = $%d", argNum))
		args = append(args, filter.Owner)
		argNum++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	query := fmt.Sprintf(`SELECT %s FROM models WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		modelColumns, strings.Join(conditions, " AND "), argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	models := make([]*model.Model, 0)
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}
	return models, nil
}

// UpdateModelPrice sets the per-minute price.
func (r *Repository) UpdateModelPrice(ctx context.Context, id, priceWei string) error {
	query := `UPDATE models SET price_per_minute_wei = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, priceWei, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update model price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

// DeactivateModel soft-deletes a model.
func (r *Repository) DeactivateModel(ctx context.Context, id string) error {
	query := `UPDATE models SET active = false, updated_at = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to deactivate model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

func scanModel(row pgx.Row) (*model.Model, error) {
	var m model.Model
	err := row.Scan(
		&m.ID,
		&m.ChainModelID,
		&m.OwnerWallet,
		&m.Name,
		&m.Description,
		&m.Category,
		&m.ContentPointer,
		&m.PricePerMinute,
		&m.Active,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to scan model: %w", err)
	}
	return &m, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
