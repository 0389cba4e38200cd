package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/position-scanner/internal/models"
)

// StrategyRepository handles strategy persistence
type StrategyRepository struct {
	db *PostgresDB
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db *PostgresDB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Get retrieves a strategy by id. Returns (nil, nil) when no row exists.
func (r *StrategyRepository) Get(ctx context.Context, id int64) (*models.Strategy, error) {
	query := `
		SELECT id, registry_id, implementation, fee_policy, is_active
		FROM strategies
		WHERE id = $1
	`

	var (
		strategy                           models.Strategy
		registryStr, implStr, feePolicyStr string
	)

	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&strategy.ID,
		&registryStr,
		&implStr,
		&feePolicyStr,
		&strategy.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	strategy.RegistryID = common.HexToAddress(registryStr)
	strategy.Implementation = common.HexToAddress(implStr)
	strategy.FeePolicy = common.HexToAddress(feePolicyStr)

	return &strategy, nil
}

// Save inserts or updates a strategy row
func (r *StrategyRepository) Save(ctx context.Context, strategy *models.Strategy) error {
	query := `
		INSERT INTO strategies (id, registry_id, implementation, fee_policy, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			registry_id = EXCLUDED.registry_id,
			implementation = EXCLUDED.implementation,
			fee_policy = EXCLUDED.fee_policy,
			is_active = EXCLUDED.is_active
	`

	_, err := r.db.Pool().Exec(ctx, query,
		strategy.ID,
		addressText(strategy.RegistryID),
		addressText(strategy.Implementation),
		addressText(strategy.FeePolicy),
		strategy.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save strategy: %w", err)
	}

	return nil
}
