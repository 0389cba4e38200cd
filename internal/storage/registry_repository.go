package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/position-scanner/internal/models"
)

// RegistryRepository handles registry persistence
type RegistryRepository struct {
	db *PostgresDB
}

// NewRegistryRepository creates a new registry repository
func NewRegistryRepository(db *PostgresDB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// Get retrieves a registry by address. Returns (nil, nil) when no row exists
// so callers can treat absence as a normal state.
func (r *RegistryRepository) Get(ctx context.Context, id common.Address) (*models.Registry, error) {
	query := `
		SELECT id, owner, fee_collector, position_count, smart_account_count,
			   total_deposited_usd, updated_at
		FROM registries
		WHERE id = $1
	`

	var (
		registry              models.Registry
		idStr, ownerStr       string
		feeCollectorStr       string
		totalDepositedUSDText string
	)

	err := r.db.Pool().QueryRow(ctx, query, addressText(id)).Scan(
		&idStr,
		&ownerStr,
		&feeCollectorStr,
		&registry.PositionCount,
		&registry.SmartAccountCount,
		&totalDepositedUSDText,
		&registry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registry: %w", err)
	}

	registry.ID = common.HexToAddress(idStr)
	registry.Owner = common.HexToAddress(ownerStr)
	registry.FeeCollector = common.HexToAddress(feeCollectorStr)
	if registry.TotalDepositedUSD, err = parseDecimal(totalDepositedUSDText); err != nil {
		return nil, err
	}

	return &registry, nil
}

// Save inserts or updates a registry row
func (r *RegistryRepository) Save(ctx context.Context, registry *models.Registry) error {
	query := `
		INSERT INTO registries (
			id, owner, fee_collector, position_count, smart_account_count,
			total_deposited_usd, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			fee_collector = EXCLUDED.fee_collector,
			position_count = EXCLUDED.position_count,
			smart_account_count = EXCLUDED.smart_account_count,
			total_deposited_usd = EXCLUDED.total_deposited_usd,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		addressText(registry.ID),
		addressText(registry.Owner),
		addressText(registry.FeeCollector),
		registry.PositionCount,
		registry.SmartAccountCount,
		registry.TotalDepositedUSD.String(),
		registry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}

	return nil
}
