package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/position-scanner/internal/models"
)

// SmartAccountRepository handles smart account persistence
type SmartAccountRepository struct {
	db *PostgresDB
}

// NewSmartAccountRepository creates a new smart account repository
func NewSmartAccountRepository(db *PostgresDB) *SmartAccountRepository {
	return &SmartAccountRepository{db: db}
}

// Get retrieves a smart account by address. Returns (nil, nil) when no row
// exists.
func (r *SmartAccountRepository) Get(ctx context.Context, id common.Address) (*models.SmartAccount, error) {
	query := `
		SELECT id, registry_id, position_count, total_deposited_usd, updated_at
		FROM smart_accounts
		WHERE id = $1
	`

	account, err := scanSmartAccount(r.db.Pool().QueryRow(ctx, query, addressText(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get smart account: %w", err)
	}

	return account, nil
}

// ListByRegistry retrieves every smart account activated under a registry.
func (r *SmartAccountRepository) ListByRegistry(ctx context.Context, registryID common.Address) ([]*models.SmartAccount, error) {
	query := `
		SELECT id, registry_id, position_count, total_deposited_usd, updated_at
		FROM smart_accounts
		WHERE registry_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query, addressText(registryID))
	if err != nil {
		return nil, fmt.Errorf("failed to list smart accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.SmartAccount
	for rows.Next() {
		account, err := scanSmartAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan smart account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating smart accounts: %w", err)
	}

	return accounts, nil
}

// Save inserts or updates a smart account row
func (r *SmartAccountRepository) Save(ctx context.Context, account *models.SmartAccount) error {
	query := `
		INSERT INTO smart_accounts (
			id, registry_id, position_count, total_deposited_usd, updated_at
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET
			registry_id = EXCLUDED.registry_id,
			position_count = EXCLUDED.position_count,
			total_deposited_usd = EXCLUDED.total_deposited_usd,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		addressText(account.ID),
		addressText(account.RegistryID),
		account.PositionCount,
		account.TotalDepositedUSD.String(),
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save smart account: %w", err)
	}

	return nil
}

func scanSmartAccount(row pgx.Row) (*models.SmartAccount, error) {
	var (
		account               models.SmartAccount
		idStr, registryStr    string
		totalDepositedUSDText string
	)

	err := row.Scan(
		&idStr,
		&registryStr,
		&account.PositionCount,
		&totalDepositedUSDText,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.ID = common.HexToAddress(idStr)
	account.RegistryID = common.HexToAddress(registryStr)
	if account.TotalDepositedUSD, err = parseDecimal(totalDepositedUSDText); err != nil {
		return nil, err
	}

	return &account, nil
}
