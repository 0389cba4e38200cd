package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/position-scanner/internal/models"
)

// PositionRepository handles position persistence
type PositionRepository struct {
	db *PostgresDB
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *PostgresDB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `
	id, owner_id, strategy_id, created_at, opened_at, closed_at, tx_count,
	asset, borrow_token, price_per_share, total_allocated,
	total_deposited, total_deposited_usd, total_borrowed, total_borrowed_usd,
	is_outdated, updated_at
`

// Get retrieves a position by address. Returns (nil, nil) when no row exists.
func (r *PositionRepository) Get(ctx context.Context, id common.Address) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	position, err := scanPosition(r.db.Pool().QueryRow(ctx, query, addressText(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	return position, nil
}

// ListByOwner retrieves every position deployed for an owner account, in
// deployment order.
func (r *PositionRepository) ListByOwner(ctx context.Context, ownerID common.Address) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE owner_id = $1 ORDER BY created_at, id`

	rows, err := r.db.Pool().Query(ctx, query, addressText(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// ListAddresses retrieves every known position contract address. The log
// poller filters on these.
func (r *PositionRepository) ListAddresses(ctx context.Context) ([]common.Address, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM positions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list position addresses: %w", err)
	}
	defer rows.Close()

	var addresses []common.Address
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan position address: %w", err)
		}
		addresses = append(addresses, common.HexToAddress(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position addresses: %w", err)
	}

	return addresses, nil
}

// Save inserts or updates a position row
func (r *PositionRepository) Save(ctx context.Context, position *models.Position) error {
	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id)
		DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			strategy_id = EXCLUDED.strategy_id,
			opened_at = EXCLUDED.opened_at,
			closed_at = EXCLUDED.closed_at,
			tx_count = EXCLUDED.tx_count,
			asset = EXCLUDED.asset,
			borrow_token = EXCLUDED.borrow_token,
			price_per_share = EXCLUDED.price_per_share,
			total_allocated = EXCLUDED.total_allocated,
			total_deposited = EXCLUDED.total_deposited,
			total_deposited_usd = EXCLUDED.total_deposited_usd,
			total_borrowed = EXCLUDED.total_borrowed,
			total_borrowed_usd = EXCLUDED.total_borrowed_usd,
			is_outdated = EXCLUDED.is_outdated,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		addressText(position.ID),
		addressText(position.OwnerID),
		position.StrategyID,
		position.CreatedAt,
		position.OpenedAt,
		position.ClosedAt,
		position.TxCount,
		addressText(position.Asset),
		addressText(position.BorrowToken),
		bigIntText(position.PricePerShare),
		bigIntText(position.TotalAllocated),
		bigIntText(position.TotalDeposited),
		position.TotalDepositedUSD.String(),
		bigIntText(position.TotalBorrowed),
		position.TotalBorrowedUSD.String(),
		position.IsOutdated,
		position.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	return nil
}

func scanPosition(row pgx.Row) (*models.Position, error) {
	var (
		position               models.Position
		idStr, ownerStr        string
		assetStr, borrowStr    string
		ppsText, allocatedText string
		depositedText          string
		depositedUSDText       string
		borrowedText           string
		borrowedUSDText        string
	)

	err := row.Scan(
		&idStr,
		&ownerStr,
		&position.StrategyID,
		&position.CreatedAt,
		&position.OpenedAt,
		&position.ClosedAt,
		&position.TxCount,
		&assetStr,
		&borrowStr,
		&ppsText,
		&allocatedText,
		&depositedText,
		&depositedUSDText,
		&borrowedText,
		&borrowedUSDText,
		&position.IsOutdated,
		&position.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	position.ID = common.HexToAddress(idStr)
	position.OwnerID = common.HexToAddress(ownerStr)
	position.Asset = common.HexToAddress(assetStr)
	position.BorrowToken = common.HexToAddress(borrowStr)

	if position.PricePerShare, err = parseBigInt(ppsText); err != nil {
		return nil, err
	}
	if position.TotalAllocated, err = parseBigInt(allocatedText); err != nil {
		return nil, err
	}
	if position.TotalDeposited, err = parseBigInt(depositedText); err != nil {
		return nil, err
	}
	if position.TotalDepositedUSD, err = parseDecimal(depositedUSDText); err != nil {
		return nil, err
	}
	if position.TotalBorrowed, err = parseBigInt(borrowedText); err != nil {
		return nil, err
	}
	if position.TotalBorrowedUSD, err = parseDecimal(borrowedUSDText); err != nil {
		return nil, err
	}

	return &position, nil
}
