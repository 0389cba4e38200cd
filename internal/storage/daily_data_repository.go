package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/position-scanner/internal/models"
)

// DailyDataRepository handles the three daily snapshot tables. Snapshot rows
// are create-once: every insert uses ON CONFLICT DO NOTHING so a row that
// already exists is never overwritten.
type DailyDataRepository struct {
	db *PostgresDB
}

// NewDailyDataRepository creates a new daily data repository
func NewDailyDataRepository(db *PostgresDB) *DailyDataRepository {
	return &DailyDataRepository{db: db}
}

// GetRegistryDaily retrieves a registry snapshot by id. Returns (nil, nil)
// when no row exists.
func (r *DailyDataRepository) GetRegistryDaily(ctx context.Context, id string) (*models.RegistryDailyData, error) {
	query := `
		SELECT id, registry_id, day_start_timestamp, created_at,
			   position_count, smart_account_count, total_deposited_usd
		FROM registry_daily_data
		WHERE id = $1
	`

	row, err := scanRegistryDaily(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get registry daily data: %w", err)
	}

	return row, nil
}

// InsertRegistryDaily persists a registry snapshot if it does not exist yet.
func (r *DailyDataRepository) InsertRegistryDaily(ctx context.Context, data *models.RegistryDailyData) error {
	query := `
		INSERT INTO registry_daily_data (
			id, registry_id, day_start_timestamp, created_at,
			position_count, smart_account_count, total_deposited_usd
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		data.ID,
		addressText(data.RegistryID),
		data.DayStartTimestamp,
		data.CreatedAt,
		data.PositionCount,
		data.SmartAccountCount,
		data.TotalDepositedUSD.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert registry daily data: %w", err)
	}

	return nil
}

// ListRegistryDailyRange retrieves registry snapshots whose day bucket starts
// within [from, to], oldest first.
func (r *DailyDataRepository) ListRegistryDailyRange(ctx context.Context, registryID common.Address, from, to int64) ([]*models.RegistryDailyData, error) {
	query := `
		SELECT id, registry_id, day_start_timestamp, created_at,
			   position_count, smart_account_count, total_deposited_usd
		FROM registry_daily_data
		WHERE registry_id = $1 AND day_start_timestamp BETWEEN $2 AND $3
		ORDER BY day_start_timestamp
	`

	rows, err := r.db.Pool().Query(ctx, query, addressText(registryID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry daily data: %w", err)
	}
	defer rows.Close()

	var result []*models.RegistryDailyData
	for rows.Next() {
		data, err := scanRegistryDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registry daily data: %w", err)
		}
		result = append(result, data)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registry daily data: %w", err)
	}

	return result, nil
}

// GetSmartAccountDaily retrieves an account snapshot by id. Returns
// (nil, nil) when no row exists.
func (r *DailyDataRepository) GetSmartAccountDaily(ctx context.Context, id string) (*models.SmartAccountDailyData, error) {
	query := `
		SELECT id, smart_account_id, day_start_timestamp, created_at, total_deposited_usd
		FROM smart_account_daily_data
		WHERE id = $1
	`

	row, err := scanSmartAccountDaily(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get smart account daily data: %w", err)
	}

	return row, nil
}

// InsertSmartAccountDaily persists an account snapshot if it does not exist
// yet.
func (r *DailyDataRepository) InsertSmartAccountDaily(ctx context.Context, data *models.SmartAccountDailyData) error {
	query := `
		INSERT INTO smart_account_daily_data (
			id, smart_account_id, day_start_timestamp, created_at, total_deposited_usd
		)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		data.ID,
		addressText(data.SmartAccountID),
		data.DayStartTimestamp,
		data.CreatedAt,
		data.TotalDepositedUSD.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert smart account daily data: %w", err)
	}

	return nil
}

// ListSmartAccountDailyRange retrieves account snapshots whose day bucket
// starts within [from, to], oldest first.
func (r *DailyDataRepository) ListSmartAccountDailyRange(ctx context.Context, accountID common.Address, from, to int64) ([]*models.SmartAccountDailyData, error) {
	query := `
		SELECT id, smart_account_id, day_start_timestamp, created_at, total_deposited_usd
		FROM smart_account_daily_data
		WHERE smart_account_id = $1 AND day_start_timestamp BETWEEN $2 AND $3
		ORDER BY day_start_timestamp
	`

	rows, err := r.db.Pool().Query(ctx, query, addressText(accountID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list smart account daily data: %w", err)
	}
	defer rows.Close()

	var result []*models.SmartAccountDailyData
	for rows.Next() {
		data, err := scanSmartAccountDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan smart account daily data: %w", err)
		}
		result = append(result, data)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating smart account daily data: %w", err)
	}

	return result, nil
}

// GetPositionDaily retrieves a position snapshot by id. Returns (nil, nil)
// when no row exists.
func (r *DailyDataRepository) GetPositionDaily(ctx context.Context, id string) (*models.PositionDailyData, error) {
	query := `
		SELECT id, position_id, day_start_timestamp, created_at,
			   price_per_share, total_deposited, total_deposited_usd,
			   total_borrowed, total_borrowed_usd
		FROM position_daily_data
		WHERE id = $1
	`

	row, err := scanPositionDaily(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get position daily data: %w", err)
	}

	return row, nil
}

// InsertPositionDaily persists a position snapshot if it does not exist yet.
func (r *DailyDataRepository) InsertPositionDaily(ctx context.Context, data *models.PositionDailyData) error {
	query := `
		INSERT INTO position_daily_data (
			id, position_id, day_start_timestamp, created_at,
			price_per_share, total_deposited, total_deposited_usd,
			total_borrowed, total_borrowed_usd
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		data.ID,
		addressText(data.PositionID),
		data.DayStartTimestamp,
		data.CreatedAt,
		bigIntText(data.PricePerShare),
		bigIntText(data.TotalDeposited),
		data.TotalDepositedUSD.String(),
		bigIntText(data.TotalBorrowed),
		data.TotalBorrowedUSD.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position daily data: %w", err)
	}

	return nil
}

// ListPositionDailyRange retrieves position snapshots whose day bucket starts
// within [from, to], oldest first.
func (r *DailyDataRepository) ListPositionDailyRange(ctx context.Context, positionID common.Address, from, to int64) ([]*models.PositionDailyData, error) {
	query := `
		SELECT id, position_id, day_start_timestamp, created_at,
			   price_per_share, total_deposited, total_deposited_usd,
			   total_borrowed, total_borrowed_usd
		FROM position_daily_data
		WHERE position_id = $1 AND day_start_timestamp BETWEEN $2 AND $3
		ORDER BY day_start_timestamp
	`

	rows, err := r.db.Pool().Query(ctx, query, addressText(positionID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list position daily data: %w", err)
	}
	defer rows.Close()

	var result []*models.PositionDailyData
	for rows.Next() {
		data, err := scanPositionDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position daily data: %w", err)
		}
		result = append(result, data)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position daily data: %w", err)
	}

	return result, nil
}

func scanRegistryDaily(row pgx.Row) (*models.RegistryDailyData, error) {
	var (
		data             models.RegistryDailyData
		registryStr      string
		depositedUSDText string
	)

	err := row.Scan(
		&data.ID,
		&registryStr,
		&data.DayStartTimestamp,
		&data.CreatedAt,
		&data.PositionCount,
		&data.SmartAccountCount,
		&depositedUSDText,
	)
	if err != nil {
		return nil, err
	}

	data.RegistryID = common.HexToAddress(registryStr)
	if data.TotalDepositedUSD, err = parseDecimal(depositedUSDText); err != nil {
		return nil, err
	}

	return &data, nil
}

func scanSmartAccountDaily(row pgx.Row) (*models.SmartAccountDailyData, error) {
	var (
		data             models.SmartAccountDailyData
		accountStr       string
		depositedUSDText string
	)

	err := row.Scan(
		&data.ID,
		&accountStr,
		&data.DayStartTimestamp,
		&data.CreatedAt,
		&depositedUSDText,
	)
	if err != nil {
		return nil, err
	}

	data.SmartAccountID = common.HexToAddress(accountStr)
	if data.TotalDepositedUSD, err = parseDecimal(depositedUSDText); err != nil {
		return nil, err
	}

	return &data, nil
}

func scanPositionDaily(row pgx.Row) (*models.PositionDailyData, error) {
	var (
		data             models.PositionDailyData
		positionStr      string
		ppsText          string
		depositedText    string
		depositedUSDText string
		borrowedText     string
		borrowedUSDText  string
	)

	err := row.Scan(
		&data.ID,
		&positionStr,
		&data.DayStartTimestamp,
		&data.CreatedAt,
		&ppsText,
		&depositedText,
		&depositedUSDText,
		&borrowedText,
		&borrowedUSDText,
	)
	if err != nil {
		return nil, err
	}

	data.PositionID = common.HexToAddress(positionStr)
	if data.PricePerShare, err = parseBigInt(ppsText); err != nil {
		return nil, err
	}
	if data.TotalDeposited, err = parseBigInt(depositedText); err != nil {
		return nil, err
	}
	if data.TotalDepositedUSD, err = parseDecimal(depositedUSDText); err != nil {
		return nil, err
	}
	if data.TotalBorrowed, err = parseBigInt(borrowedText); err != nil {
		return nil, err
	}
	if data.TotalBorrowedUSD, err = parseDecimal(borrowedUSDText); err != nil {
		return nil, err
	}

	return &data, nil
}
