package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SyncStatusRepository tracks the log poller's progress. One row exists per
// chain name; the poller resumes from last_processed_block + 1 after a
// restart.
type SyncStatusRepository struct {
	db *PostgresDB
}

// NewSyncStatusRepository creates a new sync status repository
func NewSyncStatusRepository(db *PostgresDB) *SyncStatusRepository {
	return &SyncStatusRepository{db: db}
}

// LastProcessedBlock returns the highest fully processed block for a chain.
// The second return value reports whether a row existed.
func (r *SyncStatusRepository) LastProcessedBlock(ctx context.Context, chain string) (uint64, bool, error) {
	query := `SELECT last_processed_block FROM sync_status WHERE chain = $1`

	var block uint64
	err := r.db.Pool().QueryRow(ctx, query, chain).Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get sync status: %w", err)
	}

	return block, true, nil
}

// SetLastProcessedBlock records the highest fully processed block for a
// chain.
func (r *SyncStatusRepository) SetLastProcessedBlock(ctx context.Context, chain string, block uint64) error {
	query := `
		INSERT INTO sync_status (chain, last_processed_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain)
		DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query, chain, block, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}
