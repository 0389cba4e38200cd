package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DailyDataID keys one snapshot record per (entity, day bucket) pair:
// lowercase hex address, a dash, then the decimal day id. The dash keeps the
// mapping injective across entities.
func DailyDataID(entityID common.Address, dayID int64) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(entityID.Hex()), dayID)
}

// RegistryDailyData is the registry-level snapshot for one day bucket.
// Snapshot rows are create-once: they are never mutated after their first
// save, and the existence of the registry-level row marks the whole subtree
// as settled for that day.
type RegistryDailyData struct {
	ID                string          `json:"id" db:"id"`
	RegistryID        common.Address  `json:"registryId" db:"registry_id"`
	DayStartTimestamp int64           `json:"dayStartTimestamp" db:"day_start_timestamp"`
	CreatedAt         int64           `json:"createdAt" db:"created_at"`
	PositionCount     int64           `json:"positionCount" db:"position_count"`
	SmartAccountCount int64           `json:"smartAccountCount" db:"smart_account_count"`
	TotalDepositedUSD decimal.Decimal `json:"totalDepositedUSD" db:"total_deposited_usd"`
}

// SmartAccountDailyData is the account-level snapshot for one day bucket.
type SmartAccountDailyData struct {
	ID                string          `json:"id" db:"id"`
	SmartAccountID    common.Address  `json:"smartAccountId" db:"smart_account_id"`
	DayStartTimestamp int64           `json:"dayStartTimestamp" db:"day_start_timestamp"`
	CreatedAt         int64           `json:"createdAt" db:"created_at"`
	TotalDepositedUSD decimal.Decimal `json:"totalDepositedUSD" db:"total_deposited_usd"`
}

// PositionDailyData is the position-level snapshot for one day bucket. Only
// eligible positions ever get a row.
type PositionDailyData struct {
	ID                string          `json:"id" db:"id"`
	PositionID        common.Address  `json:"positionId" db:"position_id"`
	DayStartTimestamp int64           `json:"dayStartTimestamp" db:"day_start_timestamp"`
	CreatedAt         int64           `json:"createdAt" db:"created_at"`
	PricePerShare     *big.Int        `json:"pricePerShare" db:"price_per_share"`
	TotalDeposited    *big.Int        `json:"totalDeposited" db:"total_deposited"`
	TotalDepositedUSD decimal.Decimal `json:"totalDepositedUSD" db:"total_deposited_usd"`
	TotalBorrowed     *big.Int        `json:"totalBorrowed" db:"total_borrowed"`
	TotalBorrowedUSD  decimal.Decimal `json:"totalBorrowedUSD" db:"total_borrowed_usd"`
}
