// Package models defines the persisted entities of the position scanner:
// the registry/account/position hierarchy and its daily snapshot records.
package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SecondsPerDay is the width of a snapshot day bucket.
const SecondsPerDay int64 = 86400

// Registry is the root entity of a deployment. One row exists per deployed
// registry contract; it is created on the first OwnershipTransferred event.
type Registry struct {
	ID                common.Address  `json:"id" db:"id"`
	Owner             common.Address  `json:"owner" db:"owner"`
	FeeCollector      common.Address  `json:"feeCollector" db:"fee_collector"`
	PositionCount     int64           `json:"positionCount" db:"position_count"`
	SmartAccountCount int64           `json:"smartAccountCount" db:"smart_account_count"`
	TotalDepositedUSD decimal.Decimal `json:"totalDepositedUSD" db:"total_deposited_usd"`
	UpdatedAt         int64           `json:"updatedAt" db:"updated_at"`
}

// NewRegistry returns a registry with zero-valued rollups.
func NewRegistry(id common.Address, timestamp int64) *Registry {
	return &Registry{
		ID:                id,
		TotalDepositedUSD: decimal.Zero,
		UpdatedAt:         timestamp,
	}
}

// DayID returns the day bucket containing timestamp.
func DayID(timestamp int64) int64 {
	return timestamp / SecondsPerDay
}

// DayStart returns the first second of the given day bucket.
func DayStart(dayID int64) int64 {
	return dayID * SecondsPerDay
}
