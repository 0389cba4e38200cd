package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SmartAccount groups the positions deployed for a single owner address.
// It is created lazily on the first PositionDeployed event for that owner.
// RegistryID stays the zero address until the account is activated under a
// registry; that first activation also bumps the registry's account count.
type SmartAccount struct {
	ID                common.Address  `json:"id" db:"id"`
	RegistryID        common.Address  `json:"registryId" db:"registry_id"`
	PositionCount     int64           `json:"positionCount" db:"position_count"`
	TotalDepositedUSD decimal.Decimal `json:"totalDepositedUSD" db:"total_deposited_usd"`
	UpdatedAt         int64           `json:"updatedAt" db:"updated_at"`
}

// NewSmartAccount returns an account with documented zero defaults.
func NewSmartAccount(id common.Address, timestamp int64) *SmartAccount {
	return &SmartAccount{
		ID:                id,
		RegistryID:        common.Address{},
		TotalDepositedUSD: decimal.Zero,
		UpdatedAt:         timestamp,
	}
}

// Activated reports whether the account has been linked to a registry.
func (a *SmartAccount) Activated() bool {
	return a.RegistryID != (common.Address{})
}
