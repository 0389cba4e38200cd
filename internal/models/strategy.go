package models

import "github.com/ethereum/go-ethereum/common"

// Strategy describes an implementation registered on the registry. Created
// by StrategyAdded; later events assume the row exists.
type Strategy struct {
	ID             int64          `json:"id" db:"id"`
	RegistryID     common.Address `json:"registryId" db:"registry_id"`
	Implementation common.Address `json:"implementation" db:"implementation"`
	FeePolicy      common.Address `json:"feePolicy" db:"fee_policy"`
	IsActive       bool           `json:"isActive" db:"is_active"`
}
