package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PositionPhase is the lifecycle phase of a position, derived from its
// openedAt/closedAt timestamps. The three phases are mutually exclusive.
type PositionPhase string

const (
	PhaseNeverOpened PositionPhase = "never_opened" // openedAt == 0 && closedAt == 0
	PhaseOpen        PositionPhase = "open"         // openedAt > 0 && closedAt == 0
	PhaseClosed      PositionPhase = "closed"       // openedAt > 0 && closedAt > 0
)

// Position is a single financial allocation instance. Rows are reused across
// open/close cycles: closing resets the balance fields to zero but keeps the
// row.
type Position struct {
	ID                common.Address  `json:"id" db:"id"`
	OwnerID           common.Address  `json:"ownerId" db:"owner_id"`
	StrategyID        int64           `json:"strategyId" db:"strategy_id"`
	CreatedAt         int64           `json:"createdAt" db:"created_at"`
	OpenedAt          int64           `json:"openedAt" db:"opened_at"`
	ClosedAt          int64           `json:"closedAt" db:"closed_at"`
	TxCount           int64           `json:"txCount" db:"tx_count"`
	Asset             common.Address  `json:"asset" db:"asset"`
	BorrowToken       common.Address  `json:"borrowToken" db:"borrow_token"`
	PricePerShare     *big.Int        `json:"pricePerShare" db:"price_per_share"`
	TotalAllocated    *big.Int        `json:"totalAllocated" db:"total_allocated"`
	TotalDeposited    *big.Int        `json:"totalDeposited" db:"total_deposited"`
	TotalDepositedUSD decimal.Decimal `json:"totalDepositedUSD" db:"total_deposited_usd"`
	TotalBorrowed     *big.Int        `json:"totalBorrowed" db:"total_borrowed"`
	TotalBorrowedUSD  decimal.Decimal `json:"totalBorrowedUSD" db:"total_borrowed_usd"`
	IsOutdated        bool            `json:"isOutdated" db:"is_outdated"`
	UpdatedAt         int64           `json:"updatedAt" db:"updated_at"`
}

// NewPosition returns a freshly deployed position with zero defaults.
func NewPosition(id, owner common.Address, strategyID, timestamp int64) *Position {
	return &Position{
		ID:                id,
		OwnerID:           owner,
		StrategyID:        strategyID,
		CreatedAt:         timestamp,
		UpdatedAt:         timestamp,
		PricePerShare:     new(big.Int),
		TotalAllocated:    new(big.Int),
		TotalDeposited:    new(big.Int),
		TotalDepositedUSD: decimal.Zero,
		TotalBorrowed:     new(big.Int),
		TotalBorrowedUSD:  decimal.Zero,
	}
}

// Phase derives the lifecycle phase from the timestamps.
func (p *Position) Phase() PositionPhase {
	switch {
	case p.OpenedAt == 0 && p.ClosedAt == 0:
		return PhaseNeverOpened
	case p.ClosedAt == 0:
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

// IsEligible reports whether the position contributes to rollups: it must be
// open and carry a strictly positive deposit. Ineligible positions are
// skipped entirely by both aggregation passes, never zero-summed.
func (p *Position) IsEligible() bool {
	return p.OpenedAt > 0 && p.ClosedAt == 0 && p.TotalDeposited != nil && p.TotalDeposited.Sign() > 0
}

// ResetOnClose zeroes the balance fields when the position is closed. The
// row itself survives for the next open cycle.
func (p *Position) ResetOnClose(timestamp int64) {
	p.ClosedAt = timestamp
	p.UpdatedAt = timestamp
	p.TxCount = 0
	p.Asset = common.Address{}
	p.BorrowToken = common.Address{}
	p.PricePerShare = new(big.Int)
	p.TotalDeposited = new(big.Int)
	p.TotalDepositedUSD = decimal.Zero
	p.TotalBorrowed = new(big.Int)
	p.TotalBorrowedUSD = decimal.Zero
}
