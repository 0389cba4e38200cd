package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/position-scanner/internal/logging"
	"github.com/position-scanner/internal/models"
)

// DailyAggregator materializes one immutable snapshot row per entity per day
// bucket. Rows are create-once: the first event of a day settles the whole
// subtree and later events leave every row untouched.
type DailyAggregator struct {
	accounts  SmartAccountStore
	positions PositionStore
	daily     DailyDataStore
	valuer    Valuer
	logger    *logging.Logger
}

// NewDailyAggregator creates a daily snapshot aggregator.
func NewDailyAggregator(accounts SmartAccountStore, positions PositionStore, daily DailyDataStore, valuer Valuer, logger *logging.Logger) *DailyAggregator {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &DailyAggregator{
		accounts:  accounts,
		positions: positions,
		daily:     daily,
		valuer:    valuer,
		logger:    logger,
	}
}

// AggregateDaily settles the day bucket for a registry subtree. The
// registry-level row doubles as the idempotency gate: when it already exists
// for this day the whole call is a no-op, before any child traversal.
func (a *DailyAggregator) AggregateDaily(ctx context.Context, registry *models.Registry, timestamp, dayID, dayStart int64) error {
	registryDailyID := models.DailyDataID(registry.ID, dayID)

	existing, err := a.daily.GetRegistryDaily(ctx, registryDailyID)
	if err != nil {
		return err
	}
	if existing != nil && existing.DayStartTimestamp == dayStart {
		return nil
	}

	accounts, err := a.accounts.ListByRegistry(ctx, registry.ID)
	if err != nil {
		return err
	}

	registryTotal := decimal.Zero
	for _, account := range accounts {
		accountTotal, err := a.settleAccount(ctx, account, timestamp, dayID, dayStart)
		if err != nil {
			return err
		}
		registryTotal = registryTotal.Add(accountTotal)
	}

	registryRow := &models.RegistryDailyData{
		ID:                registryDailyID,
		RegistryID:        registry.ID,
		DayStartTimestamp: dayStart,
		CreatedAt:         timestamp,
		PositionCount:     registry.PositionCount,
		SmartAccountCount: registry.SmartAccountCount,
		TotalDepositedUSD: registryTotal,
	}
	if err := a.daily.InsertRegistryDaily(ctx, registryRow); err != nil {
		return err
	}

	a.logger.WithFields(map[string]interface{}{
		"registry":  registry.ID.Hex(),
		"day_id":    dayID,
		"total_usd": registryTotal.String(),
	}).Info("Settled daily snapshot")

	return nil
}

// settleAccount snapshots every eligible position under an account and
// returns the account-level total that feeds the registry row.
func (a *DailyAggregator) settleAccount(ctx context.Context, account *models.SmartAccount, timestamp, dayID, dayStart int64) (decimal.Decimal, error) {
	accountDailyID := models.DailyDataID(account.ID, dayID)

	positions, err := a.positions.ListByOwner(ctx, account.ID)
	if err != nil {
		return decimal.Zero, err
	}

	eligible := lo.Filter(positions, func(p *models.Position, _ int) bool {
		return p.IsEligible()
	})

	accountTotal := decimal.Zero
	for _, position := range eligible {
		row, err := a.settlePosition(ctx, position, timestamp, dayID, dayStart)
		if err != nil {
			return decimal.Zero, err
		}
		accountTotal = accountTotal.Add(row.TotalDepositedUSD)
	}

	existing, err := a.daily.GetSmartAccountDaily(ctx, accountDailyID)
	if err != nil {
		return decimal.Zero, err
	}
	if existing != nil {
		return existing.TotalDepositedUSD, nil
	}

	accountRow := &models.SmartAccountDailyData{
		ID:                accountDailyID,
		SmartAccountID:    account.ID,
		DayStartTimestamp: dayStart,
		CreatedAt:         timestamp,
		TotalDepositedUSD: accountTotal,
	}
	if err := a.daily.InsertSmartAccountDaily(ctx, accountRow); err != nil {
		return decimal.Zero, err
	}

	return accountTotal, nil
}

// settlePosition returns the position's snapshot row for the day, creating
// it on first sight. When the position was valued at exactly this timestamp
// its stored USD fields are reused; otherwise both sides are revalued.
func (a *DailyAggregator) settlePosition(ctx context.Context, position *models.Position, timestamp, dayID, dayStart int64) (*models.PositionDailyData, error) {
	positionDailyID := models.DailyDataID(position.ID, dayID)

	existing, err := a.daily.GetPositionDaily(ctx, positionDailyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	depositedUSD := position.TotalDepositedUSD
	borrowedUSD := position.TotalBorrowedUSD
	if timestamp != position.UpdatedAt {
		if depositedUSD, err = a.valuer.ValueInUSD(ctx, position.Asset, position.TotalDeposited); err != nil {
			return nil, fmt.Errorf("failed to value deposit of %s: %w", position.ID.Hex(), err)
		}
		if borrowedUSD, err = a.valuer.ValueInUSD(ctx, position.BorrowToken, position.TotalBorrowed); err != nil {
			return nil, fmt.Errorf("failed to value borrow of %s: %w", position.ID.Hex(), err)
		}
	}

	row := &models.PositionDailyData{
		ID:                positionDailyID,
		PositionID:        position.ID,
		DayStartTimestamp: dayStart,
		CreatedAt:         timestamp,
		PricePerShare:     position.PricePerShare,
		TotalDeposited:    position.TotalDeposited,
		TotalDepositedUSD: depositedUSD,
		TotalBorrowed:     position.TotalBorrowed,
		TotalBorrowedUSD:  borrowedUSD,
	}
	if err := a.daily.InsertPositionDaily(ctx, row); err != nil {
		return nil, err
	}

	return row, nil
}
