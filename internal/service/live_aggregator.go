package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/position-scanner/internal/logging"
	"github.com/position-scanner/internal/models"
)

// LiveAggregator recomputes the live USD rollups bottom-up after every
// position mutation. Unlike the daily pass it runs unconditionally: live
// totals always reflect the latest event.
type LiveAggregator struct {
	registries RegistryStore
	accounts   SmartAccountStore
	positions  PositionStore
	daily      DailyDataStore
	valuer     Valuer
	logger     *logging.Logger
}

// NewLiveAggregator creates a live rollup aggregator.
func NewLiveAggregator(registries RegistryStore, accounts SmartAccountStore, positions PositionStore, daily DailyDataStore, valuer Valuer, logger *logging.Logger) *LiveAggregator {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LiveAggregator{
		registries: registries,
		accounts:   accounts,
		positions:  positions,
		daily:      daily,
		valuer:     valuer,
		logger:     logger,
	}
}

// AggregateLive refreshes every eligible position's USD values and sums them
// into the account and registry rows. Ineligible positions are skipped and
// never mutated.
func (a *LiveAggregator) AggregateLive(ctx context.Context, registry *models.Registry, dayID, timestamp int64) error {
	accounts, err := a.accounts.ListByRegistry(ctx, registry.ID)
	if err != nil {
		return err
	}

	accountTotals := make([]decimal.Decimal, 0, len(accounts))
	for _, account := range accounts {
		total, err := a.refreshAccount(ctx, account, dayID, timestamp)
		if err != nil {
			return err
		}
		accountTotals = append(accountTotals, total)
	}

	registry.TotalDepositedUSD = sumDecimals(accountTotals)
	registry.UpdatedAt = timestamp
	if err := a.registries.Save(ctx, registry); err != nil {
		return err
	}

	a.logger.WithFields(map[string]interface{}{
		"registry":  registry.ID.Hex(),
		"total_usd": registry.TotalDepositedUSD.String(),
	}).Debug("Refreshed live rollups")

	return nil
}

// refreshAccount revalues the account's eligible positions and persists the
// account-level sum.
func (a *LiveAggregator) refreshAccount(ctx context.Context, account *models.SmartAccount, dayID, timestamp int64) (decimal.Decimal, error) {
	positions, err := a.positions.ListByOwner(ctx, account.ID)
	if err != nil {
		return decimal.Zero, err
	}

	totals := make([]decimal.Decimal, 0, len(positions))
	for _, position := range positions {
		if !position.IsEligible() {
			continue
		}
		if err := a.refreshPosition(ctx, position, dayID, timestamp); err != nil {
			return decimal.Zero, err
		}
		totals = append(totals, position.TotalDepositedUSD)
	}

	account.TotalDepositedUSD = sumDecimals(totals)
	account.UpdatedAt = timestamp
	if err := a.accounts.Save(ctx, account); err != nil {
		return decimal.Zero, err
	}

	return account.TotalDepositedUSD, nil
}

// refreshPosition revalues one position. When the day's snapshot row was
// created at exactly this timestamp its USD values are reused instead of
// issuing fresh price reads: the snapshot already priced this very moment.
func (a *LiveAggregator) refreshPosition(ctx context.Context, position *models.Position, dayID, timestamp int64) error {
	snapshot, err := a.daily.GetPositionDaily(ctx, models.DailyDataID(position.ID, dayID))
	if err != nil {
		return err
	}

	if snapshot != nil && snapshot.CreatedAt == timestamp {
		position.TotalDepositedUSD = snapshot.TotalDepositedUSD
		position.TotalBorrowedUSD = snapshot.TotalBorrowedUSD
	} else {
		if position.TotalDepositedUSD, err = a.valuer.ValueInUSD(ctx, position.Asset, position.TotalDeposited); err != nil {
			return fmt.Errorf("failed to value deposit of %s: %w", position.ID.Hex(), err)
		}
		if position.TotalBorrowedUSD, err = a.valuer.ValueInUSD(ctx, position.BorrowToken, position.TotalBorrowed); err != nil {
			return fmt.Errorf("failed to value borrow of %s: %w", position.ID.Hex(), err)
		}
	}

	position.UpdatedAt = timestamp
	return a.positions.Save(ctx, position)
}

func sumDecimals(values []decimal.Decimal) decimal.Decimal {
	return lo.Reduce(values, func(acc decimal.Decimal, v decimal.Decimal, _ int) decimal.Decimal {
		return acc.Add(v)
	}, decimal.Zero)
}
