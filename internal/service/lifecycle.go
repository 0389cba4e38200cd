package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/position-scanner/internal/chain"
	apperrors "github.com/position-scanner/internal/errors"
	"github.com/position-scanner/internal/logging"
	"github.com/position-scanner/internal/models"
)

// Lifecycle applies decoded contract events to the entity graph. Registry
// events are accepted only from the configured registry address; position
// events only from addresses a PositionDeployed event introduced earlier.
// Events from any other contract are skipped.
type Lifecycle struct {
	registries RegistryStore
	accounts   SmartAccountStore
	positions  PositionStore
	strategies StrategyStore
	reader     ContractReader
	valuer     Valuer
	updater    *Updater
	registry   common.Address
	logger     *logging.Logger
}

// NewLifecycle creates the event handler set for one registry deployment.
func NewLifecycle(
	registries RegistryStore,
	accounts SmartAccountStore,
	positions PositionStore,
	strategies StrategyStore,
	reader ContractReader,
	valuer Valuer,
	updater *Updater,
	registry common.Address,
	logger *logging.Logger,
) *Lifecycle {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Lifecycle{
		registries: registries,
		accounts:   accounts,
		positions:  positions,
		strategies: strategies,
		reader:     reader,
		valuer:     valuer,
		updater:    updater,
		registry:   registry,
		logger:     logger,
	}
}

// HandleEvent dispatches one decoded event to its handler.
func (l *Lifecycle) HandleEvent(ctx context.Context, event *chain.Event) error {
	switch {
	case event.OwnershipTransferred != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handleOwnershipTransferred(ctx, event)
	case event.FeeCollectorUpdated != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handleFeeCollectorUpdated(ctx, event)
	case event.PositionDeployed != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handlePositionDeployed(ctx, event)
	case event.StrategyAdded != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handleStrategyAdded(ctx, event)
	case event.IsActiveUpdated != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handleIsActiveUpdated(ctx, event)
	case event.FeePolicyUpdated != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handleFeePolicyUpdated(ctx, event)
	case event.ImplementationUpd != nil:
		if event.Address != l.registry {
			return nil
		}
		return l.handleImplementationUpdated(ctx, event)
	case event.PositionOpened != nil:
		return l.handlePositionOpened(ctx, event)
	case event.PositionClosed != nil:
		return l.handlePositionClosed(ctx, event)
	case event.FeatureCalled != nil:
		return l.handleFeatureCalled(ctx, event)
	default:
		return nil
	}
}

// handleOwnershipTransferred creates the registry row on first sight and
// records the new owner. The fee collector is read from the contract once,
// when the row is created.
func (l *Lifecycle) handleOwnershipTransferred(ctx context.Context, event *chain.Event) error {
	registry, err := l.registries.Get(ctx, event.Address)
	if err != nil {
		return err
	}
	if registry == nil {
		registry = models.NewRegistry(event.Address, event.Timestamp)
		feeCollector, err := l.reader.FeeCollector(ctx, event.Address)
		if err != nil {
			return fmt.Errorf("failed to read fee collector: %w", err)
		}
		registry.FeeCollector = feeCollector
	}

	registry.Owner = event.OwnershipTransferred.NewOwner
	registry.UpdatedAt = event.Timestamp

	return l.registries.Save(ctx, registry)
}

func (l *Lifecycle) handleFeeCollectorUpdated(ctx context.Context, event *chain.Event) error {
	registry, err := l.registries.Get(ctx, event.Address)
	if err != nil {
		return err
	}
	if registry == nil {
		return apperrors.NewMissingEntityError("registry", event.Address.Hex())
	}

	registry.FeeCollector = event.FeeCollectorUpdated.NewFeeCollector
	registry.UpdatedAt = event.Timestamp

	return l.registries.Save(ctx, registry)
}

// handlePositionDeployed lazily creates the owner's smart account, activates
// it under the registry on its first deployment, creates the position row
// with zero defaults and bumps both counters.
func (l *Lifecycle) handlePositionDeployed(ctx context.Context, event *chain.Event) error {
	deployed := event.PositionDeployed

	registry, err := l.registries.Get(ctx, event.Address)
	if err != nil {
		return err
	}
	if registry == nil {
		return apperrors.NewMissingEntityError("registry", event.Address.Hex())
	}

	account, err := l.accounts.Get(ctx, deployed.Owner)
	if err != nil {
		return err
	}
	if account == nil {
		account = models.NewSmartAccount(deployed.Owner, event.Timestamp)
	}
	if !account.Activated() {
		account.RegistryID = registry.ID
		registry.SmartAccountCount++
	}

	account.PositionCount++
	account.UpdatedAt = event.Timestamp
	registry.PositionCount++
	registry.UpdatedAt = event.Timestamp

	position := models.NewPosition(deployed.Position, deployed.Owner, deployed.StrategyID.Int64(), event.Timestamp)

	if err := l.positions.Save(ctx, position); err != nil {
		return err
	}
	if err := l.accounts.Save(ctx, account); err != nil {
		return err
	}
	return l.registries.Save(ctx, registry)
}

func (l *Lifecycle) handleStrategyAdded(ctx context.Context, event *chain.Event) error {
	added := event.StrategyAdded

	return l.strategies.Save(ctx, &models.Strategy{
		ID:             added.StrategyID.Int64(),
		RegistryID:     event.Address,
		Implementation: added.Implementation,
		FeePolicy:      added.FeePolicy,
		IsActive:       true,
	})
}

func (l *Lifecycle) handleIsActiveUpdated(ctx context.Context, event *chain.Event) error {
	strategy, err := l.getStrategy(ctx, event.IsActiveUpdated.StrategyID.Int64())
	if err != nil {
		return err
	}

	strategy.IsActive = event.IsActiveUpdated.IsActive
	return l.strategies.Save(ctx, strategy)
}

func (l *Lifecycle) handleFeePolicyUpdated(ctx context.Context, event *chain.Event) error {
	strategy, err := l.getStrategy(ctx, event.FeePolicyUpdated.StrategyID.Int64())
	if err != nil {
		return err
	}

	strategy.FeePolicy = event.FeePolicyUpdated.NewFeePolicy
	return l.strategies.Save(ctx, strategy)
}

func (l *Lifecycle) handleImplementationUpdated(ctx context.Context, event *chain.Event) error {
	strategy, err := l.getStrategy(ctx, event.ImplementationUpd.StrategyID.Int64())
	if err != nil {
		return err
	}

	strategy.Implementation = event.ImplementationUpd.NewImplementation
	return l.strategies.Save(ctx, strategy)
}

// handlePositionOpened transitions a position into the open phase, reads its
// contract state and values both sides in USD, then triggers the rollups.
// Reopening a previously closed row clears closedAt.
func (l *Lifecycle) handlePositionOpened(ctx context.Context, event *chain.Event) error {
	position, err := l.getPosition(ctx, event.Address)
	if err != nil || position == nil {
		return err
	}

	opened := event.PositionOpened
	position.OpenedAt = event.Timestamp
	position.ClosedAt = 0
	position.UpdatedAt = event.Timestamp
	position.TxCount++
	position.TotalAllocated = opened.Pushed
	position.Asset = opened.Asset

	if err := l.refreshFromContract(ctx, position); err != nil {
		return err
	}
	if err := l.positions.Save(ctx, position); err != nil {
		return err
	}

	return l.updater.OnUpdate(ctx, event.Timestamp)
}

// handlePositionClosed zeroes the position's balances but keeps the row for
// the next open cycle, then triggers the rollups so the closed position
// drops out of every total.
func (l *Lifecycle) handlePositionClosed(ctx context.Context, event *chain.Event) error {
	position, err := l.getPosition(ctx, event.Address)
	if err != nil || position == nil {
		return err
	}

	position.ResetOnClose(event.Timestamp)
	position.TotalAllocated = event.PositionClosed.Pulled

	info, err := l.reader.PositionInfo(ctx, position.ID)
	if err != nil {
		return fmt.Errorf("failed to read position %s: %w", position.ID.Hex(), err)
	}
	position.IsOutdated = info.IsOutdated

	if err := l.positions.Save(ctx, position); err != nil {
		return err
	}

	return l.updater.OnUpdate(ctx, event.Timestamp)
}

func (l *Lifecycle) handleFeatureCalled(ctx context.Context, event *chain.Event) error {
	position, err := l.getPosition(ctx, event.Address)
	if err != nil || position == nil {
		return err
	}

	position.TxCount++
	position.TotalAllocated = event.FeatureCalled.AllocatedAfter
	position.UpdatedAt = event.Timestamp

	if err := l.refreshFromContract(ctx, position); err != nil {
		return err
	}
	if err := l.positions.Save(ctx, position); err != nil {
		return err
	}

	return l.updater.OnUpdate(ctx, event.Timestamp)
}

// refreshFromContract re-reads the position contract state and revalues both
// sides in USD.
func (l *Lifecycle) refreshFromContract(ctx context.Context, position *models.Position) error {
	info, err := l.reader.PositionInfo(ctx, position.ID)
	if err != nil {
		return fmt.Errorf("failed to read position %s: %w", position.ID.Hex(), err)
	}

	position.BorrowToken = info.BorrowToken
	position.PricePerShare = info.PricePerShare
	position.TotalDeposited = info.TotalDeposited
	position.TotalBorrowed = info.TotalBorrowed
	position.IsOutdated = info.IsOutdated

	if position.TotalDepositedUSD, err = l.valuer.ValueInUSD(ctx, position.Asset, position.TotalDeposited); err != nil {
		return fmt.Errorf("failed to value deposit of %s: %w", position.ID.Hex(), err)
	}
	if position.TotalBorrowedUSD, err = l.valuer.ValueInUSD(ctx, position.BorrowToken, position.TotalBorrowed); err != nil {
		return fmt.Errorf("failed to value borrow of %s: %w", position.ID.Hex(), err)
	}

	return nil
}

// getPosition loads a position by contract address. (nil, nil) means the
// address is not one of ours: position-shaped events from foreign contracts
// are skipped, not failed.
func (l *Lifecycle) getPosition(ctx context.Context, id common.Address) (*models.Position, error) {
	position, err := l.positions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if position == nil {
		l.logger.WithField("address", id.Hex()).Debug("Skipping event from unknown position contract")
		return nil, nil
	}
	return position, nil
}

func (l *Lifecycle) getStrategy(ctx context.Context, id int64) (*models.Strategy, error) {
	strategy, err := l.strategies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, apperrors.NewMissingEntityError("strategy", strconv.FormatInt(id, 10))
	}
	return strategy, nil
}
