package service

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/position-scanner/internal/logging"
	"github.com/position-scanner/internal/models"
)

// Updater is the single entry point for recomputing rollups after a position
// mutation: the daily pass settles the day bucket, then the live pass
// refreshes the current totals. One deployment indexes one registry, so a
// process-wide mutex is enough to serialize updates.
type Updater struct {
	mu         sync.Mutex
	registries RegistryStore
	registry   common.Address
	daily      *DailyAggregator
	live       *LiveAggregator
	logger     *logging.Logger
}

// NewUpdater creates the update orchestrator for the well-known registry.
func NewUpdater(registries RegistryStore, registry common.Address, daily *DailyAggregator, live *LiveAggregator, logger *logging.Logger) *Updater {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Updater{
		registries: registries,
		registry:   registry,
		daily:      daily,
		live:       live,
		logger:     logger,
	}
}

// OnUpdate runs both aggregation passes at the given block timestamp. A
// missing registry or one without positions is a no-op, not an error: events
// can arrive before the registry has anything to roll up.
func (u *Updater) OnUpdate(ctx context.Context, timestamp int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	registry, err := u.registries.Get(ctx, u.registry)
	if err != nil {
		return err
	}
	if registry == nil || registry.PositionCount == 0 {
		return nil
	}

	dayID := models.DayID(timestamp)
	dayStart := models.DayStart(dayID)

	if err := u.daily.AggregateDaily(ctx, registry, timestamp, dayID, dayStart); err != nil {
		return err
	}

	return u.live.AggregateLive(ctx, registry, dayID, timestamp)
}
