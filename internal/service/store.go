// Package service implements the aggregation engine: lifecycle event
// handlers, the daily snapshot aggregator, the live aggregator and the
// orchestrator that runs both after every position mutation.
package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/position-scanner/internal/chain"
	"github.com/position-scanner/internal/models"
)

// RegistryStore is the registry persistence surface the engine needs.
// storage.RegistryRepository satisfies it; tests substitute in-memory mocks.
type RegistryStore interface {
	Get(ctx context.Context, id common.Address) (*models.Registry, error)
	Save(ctx context.Context, registry *models.Registry) error
}

// SmartAccountStore is the smart account persistence surface.
type SmartAccountStore interface {
	Get(ctx context.Context, id common.Address) (*models.SmartAccount, error)
	ListByRegistry(ctx context.Context, registryID common.Address) ([]*models.SmartAccount, error)
	Save(ctx context.Context, account *models.SmartAccount) error
}

// PositionStore is the position persistence surface.
type PositionStore interface {
	Get(ctx context.Context, id common.Address) (*models.Position, error)
	ListByOwner(ctx context.Context, ownerID common.Address) ([]*models.Position, error)
	Save(ctx context.Context, position *models.Position) error
}

// StrategyStore is the strategy persistence surface.
type StrategyStore interface {
	Get(ctx context.Context, id int64) (*models.Strategy, error)
	Save(ctx context.Context, strategy *models.Strategy) error
}

// DailyDataStore is the snapshot persistence surface. Inserts are
// create-once: an existing row is left untouched.
type DailyDataStore interface {
	GetRegistryDaily(ctx context.Context, id string) (*models.RegistryDailyData, error)
	InsertRegistryDaily(ctx context.Context, data *models.RegistryDailyData) error
	GetSmartAccountDaily(ctx context.Context, id string) (*models.SmartAccountDailyData, error)
	InsertSmartAccountDaily(ctx context.Context, data *models.SmartAccountDailyData) error
	GetPositionDaily(ctx context.Context, id string) (*models.PositionDailyData, error)
	InsertPositionDaily(ctx context.Context, data *models.PositionDailyData) error
}

// Valuer converts a token amount into USD. pricing.Resolver satisfies it.
type Valuer interface {
	ValueInUSD(ctx context.Context, token common.Address, amount *big.Int) (decimal.Decimal, error)
}

// ContractReader is the on-chain read surface the lifecycle handlers need.
// chain.Reader satisfies it.
type ContractReader interface {
	PositionInfo(ctx context.Context, position common.Address) (*chain.PositionInfo, error)
	FeeCollector(ctx context.Context, registry common.Address) (common.Address, error)
}
