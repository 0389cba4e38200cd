package service

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/position-scanner/internal/chain"
	"github.com/position-scanner/internal/models"
)

// In-memory stores for testing

type mockRegistryStore struct {
	registries map[common.Address]*models.Registry
}

func newMockRegistryStore() *mockRegistryStore {
	return &mockRegistryStore{registries: make(map[common.Address]*models.Registry)}
}

func (m *mockRegistryStore) Get(ctx context.Context, id common.Address) (*models.Registry, error) {
	return m.registries[id], nil
}

func (m *mockRegistryStore) Save(ctx context.Context, registry *models.Registry) error {
	m.registries[registry.ID] = registry
	return nil
}

type mockSmartAccountStore struct {
	accounts map[common.Address]*models.SmartAccount
}

func newMockSmartAccountStore() *mockSmartAccountStore {
	return &mockSmartAccountStore{accounts: make(map[common.Address]*models.SmartAccount)}
}

func (m *mockSmartAccountStore) Get(ctx context.Context, id common.Address) (*models.SmartAccount, error) {
	return m.accounts[id], nil
}

func (m *mockSmartAccountStore) ListByRegistry(ctx context.Context, registryID common.Address) ([]*models.SmartAccount, error) {
	var result []*models.SmartAccount
	for _, a := range m.accounts {
		if a.RegistryID == registryID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.Hex() < result[j].ID.Hex()
	})
	return result, nil
}

func (m *mockSmartAccountStore) Save(ctx context.Context, account *models.SmartAccount) error {
	m.accounts[account.ID] = account
	return nil
}

type mockPositionStore struct {
	positions map[common.Address]*models.Position
}

func newMockPositionStore() *mockPositionStore {
	return &mockPositionStore{positions: make(map[common.Address]*models.Position)}
}

func (m *mockPositionStore) Get(ctx context.Context, id common.Address) (*models.Position, error) {
	return m.positions[id], nil
}

func (m *mockPositionStore) ListByOwner(ctx context.Context, ownerID common.Address) ([]*models.Position, error) {
	var result []*models.Position
	for _, p := range m.positions {
		if p.OwnerID == ownerID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.Hex() < result[j].ID.Hex()
	})
	return result, nil
}

func (m *mockPositionStore) Save(ctx context.Context, position *models.Position) error {
	m.positions[position.ID] = position
	return nil
}

type mockStrategyStore struct {
	strategies map[int64]*models.Strategy
}

func newMockStrategyStore() *mockStrategyStore {
	return &mockStrategyStore{strategies: make(map[int64]*models.Strategy)}
}

func (m *mockStrategyStore) Get(ctx context.Context, id int64) (*models.Strategy, error) {
	return m.strategies[id], nil
}

func (m *mockStrategyStore) Save(ctx context.Context, strategy *models.Strategy) error {
	m.strategies[strategy.ID] = strategy
	return nil
}

// mockDailyStore enforces the same create-once semantics as the Postgres
// repository: inserts on an existing id are silently dropped.
type mockDailyStore struct {
	registryRows map[string]*models.RegistryDailyData
	accountRows  map[string]*models.SmartAccountDailyData
	positionRows map[string]*models.PositionDailyData
}

func newMockDailyStore() *mockDailyStore {
	return &mockDailyStore{
		registryRows: make(map[string]*models.RegistryDailyData),
		accountRows:  make(map[string]*models.SmartAccountDailyData),
		positionRows: make(map[string]*models.PositionDailyData),
	}
}

func (m *mockDailyStore) GetRegistryDaily(ctx context.Context, id string) (*models.RegistryDailyData, error) {
	return m.registryRows[id], nil
}

func (m *mockDailyStore) InsertRegistryDaily(ctx context.Context, data *models.RegistryDailyData) error {
	if _, ok := m.registryRows[data.ID]; !ok {
		m.registryRows[data.ID] = data
	}
	return nil
}

func (m *mockDailyStore) GetSmartAccountDaily(ctx context.Context, id string) (*models.SmartAccountDailyData, error) {
	return m.accountRows[id], nil
}

func (m *mockDailyStore) InsertSmartAccountDaily(ctx context.Context, data *models.SmartAccountDailyData) error {
	if _, ok := m.accountRows[data.ID]; !ok {
		m.accountRows[data.ID] = data
	}
	return nil
}

func (m *mockDailyStore) GetPositionDaily(ctx context.Context, id string) (*models.PositionDailyData, error) {
	return m.positionRows[id], nil
}

func (m *mockDailyStore) InsertPositionDaily(ctx context.Context, data *models.PositionDailyData) error {
	if _, ok := m.positionRows[data.ID]; !ok {
		m.positionRows[data.ID] = data
	}
	return nil
}

// mockValuer prices every token at a configured USD rate per raw unit and
// counts calls so tests can assert the reuse paths skip valuation.
type mockValuer struct {
	rates map[common.Address]decimal.Decimal
	calls int
}

func newMockValuer() *mockValuer {
	return &mockValuer{rates: make(map[common.Address]decimal.Decimal)}
}

func (m *mockValuer) ValueInUSD(ctx context.Context, token common.Address, amount *big.Int) (decimal.Decimal, error) {
	m.calls++
	if amount == nil || amount.Sign() == 0 || token == (common.Address{}) {
		return decimal.Zero, nil
	}
	rate, ok := m.rates[token]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return rate.Mul(decimal.NewFromBigInt(amount, 0)), nil
}

type mockContractReader struct {
	infos        map[common.Address]*chain.PositionInfo
	feeCollector common.Address
}

func newMockContractReader() *mockContractReader {
	return &mockContractReader{infos: make(map[common.Address]*chain.PositionInfo)}
}

func (m *mockContractReader) PositionInfo(ctx context.Context, position common.Address) (*chain.PositionInfo, error) {
	if info, ok := m.infos[position]; ok {
		return info, nil
	}
	return &chain.PositionInfo{
		PricePerShare:  new(big.Int),
		TotalDeposited: new(big.Int),
		TotalBorrowed:  new(big.Int),
	}, nil
}

func (m *mockContractReader) FeeCollector(ctx context.Context, registry common.Address) (common.Address, error) {
	return m.feeCollector, nil
}
