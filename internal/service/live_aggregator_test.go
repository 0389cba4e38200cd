package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/position-scanner/internal/models"
)

func TestAggregateLiveSumsEligiblePositions(t *testing.T) {
	registries := newMockRegistryStore()
	accounts := newMockSmartAccountStore()
	positions := newMockPositionStore()
	daily := newMockDailyStore()
	valuer := newMockValuer()
	registry := seedHierarchy(accounts, positions)
	registries.registries[registry.ID] = registry

	agg := NewLiveAggregator(registries, accounts, positions, daily, valuer, nil)

	timestamp := int64(90000)
	require.NoError(t, agg.AggregateLive(context.Background(), registry, models.DayID(timestamp), timestamp))

	assert.True(t, registry.TotalDepositedUSD.Equal(decimal.NewFromInt(150)), "got %s", registry.TotalDepositedUSD)
	assert.Equal(t, timestamp, registry.UpdatedAt)

	accountA := accounts.accounts[testOwnerA]
	accountB := accounts.accounts[testOwnerB]
	assert.True(t, accountA.TotalDepositedUSD.Equal(decimal.NewFromInt(150)))
	assert.True(t, accountB.TotalDepositedUSD.IsZero())
	assert.True(t, registry.TotalDepositedUSD.Equal(accountA.TotalDepositedUSD.Add(accountB.TotalDepositedUSD)))
}

func TestAggregateLiveSkipsIneligiblePositions(t *testing.T) {
	registries := newMockRegistryStore()
	accounts := newMockSmartAccountStore()
	positions := newMockPositionStore()
	daily := newMockDailyStore()
	valuer := newMockValuer()
	registry := seedHierarchy(accounts, positions)
	registries.registries[registry.ID] = registry

	agg := NewLiveAggregator(registries, accounts, positions, daily, valuer, nil)

	timestamp := int64(90000)
	require.NoError(t, agg.AggregateLive(context.Background(), registry, models.DayID(timestamp), timestamp))

	neverOpened := positions.positions[testPositionC]
	assert.Equal(t, int64(1000), neverOpened.UpdatedAt, "ineligible position must not be touched")
	assert.True(t, neverOpened.TotalDepositedUSD.IsZero())
}

func TestAggregateLiveReusesSameTimestampSnapshot(t *testing.T) {
	registries := newMockRegistryStore()
	accounts := newMockSmartAccountStore()
	positions := newMockPositionStore()
	daily := newMockDailyStore()
	valuer := newMockValuer()
	registry := seedHierarchy(accounts, positions)
	registries.registries[registry.ID] = registry

	timestamp := int64(90000)
	dayID := models.DayID(timestamp)

	// The daily pass already priced position A at this exact moment.
	daily.positionRows[models.DailyDataID(testPositionA, dayID)] = &models.PositionDailyData{
		ID:                models.DailyDataID(testPositionA, dayID),
		PositionID:        testPositionA,
		DayStartTimestamp: models.DayStart(dayID),
		CreatedAt:         timestamp,
		TotalDepositedUSD: decimal.NewFromInt(777),
		TotalBorrowedUSD:  decimal.Zero,
	}

	agg := NewLiveAggregator(registries, accounts, positions, daily, valuer, nil)
	require.NoError(t, agg.AggregateLive(context.Background(), registry, dayID, timestamp))

	posA := positions.positions[testPositionA]
	assert.True(t, posA.TotalDepositedUSD.Equal(decimal.NewFromInt(777)), "snapshot USD must be reused")
	assert.Equal(t, 2, valuer.calls, "only position B is revalued")
	assert.True(t, registry.TotalDepositedUSD.Equal(decimal.NewFromInt(827)), "got %s", registry.TotalDepositedUSD)
}

func TestAggregateLiveAfterCloseExcludesPosition(t *testing.T) {
	registries := newMockRegistryStore()
	accounts := newMockSmartAccountStore()
	positions := newMockPositionStore()
	daily := newMockDailyStore()
	valuer := newMockValuer()
	registry := seedHierarchy(accounts, positions)
	registries.registries[registry.ID] = registry

	agg := NewLiveAggregator(registries, accounts, positions, daily, valuer, nil)

	require.NoError(t, agg.AggregateLive(context.Background(), registry, 1, 90000))
	require.True(t, registry.TotalDepositedUSD.Equal(decimal.NewFromInt(150)))

	positions.positions[testPositionB].ResetOnClose(95000)

	require.NoError(t, agg.AggregateLive(context.Background(), registry, 1, 95000))
	assert.True(t, registry.TotalDepositedUSD.Equal(decimal.NewFromInt(100)), "closed position must drop out of the total")
}

// The rollup-sum invariant: whatever the shape of the hierarchy, after a
// live pass the registry total equals the sum over eligible positions, and
// each account total equals the sum over its own eligible positions.
func TestAggregateLiveSumInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("registry total equals sum of eligible positions", prop.ForAll(
		func(deposits []int64, openFlags []bool) bool {
			registries := newMockRegistryStore()
			accounts := newMockSmartAccountStore()
			positions := newMockPositionStore()
			daily := newMockDailyStore()
			valuer := newMockValuer()

			registry := models.NewRegistry(testRegistryAddr, 0)
			registries.registries[registry.ID] = registry

			expected := decimal.Zero
			for i, deposit := range deposits {
				owner := common.BigToAddress(big.NewInt(int64(0x2000 + i%3)))
				if accounts.accounts[owner] == nil {
					account := models.NewSmartAccount(owner, 0)
					account.RegistryID = registry.ID
					accounts.accounts[owner] = account
					registry.SmartAccountCount++
				}

				position := models.NewPosition(common.BigToAddress(big.NewInt(int64(0x3000+i))), owner, 1, 0)
				position.Asset = testAsset
				position.TotalDeposited = big.NewInt(deposit)
				open := i < len(openFlags) && openFlags[i]
				if open {
					position.OpenedAt = 10
				}
				positions.positions[position.ID] = position
				registry.PositionCount++

				if open && deposit > 0 {
					expected = expected.Add(decimal.NewFromInt(deposit))
				}
			}

			agg := NewLiveAggregator(registries, accounts, positions, daily, valuer, nil)
			if err := agg.AggregateLive(context.Background(), registry, 1, 90000); err != nil {
				return false
			}

			accountSum := decimal.Zero
			for _, account := range accounts.accounts {
				accountSum = accountSum.Add(account.TotalDepositedUSD)
			}

			return registry.TotalDepositedUSD.Equal(expected) &&
				registry.TotalDepositedUSD.Equal(accountSum)
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)).WithLabel("deposits"),
		gen.SliceOf(gen.Bool()).WithLabel("openFlags"),
	))

	properties.TestingRun(t)
}

func TestSumDecimals(t *testing.T) {
	values := []decimal.Decimal{
		decimal.RequireFromString("1.5"),
		decimal.RequireFromString("2.25"),
		decimal.RequireFromString("0.25"),
	}
	assert.True(t, sumDecimals(values).Equal(decimal.NewFromInt(4)))
	assert.True(t, sumDecimals(nil).IsZero())
}
