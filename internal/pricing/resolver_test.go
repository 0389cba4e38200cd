package pricing

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken  = common.HexToAddress("0x6eaf19b2fc24552925db245f9ff613157a7dbb4c")
	testFeed   = common.HexToAddress("0x51d947b18f546696c31d9a1c81b55d84e6d8e959")
	testOracle = common.HexToAddress("0xd31F42cf356e02689d1720B5FFaA6FC7229D255b")
)

// stubSource counts every call so the zero fast paths can assert that no
// price source was touched.
type stubSource struct {
	price        *big.Int
	priceErr     error
	decimals     map[common.Address]uint8
	decimalsErr  error
	quote        *big.Int
	quoteErr     error
	latestCalls  int
	decimalCalls int
	quoteCalls   int
}

func (s *stubSource) LatestPrice(ctx context.Context, feed common.Address) (*big.Int, int64, error) {
	s.latestCalls++
	return s.price, 0, s.priceErr
}

func (s *stubSource) Decimals(ctx context.Context, contract common.Address) (uint8, error) {
	s.decimalCalls++
	if s.decimalsErr != nil {
		return 0, s.decimalsErr
	}
	return s.decimals[contract], nil
}

func (s *stubSource) QuoteTokenToUsd(ctx context.Context, oracle, token common.Address, amount *big.Int) (*big.Int, error) {
	s.quoteCalls++
	return s.quote, s.quoteErr
}

func (s *stubSource) totalCalls() int {
	return s.latestCalls + s.decimalCalls + s.quoteCalls
}

func TestValueInUSDZeroAmount(t *testing.T) {
	source := &stubSource{}
	resolver := NewResolver(source, testOracle, nil, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(0))
	require.NoError(t, err)
	assert.True(t, value.IsZero())
	assert.Equal(t, 0, source.totalCalls(), "zero amount must not touch any price source")
}

func TestValueInUSDZeroToken(t *testing.T) {
	source := &stubSource{}
	resolver := NewResolver(source, testOracle, nil, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), common.Address{}, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, value.IsZero())
	assert.Equal(t, 0, source.totalCalls(), "zero token must not touch any price source")
}

func TestValueInUSDNilAmount(t *testing.T) {
	source := &stubSource{}
	resolver := NewResolver(source, testOracle, nil, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), testToken, nil)
	require.NoError(t, err)
	assert.True(t, value.IsZero())
	assert.Equal(t, 0, source.totalCalls())
}

func TestValueInUSDDirectFeed(t *testing.T) {
	// Price 2.00 USD with 8 feed decimals, 18 token decimals, 1000 raw
	// token units: 1000 * 2e8 / 1e8 / 1e18 = 2e-15 USD.
	source := &stubSource{
		price: big.NewInt(200_000_000),
		decimals: map[common.Address]uint8{
			testFeed:  8,
			testToken: 18,
		},
	}
	feeds := map[string]common.Address{
		"0x6eaf19b2fc24552925db245f9ff613157a7dbb4c": testFeed,
	}
	resolver := NewResolver(source, testOracle, feeds, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(1000))
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("0.000000000000002")),
		"got %s", value.String())
	assert.Equal(t, 0, source.quoteCalls, "direct feed path must not touch the oracle")
}

func TestValueInUSDWholeTokenAmount(t *testing.T) {
	// 5 whole tokens at 2.00 USD: 5e18 raw units -> 10 USD.
	source := &stubSource{
		price: big.NewInt(200_000_000),
		decimals: map[common.Address]uint8{
			testFeed:  8,
			testToken: 18,
		},
	}
	feeds := map[string]common.Address{
		"0x6eaf19b2fc24552925db245f9ff613157a7dbb4c": testFeed,
	}
	resolver := NewResolver(source, testOracle, feeds, nil, nil)

	amount, _ := new(big.Int).SetString("5000000000000000000", 10)
	value, err := resolver.ValueInUSD(context.Background(), testToken, amount)
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(10)), "got %s", value.String())
}

func TestValueInUSDOracleFallbackWhenNoFeed(t *testing.T) {
	// Oracle quotes are fixed-point 1e18: 3.5 USD -> 3.5e18.
	quote, _ := new(big.Int).SetString("3500000000000000000", 10)
	source := &stubSource{quote: quote}
	resolver := NewResolver(source, testOracle, nil, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.RequireFromString("3.5")), "got %s", value.String())
	assert.Equal(t, 0, source.latestCalls)
	assert.Equal(t, 1, source.quoteCalls)
}

func TestValueInUSDFeedFailureFallsBackToOracle(t *testing.T) {
	quote, _ := new(big.Int).SetString("1000000000000000000", 10)
	source := &stubSource{
		priceErr: fmt.Errorf("execution reverted"),
		quote:    quote,
	}
	feeds := map[string]common.Address{
		"0x6eaf19b2fc24552925db245f9ff613157a7dbb4c": testFeed,
	}
	resolver := NewResolver(source, testOracle, feeds, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, source.latestCalls)
	assert.Equal(t, 1, source.quoteCalls)
}

func TestValueInUSDOracleFailurePropagates(t *testing.T) {
	source := &stubSource{quoteErr: fmt.Errorf("execution reverted")}
	resolver := NewResolver(source, testOracle, nil, nil, nil)

	_, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(1))
	require.Error(t, err)
}

func TestValueInUSDNonPositivePriceFallsBack(t *testing.T) {
	quote, _ := new(big.Int).SetString("2000000000000000000", 10)
	source := &stubSource{
		price: big.NewInt(0),
		quote: quote,
	}
	feeds := map[string]common.Address{
		"0x6eaf19b2fc24552925db245f9ff613157a7dbb4c": testFeed,
	}
	resolver := NewResolver(source, testOracle, feeds, nil, nil)

	value, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(2)))
}

type mapCache struct {
	entries map[common.Address]uint8
	sets    int
}

func (m *mapCache) GetDecimals(ctx context.Context, contract common.Address) (uint8, bool, error) {
	d, ok := m.entries[contract]
	return d, ok, nil
}

func (m *mapCache) SetDecimals(ctx context.Context, contract common.Address, decimals uint8) error {
	m.entries[contract] = decimals
	m.sets++
	return nil
}

func TestDecimalsCacheAvoidsRepeatReads(t *testing.T) {
	source := &stubSource{
		price: big.NewInt(100_000_000),
		decimals: map[common.Address]uint8{
			testFeed:  8,
			testToken: 6,
		},
	}
	feeds := map[string]common.Address{
		"0x6eaf19b2fc24552925db245f9ff613157a7dbb4c": testFeed,
	}
	cache := &mapCache{entries: make(map[common.Address]uint8)}
	resolver := NewResolver(source, testOracle, feeds, cache, nil)

	_, err := resolver.ValueInUSD(context.Background(), testToken, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, 2, source.decimalCalls)
	assert.Equal(t, 2, cache.sets)

	_, err = resolver.ValueInUSD(context.Background(), testToken, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, 2, source.decimalCalls, "second valuation must hit the cache")
}
