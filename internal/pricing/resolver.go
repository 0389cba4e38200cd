// Package pricing converts token amounts into USD values. A per-token direct
// price feed is tried first; everything else goes through the deployment's
// master oracle.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	apperrors "github.com/position-scanner/internal/errors"
	"github.com/position-scanner/internal/logging"
)

// oracleScale is the fixed-point exponent of master oracle quotes.
const oracleScale = 18

// PriceSource is the on-chain read surface the resolver needs. chain.Reader
// satisfies it; tests substitute stubs.
type PriceSource interface {
	LatestPrice(ctx context.Context, feed common.Address) (*big.Int, int64, error)
	Decimals(ctx context.Context, contract common.Address) (uint8, error)
	QuoteTokenToUsd(ctx context.Context, oracle, token common.Address, amount *big.Int) (*big.Int, error)
}

// DecimalsCache caches contract decimal precision. Decimals are immutable
// on-chain, so entries never need invalidation.
type DecimalsCache interface {
	GetDecimals(ctx context.Context, contract common.Address) (uint8, bool, error)
	SetDecimals(ctx context.Context, contract common.Address, decimals uint8) error
}

// Resolver values (token, amount) pairs in USD.
//
// Failure policy: a configured direct feed that fails to read degrades to
// the master oracle; an oracle failure propagates and aborts the triggering
// event. Both aggregation passes share this resolver, so the policy is
// applied uniformly.
type Resolver struct {
	source PriceSource
	oracle common.Address
	feeds  map[string]common.Address // lowercase token address -> feed
	cache  DecimalsCache
	logger *logging.Logger
}

// NewResolver creates a resolver for one deployment target. cache may be nil
// to disable decimals caching.
func NewResolver(source PriceSource, oracle common.Address, feeds map[string]common.Address, cache DecimalsCache, logger *logging.Logger) *Resolver {
	if feeds == nil {
		feeds = map[string]common.Address{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Resolver{
		source: source,
		oracle: oracle,
		feeds:  feeds,
		cache:  cache,
		logger: logger,
	}
}

// ValueInUSD converts amount units of token into a USD decimal. A zero
// amount or the zero token address short-circuits to zero without touching
// any price source.
func (r *Resolver) ValueInUSD(ctx context.Context, token common.Address, amount *big.Int) (decimal.Decimal, error) {
	if amount == nil || amount.Sign() == 0 || token == (common.Address{}) {
		return decimal.Zero, nil
	}

	if feed, ok := r.feeds[strings.ToLower(token.Hex())]; ok {
		value, err := r.valueFromFeed(ctx, token, feed, amount)
		if err == nil {
			return value, nil
		}
		r.logger.WithFields(map[string]interface{}{
			"token": token.Hex(),
			"feed":  feed.Hex(),
			"error": err.Error(),
		}).Warn("Direct price feed unavailable, falling back to master oracle")
	}

	return r.valueFromOracle(ctx, token, amount)
}

// valueFromFeed prices via a Chainlink-style aggregator. The integer
// multiplication amount*price happens in big.Int before any decimal
// scaling, so no precision is lost to early truncation.
func (r *Resolver) valueFromFeed(ctx context.Context, token, feed common.Address, amount *big.Int) (decimal.Decimal, error) {
	price, _, err := r.source.LatestPrice(ctx, feed)
	if err != nil {
		return decimal.Zero, err
	}
	if price == nil || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("feed %s returned non-positive price", feed.Hex())
	}

	feedDecimals, err := r.decimals(ctx, feed)
	if err != nil {
		return decimal.Zero, err
	}
	tokenDecimals, err := r.decimals(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}

	product := new(big.Int).Mul(amount, price)
	value := decimal.NewFromBigInt(product, -int32(feedDecimals)-int32(tokenDecimals))
	return value, nil
}

// valueFromOracle prices via the master oracle's fixed-point quote.
func (r *Resolver) valueFromOracle(ctx context.Context, token common.Address, amount *big.Int) (decimal.Decimal, error) {
	if r.oracle == (common.Address{}) {
		return decimal.Zero, apperrors.NewValuationError(token.Hex(), fmt.Errorf("no master oracle configured"))
	}

	quote, err := r.source.QuoteTokenToUsd(ctx, r.oracle, token, amount)
	if err != nil {
		return decimal.Zero, apperrors.NewValuationError(token.Hex(), err)
	}

	return decimal.NewFromBigInt(quote, -oracleScale), nil
}

// decimals resolves a contract's decimal precision, consulting the cache
// first. Cache write failures are logged and ignored; the value was already
// read.
func (r *Resolver) decimals(ctx context.Context, contract common.Address) (uint8, error) {
	if r.cache != nil {
		if d, ok, err := r.cache.GetDecimals(ctx, contract); err == nil && ok {
			return d, nil
		}
	}

	d, err := r.source.Decimals(ctx, contract)
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.SetDecimals(ctx, contract, d); err != nil {
			r.logger.WithFields(map[string]interface{}{
				"contract": contract.Hex(),
				"error":    err.Error(),
			}).Warn("Failed to cache contract decimals")
		}
	}

	return d, nil
}
