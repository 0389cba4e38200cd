package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// DecimalsCache stores contract decimal precision in Redis. Decimals are
// immutable on-chain, so entries are written without a TTL.
type DecimalsCache struct {
	cache *RedisCache
}

// NewDecimalsCache creates a decimals cache on top of a Redis connection.
func NewDecimalsCache(cache *RedisCache) *DecimalsCache {
	return &DecimalsCache{cache: cache}
}

func decimalsKey(contract common.Address) string {
	return fmt.Sprintf("decimals:%s", strings.ToLower(contract.Hex()))
}

// GetDecimals returns the cached precision for a contract. The second return
// value reports whether the entry existed.
func (c *DecimalsCache) GetDecimals(ctx context.Context, contract common.Address) (uint8, bool, error) {
	value, err := c.cache.Get(ctx, decimalsKey(contract))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read cached decimals: %w", err)
	}

	decimals, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached decimals %q: %w", value, err)
	}

	return uint8(decimals), true, nil
}

// SetDecimals caches the precision for a contract.
func (c *DecimalsCache) SetDecimals(ctx context.Context, contract common.Address, decimals uint8) error {
	if err := c.cache.Set(ctx, decimalsKey(contract), strconv.FormatUint(uint64(decimals), 10), 0); err != nil {
		return fmt.Errorf("failed to cache decimals: %w", err)
	}
	return nil
}
