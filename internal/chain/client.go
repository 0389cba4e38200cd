// Package chain wraps the EVM RPC connection used by the scanner: raw
// eth_call reads against the deployment's contracts and log filtering for
// the event poller.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/position-scanner/internal/config"
	apperrors "github.com/position-scanner/internal/errors"
)

// Client is a rate-limited EVM RPC client with primary/secondary failover.
// All reads are synchronous; a failed read fails the whole handler
// invocation, retries are the delivery layer's concern.
type Client struct {
	client    *ethclient.Client
	limiter   *rate.Limiter
	primary   string
	secondary string
	onPrimary bool
}

// NewClient dials the primary RPC endpoint.
func NewClient(cfg *config.ChainConfig) (*Client, error) {
	if cfg.RPCPrimary == "" {
		return nil, fmt.Errorf("chain RPC endpoint is required")
	}

	client, err := ethclient.Dial(cfg.RPCPrimary)
	if err != nil {
		return nil, apperrors.NewProviderError("dial", err)
	}

	rps := cfg.RPCRateLimit
	if rps <= 0 {
		rps = 25
	}

	return &Client{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		primary:   cfg.RPCPrimary,
		secondary: cfg.RPCSecondary,
		onPrimary: true,
	}, nil
}

// CallContract performs a read-only eth_call at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{To: &to, Data: data}
	out, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		if c.failover(err) {
			out, err = c.client.CallContract(ctx, msg, nil)
		}
		if err != nil {
			return nil, apperrors.NewProviderError("eth_call", err)
		}
	}
	return out, nil
}

// FilterLogs fetches logs matching the query.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		if c.failover(err) {
			logs, err = c.client.FilterLogs(ctx, query)
		}
		if err != nil {
			return nil, apperrors.NewProviderError("eth_getLogs", err)
		}
	}
	return logs, nil
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	num, err := c.client.BlockNumber(ctx)
	if err != nil {
		if c.failover(err) {
			num, err = c.client.BlockNumber(ctx)
		}
		if err != nil {
			return 0, apperrors.NewProviderError("eth_blockNumber", err)
		}
	}
	return num, nil
}

// HeaderByNumber returns the header for a block, used for block timestamps.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	header, err := c.client.HeaderByNumber(ctx, number)
	if err != nil {
		if c.failover(err) {
			header, err = c.client.HeaderByNumber(ctx, number)
		}
		if err != nil {
			return nil, apperrors.NewProviderError("eth_getBlockByNumber", err)
		}
	}
	return header, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// failover switches to the other configured endpoint when the error looks
// transient. Returns true when a retry against the new endpoint is worth it.
func (c *Client) failover(err error) bool {
	if c.secondary == "" || !shouldFailover(err) {
		return false
	}

	target := c.secondary
	if !c.onPrimary {
		target = c.primary
	}

	client, dialErr := ethclient.Dial(target)
	if dialErr != nil {
		return false
	}

	c.client.Close()
	c.client = client
	c.onPrimary = !c.onPrimary
	return true
}

func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}
