package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller is the read-only call surface the typed readers need.
// *Client satisfies it; tests substitute a stub.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

const aggregatorABIJSON = `[
	{"name":"latestRoundData","type":"function","stateMutability":"view","inputs":[],"outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const erc20ABIJSON = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const oracleABIJSON = `[
	{"name":"quoteTokenToUsd","type":"function","stateMutability":"view","inputs":[
		{"name":"token_","type":"address"},
		{"name":"amount_","type":"uint256"}],
	"outputs":[{"name":"amountInUsd_","type":"uint256"}]}
]`

const positionABIJSON = `[
	{"name":"borrowToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"pricePerShare","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"totalDeposited","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"totalBorrowed","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"isOutdated","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`

const registryABIJSON = `[
	{"name":"feeCollector","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

var (
	aggregatorABI = mustParseABI(aggregatorABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)
	oracleABI     = mustParseABI(oracleABIJSON)
	positionABI   = mustParseABI(positionABIJSON)
	registryABI   = mustParseABI(registryABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Reader issues typed reads against the deployment's contracts.
type Reader struct {
	caller ContractCaller
}

// NewReader creates a contract reader on top of a caller.
func NewReader(caller ContractCaller) *Reader {
	return &Reader{caller: caller}
}

// LatestPrice reads a Chainlink-style aggregator's latest round. Returns the
// raw answer and its update timestamp; the answer is scaled by the feed's
// own decimals.
func (r *Reader) LatestPrice(ctx context.Context, feed common.Address) (*big.Int, int64, error) {
	data, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return nil, 0, err
	}

	out, err := r.caller.CallContract(ctx, feed, data)
	if err != nil {
		return nil, 0, err
	}

	results, err := aggregatorABI.Unpack("latestRoundData", out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode latestRoundData: %w", err)
	}
	if len(results) != 5 {
		return nil, 0, fmt.Errorf("unexpected latestRoundData result length: %d", len(results))
	}

	answer, ok := results[1].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected latestRoundData answer type %T", results[1])
	}
	updatedAt, ok := results[3].(*big.Int)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected latestRoundData updatedAt type %T", results[3])
	}

	return answer, updatedAt.Int64(), nil
}

// Decimals reads the decimal precision of a feed or token contract.
func (r *Reader) Decimals(ctx context.Context, contract common.Address) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	out, err := r.caller.CallContract(ctx, contract, data)
	if err != nil {
		return 0, err
	}

	results, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("failed to decode decimals: %w", err)
	}

	decimals, ok := results[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", results[0])
	}
	return decimals, nil
}

// QuoteTokenToUsd asks the master oracle for a USD quote, fixed-point 1e18.
func (r *Reader) QuoteTokenToUsd(ctx context.Context, oracle, token common.Address, amount *big.Int) (*big.Int, error) {
	data, err := oracleABI.Pack("quoteTokenToUsd", token, amount)
	if err != nil {
		return nil, err
	}

	out, err := r.caller.CallContract(ctx, oracle, data)
	if err != nil {
		return nil, err
	}

	results, err := oracleABI.Unpack("quoteTokenToUsd", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quoteTokenToUsd: %w", err)
	}

	quote, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quoteTokenToUsd type %T", results[0])
	}
	return quote, nil
}

// PositionInfo carries the readable state of a position contract.
type PositionInfo struct {
	BorrowToken    common.Address
	PricePerShare  *big.Int
	TotalDeposited *big.Int
	TotalBorrowed  *big.Int
	IsOutdated     bool
}

// PositionInfo reads the full position contract state used by the lifecycle
// handlers.
func (r *Reader) PositionInfo(ctx context.Context, position common.Address) (*PositionInfo, error) {
	info := &PositionInfo{}

	addr, err := r.readAddress(ctx, position, positionABI, "borrowToken")
	if err != nil {
		return nil, err
	}
	info.BorrowToken = addr

	if info.PricePerShare, err = r.readUint256(ctx, position, "pricePerShare"); err != nil {
		return nil, err
	}
	if info.TotalDeposited, err = r.readUint256(ctx, position, "totalDeposited"); err != nil {
		return nil, err
	}
	if info.TotalBorrowed, err = r.readUint256(ctx, position, "totalBorrowed"); err != nil {
		return nil, err
	}

	data, err := positionABI.Pack("isOutdated")
	if err != nil {
		return nil, err
	}
	out, err := r.caller.CallContract(ctx, position, data)
	if err != nil {
		return nil, err
	}
	results, err := positionABI.Unpack("isOutdated", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode isOutdated: %w", err)
	}
	outdated, ok := results[0].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected isOutdated type %T", results[0])
	}
	info.IsOutdated = outdated

	return info, nil
}

// FeeCollector reads the registry's fee collector address.
func (r *Reader) FeeCollector(ctx context.Context, registry common.Address) (common.Address, error) {
	return r.readAddress(ctx, registry, registryABI, "feeCollector")
}

func (r *Reader) readAddress(ctx context.Context, contract common.Address, contractABI abi.ABI, method string) (common.Address, error) {
	data, err := contractABI.Pack(method)
	if err != nil {
		return common.Address{}, err
	}

	out, err := r.caller.CallContract(ctx, contract, data)
	if err != nil {
		return common.Address{}, err
	}

	results, err := contractABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode %s: %w", method, err)
	}

	addr, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s type %T", method, results[0])
	}
	return addr, nil
}

func (r *Reader) readUint256(ctx context.Context, contract common.Address, method string) (*big.Int, error) {
	data, err := positionABI.Pack(method)
	if err != nil {
		return nil, err
	}

	out, err := r.caller.CallContract(ctx, contract, data)
	if err != nil {
		return nil, err
	}

	results, err := positionABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}

	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type %T", method, results[0])
	}
	return value, nil
}
