package indexer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/position-scanner/internal/chain"
	"github.com/position-scanner/internal/config"
	apperrors "github.com/position-scanner/internal/errors"
)

var (
	testRegistry = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testPosition = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

type stubSource struct {
	head    uint64
	logs    []ethtypes.Log
	queries []ethereum.FilterQuery
}

func (s *stubSource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.head, nil
}

func (s *stubSource) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	s.queries = append(s.queries, query)
	var result []ethtypes.Log
	for _, log := range s.logs {
		if log.BlockNumber >= query.FromBlock.Uint64() && log.BlockNumber <= query.ToBlock.Uint64() {
			result = append(result, log)
		}
	}
	return result, nil
}

func (s *stubSource) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Time: number.Uint64() * 12}, nil
}

type memProgress struct {
	block uint64
	set   bool
}

func (m *memProgress) LastProcessedBlock(ctx context.Context, chainName string) (uint64, bool, error) {
	return m.block, m.set, nil
}

func (m *memProgress) SetLastProcessedBlock(ctx context.Context, chainName string, block uint64) error {
	m.block = block
	m.set = true
	return nil
}

type recordingHandler struct {
	events []*chain.Event
	fail   error
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *chain.Event) error {
	h.events = append(h.events, event)
	return h.fail
}

type staticAddresses struct {
	addrs []common.Address
}

func (s *staticAddresses) ListAddresses(ctx context.Context) ([]common.Address, error) {
	return s.addrs, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Chain.Name = "testchain"
	cfg.Chain.PollInterval = 10 * time.Millisecond
	cfg.Registry.Registry = testRegistry
	cfg.Registry.StartBlock = 100
	cfg.Sync.MaxBlocksPerPoll = 50
	cfg.Sync.Confirmations = 5
	return cfg
}

func ownershipLog(block uint64, index uint) ethtypes.Log {
	return ethtypes.Log{
		Address:     testRegistry,
		BlockNumber: block,
		Index:       index,
		Topics: []common.Hash{
			chain.TopicOwnershipTransferred,
			common.BytesToHash(common.Address{}.Bytes()),
			common.BytesToHash(testPosition.Bytes()),
		},
	}
}

func closedLog(block uint64, index uint, pulled int64) ethtypes.Log {
	return ethtypes.Log{
		Address:     testPosition,
		BlockNumber: block,
		Index:       index,
		Topics:      []common.Hash{chain.TopicPositionClosed},
		Data:        common.LeftPadBytes(big.NewInt(pulled).Bytes(), 32),
	}
}

func TestPollDispatchesInBlockOrder(t *testing.T) {
	source := &stubSource{
		head: 200,
		logs: []ethtypes.Log{
			closedLog(120, 3, 42),
			ownershipLog(110, 0),
			closedLog(120, 1, 7),
		},
	}
	progress := &memProgress{}
	handler := &recordingHandler{}
	poller := NewPoller(source, handler, progress, &staticAddresses{addrs: []common.Address{testPosition}}, testConfig(), nil)

	require.NoError(t, poller.poll(context.Background()))

	require.Len(t, handler.events, 3)
	assert.NotNil(t, handler.events[0].OwnershipTransferred)
	assert.Equal(t, uint64(110), handler.events[0].BlockNumber)
	assert.Equal(t, big.NewInt(7), handler.events[1].PositionClosed.Pulled)
	assert.Equal(t, big.NewInt(42), handler.events[2].PositionClosed.Pulled)

	// Timestamps come from the block headers.
	assert.Equal(t, int64(110*12), handler.events[0].Timestamp)

	// The checkpoint advanced to the end of the window.
	assert.Equal(t, uint64(149), progress.block, "start 100 + 50 blocks - 1")
}

func TestPollResumesFromCheckpoint(t *testing.T) {
	source := &stubSource{head: 200}
	progress := &memProgress{block: 150, set: true}
	poller := NewPoller(source, &recordingHandler{}, progress, &staticAddresses{}, testConfig(), nil)

	require.NoError(t, poller.poll(context.Background()))

	require.Len(t, source.queries, 1)
	assert.Equal(t, uint64(151), source.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(195), source.queries[0].ToBlock.Uint64(), "head minus confirmations")
	assert.Equal(t, uint64(195), progress.block)
}

func TestPollWaitsForConfirmations(t *testing.T) {
	source := &stubSource{head: 103}
	progress := &memProgress{}
	poller := NewPoller(source, &recordingHandler{}, progress, &staticAddresses{}, testConfig(), nil)

	require.NoError(t, poller.poll(context.Background()))
	assert.Empty(t, source.queries, "window behind start block must not be queried")
	assert.False(t, progress.set)
}

func TestPollRetryableFailureKeepsCheckpoint(t *testing.T) {
	source := &stubSource{
		head: 200,
		logs: []ethtypes.Log{ownershipLog(110, 0)},
	}
	progress := &memProgress{}
	handler := &recordingHandler{fail: apperrors.NewProviderError("eth_call", assert.AnError)}
	poller := NewPoller(source, handler, progress, &staticAddresses{}, testConfig(), nil)

	require.Error(t, poller.poll(context.Background()))
	assert.False(t, progress.set, "failed window must be replayed")
}

func TestPollSkipsUnrecoverableFailures(t *testing.T) {
	source := &stubSource{
		head: 200,
		logs: []ethtypes.Log{ownershipLog(110, 0)},
	}
	progress := &memProgress{}
	handler := &recordingHandler{fail: apperrors.NewMissingEntityError("strategy", "42")}
	poller := NewPoller(source, handler, progress, &staticAddresses{}, testConfig(), nil)

	require.NoError(t, poller.poll(context.Background()))
	assert.True(t, progress.set, "missing-entity failures must not wedge the poller")
}

func TestPollSkipsRemovedLogs(t *testing.T) {
	removed := ownershipLog(110, 0)
	removed.Removed = true
	source := &stubSource{head: 200, logs: []ethtypes.Log{removed}}
	handler := &recordingHandler{}
	poller := NewPoller(source, handler, &memProgress{}, &staticAddresses{}, testConfig(), nil)

	require.NoError(t, poller.poll(context.Background()))
	assert.Empty(t, handler.events)
}
