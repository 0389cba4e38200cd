// Package indexer polls the chain for registry and position contract logs
// and feeds them, in block order, into the lifecycle handlers.
package indexer

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/position-scanner/internal/chain"
	"github.com/position-scanner/internal/config"
	apperrors "github.com/position-scanner/internal/errors"
	"github.com/position-scanner/internal/logging"
)

// LogSource is the RPC surface the poller needs. chain.Client satisfies it.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

// EventHandler applies one decoded event. service.Lifecycle satisfies it.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *chain.Event) error
}

// ProgressStore persists the poller's position so a restart resumes where
// the previous run stopped.
type ProgressStore interface {
	LastProcessedBlock(ctx context.Context, chain string) (uint64, bool, error)
	SetLastProcessedBlock(ctx context.Context, chain string, block uint64) error
}

// AddressSource lists the position contract addresses to watch alongside
// the registry.
type AddressSource interface {
	ListAddresses(ctx context.Context) ([]common.Address, error)
}

// Poller drives the indexing loop: fetch a confirmed block window, decode
// its logs, dispatch them in order, advance the checkpoint. A failed window
// is not checkpointed and is retried on the next tick.
type Poller struct {
	source       LogSource
	handler      EventHandler
	progress     ProgressStore
	positions    AddressSource
	registry     common.Address
	chainName    string
	startBlock   uint64
	maxBlocks    uint64
	confirms     uint64
	pollInterval time.Duration
	logger       *logging.Logger
}

// NewPoller assembles the poller for one registry deployment.
func NewPoller(
	source LogSource,
	handler EventHandler,
	progress ProgressStore,
	positions AddressSource,
	cfg *config.Config,
	logger *logging.Logger,
) *Poller {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Poller{
		source:       source,
		handler:      handler,
		progress:     progress,
		positions:    positions,
		registry:     cfg.Registry.Registry,
		chainName:    cfg.Chain.Name,
		startBlock:   cfg.Registry.StartBlock,
		maxBlocks:    cfg.Sync.MaxBlocksPerPoll,
		confirms:     cfg.Sync.Confirmations,
		pollInterval: cfg.Chain.PollInterval,
		logger:       logger,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.WithFields(map[string]interface{}{
		"chain":    p.chainName,
		"registry": p.registry.Hex(),
	}).Info("Starting log poller")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Log poller stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.WithError(err).Error("Poll cycle failed")
			}
		}
	}
}

// poll processes at most one block window.
func (p *Poller) poll(ctx context.Context) error {
	head, err := p.source.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if head < p.confirms {
		return nil
	}
	target := head - p.confirms

	last, ok, err := p.progress.LastProcessedBlock(ctx, p.chainName)
	if err != nil {
		return err
	}

	from := p.startBlock
	if ok {
		from = last + 1
	}
	if from > target {
		return nil
	}

	to := target
	if p.maxBlocks > 0 && to-from+1 > p.maxBlocks {
		to = from + p.maxBlocks - 1
	}

	logs, err := p.fetchLogs(ctx, from, to)
	if err != nil {
		return err
	}

	if err := p.dispatch(ctx, logs); err != nil {
		return err
	}

	if err := p.progress.SetLastProcessedBlock(ctx, p.chainName, to); err != nil {
		return err
	}

	if len(logs) > 0 {
		p.logger.WithFields(map[string]interface{}{
			"from": from,
			"to":   to,
			"logs": len(logs),
		}).Info("Processed block window")
	}

	return nil
}

// fetchLogs queries the window for logs from the registry and every known
// position contract, restricted to the event topics we decode.
func (p *Poller) fetchLogs(ctx context.Context, from, to uint64) ([]ethtypes.Log, error) {
	positions, err := p.positions.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}

	addresses := append([]common.Address{p.registry}, positions...)

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{chain.AllTopics()},
	}

	return p.source.FilterLogs(ctx, query)
}

// dispatch decodes and applies logs in (block, log index) order. Retryable
// handler failures abort the window so it is replayed next tick;
// missing-entity failures are logged and skipped because replaying cannot
// repair an out-of-order stream.
func (p *Poller) dispatch(ctx context.Context, logs []ethtypes.Log) error {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	timestamps := make(map[uint64]int64)

	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}

		timestamp, ok := timestamps[log.BlockNumber]
		if !ok {
			header, err := p.source.HeaderByNumber(ctx, new(big.Int).SetUint64(log.BlockNumber))
			if err != nil {
				return err
			}
			timestamp = int64(header.Time) // #nosec G115 - block timestamps fit in int64
			timestamps[log.BlockNumber] = timestamp
		}

		event, err := chain.DecodeLog(log, timestamp)
		if err != nil {
			p.logger.WithError(err).WithFields(map[string]interface{}{
				"block": log.BlockNumber,
				"tx":    log.TxHash.Hex(),
			}).Error("Failed to decode log, skipping")
			continue
		}
		if event == nil {
			continue
		}

		if err := p.handler.HandleEvent(ctx, event); err != nil {
			if apperrors.IsRetryable(err) {
				return err
			}
			p.logger.WithError(err).WithFields(map[string]interface{}{
				"block": log.BlockNumber,
				"tx":    log.TxHash.Hex(),
			}).Error("Unrecoverable event failure, skipping")
		}
	}

	return nil
}
