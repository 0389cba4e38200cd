package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Event ABIs for the registry and position contracts. The poller filters on
// these topics and decodes the raw logs into the typed events below.
const eventsABIJSON = `[
	{"name":"OwnershipTransferred","type":"event","inputs":[
		{"name":"previousOwner","type":"address","indexed":true},
		{"name":"newOwner","type":"address","indexed":true}]},
	{"name":"FeeCollectorUpdated","type":"event","inputs":[
		{"name":"oldFeeCollector","type":"address","indexed":true},
		{"name":"newFeeCollector","type":"address","indexed":true}]},
	{"name":"PositionDeployed","type":"event","inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"strategyId","type":"uint256","indexed":true},
		{"name":"position","type":"address","indexed":false}]},
	{"name":"StrategyAdded","type":"event","inputs":[
		{"name":"strategyId","type":"uint256","indexed":true},
		{"name":"implementation","type":"address","indexed":false},
		{"name":"feePolicy","type":"address","indexed":false}]},
	{"name":"IsActiveUpdated","type":"event","inputs":[
		{"name":"strategyId","type":"uint256","indexed":true},
		{"name":"isActive","type":"bool","indexed":false}]},
	{"name":"FeePolicyUpdated","type":"event","inputs":[
		{"name":"strategyId","type":"uint256","indexed":true},
		{"name":"newFeePolicy","type":"address","indexed":false}]},
	{"name":"ImplementationUpdated","type":"event","inputs":[
		{"name":"strategyId","type":"uint256","indexed":true},
		{"name":"newImplementation","type":"address","indexed":false}]},
	{"name":"PositionOpened","type":"event","inputs":[
		{"name":"asset","type":"address","indexed":true},
		{"name":"pushed","type":"uint256","indexed":false}]},
	{"name":"PositionClosed","type":"event","inputs":[
		{"name":"pulled","type":"uint256","indexed":false}]},
	{"name":"FeatureCalled","type":"event","inputs":[
		{"name":"feature","type":"address","indexed":true},
		{"name":"allocatedAfter","type":"uint256","indexed":false}]}
]`

var eventsABI = mustParseABI(eventsABIJSON)

// Topic IDs, exported for the poller's filter query.
var (
	TopicOwnershipTransferred  = eventsABI.Events["OwnershipTransferred"].ID
	TopicFeeCollectorUpdated   = eventsABI.Events["FeeCollectorUpdated"].ID
	TopicPositionDeployed      = eventsABI.Events["PositionDeployed"].ID
	TopicStrategyAdded         = eventsABI.Events["StrategyAdded"].ID
	TopicIsActiveUpdated       = eventsABI.Events["IsActiveUpdated"].ID
	TopicFeePolicyUpdated      = eventsABI.Events["FeePolicyUpdated"].ID
	TopicImplementationUpdated = eventsABI.Events["ImplementationUpdated"].ID
	TopicPositionOpened        = eventsABI.Events["PositionOpened"].ID
	TopicPositionClosed        = eventsABI.Events["PositionClosed"].ID
	TopicFeatureCalled         = eventsABI.Events["FeatureCalled"].ID
)

// AllTopics lists every topic the poller subscribes to.
func AllTopics() []common.Hash {
	return []common.Hash{
		TopicOwnershipTransferred,
		TopicFeeCollectorUpdated,
		TopicPositionDeployed,
		TopicStrategyAdded,
		TopicIsActiveUpdated,
		TopicFeePolicyUpdated,
		TopicImplementationUpdated,
		TopicPositionOpened,
		TopicPositionClosed,
		TopicFeatureCalled,
	}
}

// Event is the decoded form of a contract log. Address is the emitting
// contract (the registry or a position), Timestamp the block timestamp.
type Event struct {
	Address     common.Address
	BlockNumber uint64
	Timestamp   int64

	OwnershipTransferred *OwnershipTransferredEvent
	FeeCollectorUpdated  *FeeCollectorUpdatedEvent
	PositionDeployed     *PositionDeployedEvent
	StrategyAdded        *StrategyAddedEvent
	IsActiveUpdated      *IsActiveUpdatedEvent
	FeePolicyUpdated     *FeePolicyUpdatedEvent
	ImplementationUpd    *ImplementationUpdatedEvent
	PositionOpened       *PositionOpenedEvent
	PositionClosed       *PositionClosedEvent
	FeatureCalled        *FeatureCalledEvent
}

// OwnershipTransferredEvent creates the registry row on first sight.
type OwnershipTransferredEvent struct {
	PreviousOwner common.Address
	NewOwner      common.Address
}

// FeeCollectorUpdatedEvent updates the registry's fee collector.
type FeeCollectorUpdatedEvent struct {
	OldFeeCollector common.Address
	NewFeeCollector common.Address
}

// PositionDeployedEvent announces a freshly deployed position contract.
type PositionDeployedEvent struct {
	Owner      common.Address
	StrategyID *big.Int
	Position   common.Address
}

// StrategyAddedEvent registers a strategy implementation.
type StrategyAddedEvent struct {
	StrategyID     *big.Int
	Implementation common.Address
	FeePolicy      common.Address
}

// IsActiveUpdatedEvent toggles a strategy.
type IsActiveUpdatedEvent struct {
	StrategyID *big.Int
	IsActive   bool
}

// FeePolicyUpdatedEvent swaps a strategy's fee policy.
type FeePolicyUpdatedEvent struct {
	StrategyID   *big.Int
	NewFeePolicy common.Address
}

// ImplementationUpdatedEvent swaps a strategy's implementation.
type ImplementationUpdatedEvent struct {
	StrategyID        *big.Int
	NewImplementation common.Address
}

// PositionOpenedEvent opens (or reopens) a position.
type PositionOpenedEvent struct {
	Asset  common.Address
	Pushed *big.Int
}

// PositionClosedEvent closes a position.
type PositionClosedEvent struct {
	Pulled *big.Int
}

// FeatureCalledEvent records a feature invocation on an open position.
type FeatureCalledEvent struct {
	Feature        common.Address
	AllocatedAfter *big.Int
}

// DecodeLog decodes a raw log into a typed Event. Logs with unknown topics
// return (nil, nil) so the poller can skip them.
func DecodeLog(log *ethtypes.Log, timestamp int64) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	event := &Event{
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		Timestamp:   timestamp,
	}

	switch log.Topics[0] {
	case TopicOwnershipTransferred:
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("OwnershipTransferred: missing topics")
		}
		event.OwnershipTransferred = &OwnershipTransferredEvent{
			PreviousOwner: common.BytesToAddress(log.Topics[1].Bytes()),
			NewOwner:      common.BytesToAddress(log.Topics[2].Bytes()),
		}

	case TopicFeeCollectorUpdated:
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("FeeCollectorUpdated: missing topics")
		}
		event.FeeCollectorUpdated = &FeeCollectorUpdatedEvent{
			OldFeeCollector: common.BytesToAddress(log.Topics[1].Bytes()),
			NewFeeCollector: common.BytesToAddress(log.Topics[2].Bytes()),
		}

	case TopicPositionDeployed:
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("PositionDeployed: missing topics")
		}
		var data struct{ Position common.Address }
		if err := unpackData(&data, "PositionDeployed", log.Data); err != nil {
			return nil, err
		}
		event.PositionDeployed = &PositionDeployedEvent{
			Owner:      common.BytesToAddress(log.Topics[1].Bytes()),
			StrategyID: new(big.Int).SetBytes(log.Topics[2].Bytes()),
			Position:   data.Position,
		}

	case TopicStrategyAdded:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("StrategyAdded: missing topics")
		}
		var data struct {
			Implementation common.Address
			FeePolicy      common.Address
		}
		if err := unpackData(&data, "StrategyAdded", log.Data); err != nil {
			return nil, err
		}
		event.StrategyAdded = &StrategyAddedEvent{
			StrategyID:     new(big.Int).SetBytes(log.Topics[1].Bytes()),
			Implementation: data.Implementation,
			FeePolicy:      data.FeePolicy,
		}

	case TopicIsActiveUpdated:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("IsActiveUpdated: missing topics")
		}
		var data struct{ IsActive bool }
		if err := unpackData(&data, "IsActiveUpdated", log.Data); err != nil {
			return nil, err
		}
		event.IsActiveUpdated = &IsActiveUpdatedEvent{
			StrategyID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
			IsActive:   data.IsActive,
		}

	case TopicFeePolicyUpdated:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("FeePolicyUpdated: missing topics")
		}
		var data struct{ NewFeePolicy common.Address }
		if err := unpackData(&data, "FeePolicyUpdated", log.Data); err != nil {
			return nil, err
		}
		event.FeePolicyUpdated = &FeePolicyUpdatedEvent{
			StrategyID:   new(big.Int).SetBytes(log.Topics[1].Bytes()),
			NewFeePolicy: data.NewFeePolicy,
		}

	case TopicImplementationUpdated:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("ImplementationUpdated: missing topics")
		}
		var data struct{ NewImplementation common.Address }
		if err := unpackData(&data, "ImplementationUpdated", log.Data); err != nil {
			return nil, err
		}
		event.ImplementationUpd = &ImplementationUpdatedEvent{
			StrategyID:        new(big.Int).SetBytes(log.Topics[1].Bytes()),
			NewImplementation: data.NewImplementation,
		}

	case TopicPositionOpened:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("PositionOpened: missing topics")
		}
		var data struct{ Pushed *big.Int }
		if err := unpackData(&data, "PositionOpened", log.Data); err != nil {
			return nil, err
		}
		event.PositionOpened = &PositionOpenedEvent{
			Asset:  common.BytesToAddress(log.Topics[1].Bytes()),
			Pushed: data.Pushed,
		}

	case TopicPositionClosed:
		var data struct{ Pulled *big.Int }
		if err := unpackData(&data, "PositionClosed", log.Data); err != nil {
			return nil, err
		}
		event.PositionClosed = &PositionClosedEvent{Pulled: data.Pulled}

	case TopicFeatureCalled:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("FeatureCalled: missing topics")
		}
		var data struct{ AllocatedAfter *big.Int }
		if err := unpackData(&data, "FeatureCalled", log.Data); err != nil {
			return nil, err
		}
		event.FeatureCalled = &FeatureCalledEvent{
			Feature:        common.BytesToAddress(log.Topics[1].Bytes()),
			AllocatedAfter: data.AllocatedAfter,
		}

	default:
		return nil, nil
	}

	return event, nil
}

func unpackData(dst interface{}, name string, data []byte) error {
	if err := eventsABI.UnpackIntoInterface(dst, name, data); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", name, err)
	}
	return nil
}
