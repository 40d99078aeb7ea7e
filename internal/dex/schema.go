package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"rangeAMM/internal/model"
)

type eventSpec struct {
	name    string
	source  *lazyABI
	abiName string
}

// eventSpecs lists every notification the engine publishes.
var eventSpecs = []eventSpec{
	{name: model.EventPoolCreated, source: registryABI, abiName: "PoolCreated"},
	{name: model.EventInitialize, source: poolABI, abiName: "Initialize"},
	{name: model.EventMint, source: poolABI, abiName: "Mint"},
	{name: model.EventBurn, source: poolABI, abiName: "Burn"},
	{name: model.EventCollect, source: poolABI, abiName: "Collect"},
	{name: model.EventSwap, source: poolABI, abiName: "Swap"},
	{name: model.EventTransfer, source: positionsABI, abiName: "Transfer"},
	{name: model.EventIncreaseLiquidity, source: positionsABI, abiName: "IncreaseLiquidity"},
	{name: model.EventDecreaseLiquidity, source: positionsABI, abiName: "DecreaseLiquidity"},
	{name: model.EventCollectPosition, source: positionsABI, abiName: "Collect"},
}

func loadEvents() (map[string]abi.Event, error) {
	events := make(map[string]abi.Event, len(eventSpecs))
	for _, spec := range eventSpecs {
		parsed, err := spec.source.get()
		if err != nil {
			return nil, fmt.Errorf("parse abi for %s: %w", spec.name, err)
		}
		event, ok := parsed.Events[spec.abiName]
		if !ok {
			return nil, fmt.Errorf("abi has no event %s", spec.abiName)
		}
		events[spec.name] = event
	}
	return events, nil
}

// EventTopic returns the topic0 of a named notification.
func EventTopic(name string) (string, error) {
	events, err := loadEvents()
	if err != nil {
		return "", err
	}
	event, ok := events[name]
	if !ok {
		return "", fmt.Errorf("unknown event %s", name)
	}
	return event.ID.Hex(), nil
}
