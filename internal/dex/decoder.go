package dex

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"rangeAMM/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map aliases extra topic0 hashes to a known event name, for forks that
	// changed an event signature but kept its leading fields.
	Topic0Map map[string]string
}

// DecodeContext provides shared dependencies for decoding.
type DecodeContext struct {
	Context         context.Context
	Live            *LiveReader
	PoolMetaCache   *PoolMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}

type decodeEntry struct {
	name  string
	event abi.Event
}

// EventDecoder decodes engine notifications and live V3 pool logs into typed events.
type EventDecoder struct {
	byTopic map[string]decodeEntry
}

func NewEventDecoder(cfg DecoderConfig) (*EventDecoder, error) {
	events, err := loadEvents()
	if err != nil {
		return nil, err
	}

	byTopic := make(map[string]decodeEntry, len(events)+len(cfg.Topic0Map))
	for name, event := range events {
		byTopic[strings.ToLower(event.ID.Hex())] = decodeEntry{name: name, event: event}
	}
	for topic0, name := range cfg.Topic0Map {
		event, ok := events[normalizeEventName(name)]
		if !ok {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
		if topic0 == "" {
			continue
		}
		byTopic[strings.ToLower(topic0)] = decodeEntry{name: normalizeEventName(name), event: event}
	}
	return &EventDecoder{byTopic: byTopic}, nil
}

func normalizeEventName(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, spec := range eventSpecs {
		if strings.EqualFold(spec.name, trimmed) {
			return spec.name
		}
	}
	return ""
}

// CanDecode checks if the topic0 is supported.
func (d *EventDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.byTopic[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *EventDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	entry, ok := d.byTopic[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}
	emitter := common.HexToAddress(log.Address)

	values, err := unpackEvent(entry.event, log.Topics, log.Data)
	if err != nil {
		return nil, err
	}
	payload, err := buildPayload(entry.name, values)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", entry.name, err)
	}

	var meta model.PoolMeta
	switch p := payload.(type) {
	case model.PoolCreatedEventData:
		meta = model.PoolMeta{
			Token0:    p.Token0,
			Token1:    p.Token1,
			Fee:       p.Fee,
			TickLower: p.TickLower,
			TickUpper: p.TickUpper,
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(common.HexToAddress(p.Pool), meta)
		}
	case model.InitializeEventData:
		if meta, err = getPoolMeta(ctx, emitter, log.BlockNumber); err != nil {
			return nil, err
		}
		meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: p.SqrtPriceX96, Tick: p.Tick}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(emitter, meta)
		}
	case model.MintEventData, model.BurnEventData, model.CollectEventData, model.SwapEventData:
		if meta, err = getPoolMeta(ctx, emitter, log.BlockNumber); err != nil {
			return nil, err
		}
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   entry.name,
		Timestamp:   log.Timestamp,
		Source:      log.Source,
		Decoded:     payload,
		PoolMeta:    meta,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func getPoolMeta(ctx DecodeContext, pool common.Address, blockNumber uint64) (model.PoolMeta, error) {
	var (
		meta model.PoolMeta
		ok   bool
	)
	if ctx.PoolMetaCache != nil {
		meta, ok = ctx.PoolMetaCache.Get(pool)
	}
	if ok && !ctx.IncludeLiveMeta {
		return meta, nil
	}
	if ctx.Live == nil {
		if ok {
			return meta, nil
		}
		return model.PoolMeta{}, fmt.Errorf("unknown pool %s", pool.Hex())
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}

	if !ok {
		var err error
		if meta, err = ctx.Live.PoolMeta(callCtx, pool); err != nil {
			return model.PoolMeta{}, err
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(pool, meta)
		}
	}

	if ctx.IncludeLiveMeta {
		if state, err := ctx.Live.PoolState(callCtx, pool, blockNumber); err == nil {
			if state.Liquidity != "" {
				meta.Liquidity = state.Liquidity
			}
			if state.Slot0 != nil {
				meta.Slot0 = state.Slot0
			}
		}
	}
	return meta, nil
}

func unpackEvent(event abi.Event, topics []string, dataHex string) (map[string]interface{}, error) {
	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return nil, err
	}

	values := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexed, hashes); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func buildPayload(name string, values map[string]interface{}) (interface{}, error) {
	r := &valueReader{values: values}
	var payload interface{}

	switch name {
	case model.EventPoolCreated:
		payload = model.PoolCreatedEventData{
			Token0:    r.address("token0"),
			Token1:    r.address("token1"),
			Fee:       r.uint24("fee"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Pool:      r.address("pool"),
		}
	case model.EventInitialize:
		payload = model.InitializeEventData{
			SqrtPriceX96: r.text("sqrtPriceX96"),
			Tick:         r.int24("tick"),
		}
	case model.EventSwap:
		payload = model.SwapEventData{
			Sender:       r.address("sender"),
			Recipient:    r.address("recipient"),
			Amount0:      r.text("amount0"),
			Amount1:      r.text("amount1"),
			SqrtPriceX96: r.text("sqrtPriceX96"),
			Liquidity:    r.text("liquidity"),
			Tick:         r.int24("tick"),
		}
	case model.EventMint:
		payload = model.MintEventData{
			Sender:    r.address("sender"),
			Owner:     r.address("owner"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Amount:    r.text("amount"),
			Amount0:   r.text("amount0"),
			Amount1:   r.text("amount1"),
		}
	case model.EventBurn:
		payload = model.BurnEventData{
			Owner:     r.address("owner"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Amount:    r.text("amount"),
			Amount0:   r.text("amount0"),
			Amount1:   r.text("amount1"),
		}
	case model.EventCollect:
		payload = model.CollectEventData{
			Owner:     r.address("owner"),
			Recipient: r.address("recipient"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Amount0:   r.text("amount0"),
			Amount1:   r.text("amount1"),
		}
	case model.EventTransfer:
		payload = model.TransferEventData{
			From:       r.address("from"),
			To:         r.address("to"),
			PositionID: r.text("tokenId"),
		}
	case model.EventIncreaseLiquidity, model.EventDecreaseLiquidity:
		payload = model.LiquidityEventData{
			PositionID: r.text("tokenId"),
			Liquidity:  r.text("liquidity"),
			Amount0:    r.text("amount0"),
			Amount1:    r.text("amount1"),
		}
	case model.EventCollectPosition:
		payload = model.PositionCollectEventData{
			PositionID: r.text("tokenId"),
			Recipient:  r.address("recipient"),
			Amount0:    r.text("amount0"),
			Amount1:    r.text("amount1"),
		}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}

	if r.err != nil {
		return nil, r.err
	}
	return payload, nil
}
