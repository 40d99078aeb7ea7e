package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"rangeAMM/internal/model"
)

// Encoder turns notification payloads into EVM-style log topics and data.
type Encoder struct {
	events map[string]abi.Event
}

func NewEncoder() (*Encoder, error) {
	events, err := loadEvents()
	if err != nil {
		return nil, err
	}
	return &Encoder{events: events}, nil
}

// Encode returns the topics and ABI-packed data for a named payload.
func (e *Encoder) Encode(name string, payload interface{}) ([]common.Hash, []byte, error) {
	event, ok := e.events[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown event %s", name)
	}
	values, err := payloadValues(name, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", name, err)
	}

	topics := []common.Hash{event.ID}
	data := make([]interface{}, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		value, ok := values[input.Name]
		if !ok {
			return nil, nil, fmt.Errorf("encode %s: missing field %s", name, input.Name)
		}
		if !input.Indexed {
			data = append(data, value)
			continue
		}
		topic, err := abi.MakeTopics([]interface{}{value})
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s topic %s: %w", name, input.Name, err)
		}
		topics = append(topics, topic[0][0])
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return topics, packed, nil
}

type valueBuilder struct {
	values map[string]interface{}
	err    error
}

func (b *valueBuilder) big(key, value string) {
	if b.err != nil {
		return
	}
	parsed, err := parseBig(value)
	if err != nil {
		b.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	b.values[key] = parsed
}

func (b *valueBuilder) integer(key string, value int64) {
	b.values[key] = big.NewInt(value)
}

func (b *valueBuilder) address(key, value string) {
	if b.err != nil {
		return
	}
	parsed, err := parseAddress(value)
	if err != nil {
		b.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	b.values[key] = parsed
}

func payloadValues(name string, payload interface{}) (map[string]interface{}, error) {
	b := &valueBuilder{values: make(map[string]interface{})}

	switch p := payload.(type) {
	case model.PoolCreatedEventData:
		b.address("token0", p.Token0)
		b.address("token1", p.Token1)
		b.integer("fee", int64(p.Fee))
		b.integer("tickLower", int64(p.TickLower))
		b.integer("tickUpper", int64(p.TickUpper))
		b.address("pool", p.Pool)
	case model.InitializeEventData:
		b.big("sqrtPriceX96", p.SqrtPriceX96)
		b.integer("tick", int64(p.Tick))
	case model.SwapEventData:
		b.address("sender", p.Sender)
		b.address("recipient", p.Recipient)
		b.big("amount0", p.Amount0)
		b.big("amount1", p.Amount1)
		b.big("sqrtPriceX96", p.SqrtPriceX96)
		b.big("liquidity", p.Liquidity)
		b.integer("tick", int64(p.Tick))
	case model.MintEventData:
		b.address("sender", p.Sender)
		b.address("owner", p.Owner)
		b.integer("tickLower", int64(p.TickLower))
		b.integer("tickUpper", int64(p.TickUpper))
		b.big("amount", p.Amount)
		b.big("amount0", p.Amount0)
		b.big("amount1", p.Amount1)
	case model.BurnEventData:
		b.address("owner", p.Owner)
		b.integer("tickLower", int64(p.TickLower))
		b.integer("tickUpper", int64(p.TickUpper))
		b.big("amount", p.Amount)
		b.big("amount0", p.Amount0)
		b.big("amount1", p.Amount1)
	case model.CollectEventData:
		b.address("owner", p.Owner)
		b.address("recipient", p.Recipient)
		b.integer("tickLower", int64(p.TickLower))
		b.integer("tickUpper", int64(p.TickUpper))
		b.big("amount0", p.Amount0)
		b.big("amount1", p.Amount1)
	case model.TransferEventData:
		b.address("from", p.From)
		b.address("to", p.To)
		b.big("tokenId", p.PositionID)
	case model.LiquidityEventData:
		if name != model.EventIncreaseLiquidity && name != model.EventDecreaseLiquidity {
			return nil, fmt.Errorf("liquidity payload under event %s", name)
		}
		b.big("tokenId", p.PositionID)
		b.big("liquidity", p.Liquidity)
		b.big("amount0", p.Amount0)
		b.big("amount1", p.Amount1)
	case model.PositionCollectEventData:
		b.big("tokenId", p.PositionID)
		b.address("recipient", p.Recipient)
		b.big("amount0", p.Amount0)
		b.big("amount1", p.Amount1)
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.values, nil
}
