package scenario

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/positions"
	"rangeAMM/internal/registry"
	"rangeAMM/internal/router"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/token"
)

var (
	RegistryAddress  = common.HexToAddress("0x000000000000000000000000000000000000a001")
	RouterAddress    = common.HexToAddress("0x000000000000000000000000000000000000a002")
	PositionsAddress = common.HexToAddress("0x000000000000000000000000000000000000a003")
)

// Engine wires every component over one token ledger and one notification stream.
type Engine struct {
	ChainID   uint64
	Ledger    *token.Ledger
	Stream    *notify.Stream
	Registry  *registry.Registry
	Router    *router.Router
	Positions *positions.Manager
}

func NewEngine(chainID uint64, sinks []storage.Storage, logger *zap.Logger, opts ...notify.Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]notify.Option{notify.WithLogger(logger)}, opts...)
	stream, err := notify.NewStream(chainID, sinks, opts...)
	if err != nil {
		return nil, err
	}
	ledger := token.NewLedger()
	reg := registry.New(RegistryAddress, ledger, stream, logger)
	return &Engine{
		ChainID:   chainID,
		Ledger:    ledger,
		Stream:    stream,
		Registry:  reg,
		Router:    router.New(RouterAddress, reg, ledger, stream, logger),
		Positions: positions.New(PositionsAddress, reg, ledger, stream, logger),
	}, nil
}

// PoolSummary is the end state of one pool.
type PoolSummary struct {
	Record   model.Pool
	State    pool.State
	Reserve0 string
	Reserve1 string
}

// Summary lists every pool in creation order.
func (e *Engine) Summary() []PoolSummary {
	records := e.Registry.Records(e.ChainID)
	out := make([]PoolSummary, 0, len(records))
	for _, record := range records {
		p, err := e.Registry.Lookup(common.HexToAddress(record.Address))
		if err != nil {
			continue
		}
		r0, r1 := p.Reserves()
		out = append(out, PoolSummary{
			Record:   record,
			State:    p.State(),
			Reserve0: r0.ToBig().String(),
			Reserve1: r1.ToBig().String(),
		})
	}
	return out
}
