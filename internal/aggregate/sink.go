package aggregate

import (
	"context"

	"go.uber.org/zap"

	"rangeAMM/internal/model"
)

// MetricsSink receives pool records and finished windows. *postgres.Store satisfies it.
type MetricsSink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// LogSink writes pool records and window metrics to a logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) UpsertPools(_ context.Context, pools []model.Pool) error {
	for _, pool := range pools {
		s.logger().Info("pool",
			zap.String("address", pool.Address),
			zap.String("token0", pool.Token0),
			zap.String("token1", pool.Token1),
			zap.Uint32("fee", pool.Fee),
			zap.Int32("tick_lower", pool.TickLower),
			zap.Int32("tick_upper", pool.TickUpper),
			zap.Int("index", pool.Index),
		)
	}
	return nil
}

func (s LogSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	for _, m := range metrics {
		s.logger().Info("window",
			zap.String("pool", m.PoolAddress),
			zap.Time("start", m.WindowStart),
			zap.Uint64("swaps", m.SwapCount),
			zap.String("volume0", m.Volume0),
			zap.String("volume1", m.Volume1),
			zap.String("fee0", m.Fee0),
			zap.String("fee1", m.Fee1),
			zap.Stringp("reserve0", m.Reserve0),
			zap.Stringp("reserve1", m.Reserve1),
			zap.Stringp("apr", m.APR),
			zap.String("reserve_method", m.ReserveMethod),
		)
	}
	return nil
}

func (s LogSink) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
