package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rangeAMM/internal/model"
	"rangeAMM/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee INTEGER NOT NULL,
	tick_lower INTEGER NOT NULL,
	tick_upper INTEGER NOT NULL,
	pool_index INTEGER NOT NULL,
	created_at_seq BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS engine_events (
	chain_id BIGINT NOT NULL,
	seq BIGINT NOT NULL,
	log_index BIGINT NOT NULL,
	address TEXT NOT NULL,
	topics TEXT[] NOT NULL,
	data TEXT NOT NULL,
	ts BIGINT NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY (chain_id, seq, log_index)
);
CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	volume0 NUMERIC NOT NULL,
	volume1 NUMERIC NOT NULL,
	fee0 NUMERIC NOT NULL,
	fee1 NUMERIC NOT NULL,
	reserve0 NUMERIC,
	reserve1 NUMERIC,
	fee_rate0 NUMERIC,
	fee_rate1 NUMERIC,
	apr NUMERIC,
	fee_method TEXT NOT NULL,
	reserve_method TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS engine_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for the engine journal and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the store writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// PutLogs inserts engine notifications, ignoring records already stored.
func (s *Store) PutLogs(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, record := range logs {
		batch.Queue(`
			INSERT INTO engine_events (chain_id, seq, log_index, address, topics, data, ts, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (chain_id, seq, log_index) DO NOTHING
		`,
			int64(record.ChainID),
			int64(record.BlockNumber),
			int64(record.LogIndex),
			record.Address,
			record.Topics,
			record.Data,
			int64(record.Timestamp),
			record.Source,
		)
	}
	return s.sendBatch(ctx, batch, len(logs))
}

// Sink adapts the store to storage.Storage, using ctx for every batch.
func (s *Store) Sink(ctx context.Context) storage.Storage {
	return logSink{ctx: ctx, store: s}
}

type logSink struct {
	ctx   context.Context
	store *Store
}

func (l logSink) PutLogBatch(logs []model.LogRecord) error {
	return l.store.PutLogs(l.ctx, logs)
}

// UpsertPools inserts or updates registry records.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token0, token1, fee, tick_lower, tick_upper, pool_index, created_at_seq, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				pool_index = EXCLUDED.pool_index,
				created_at_seq = LEAST(pools.created_at_seq, EXCLUDED.created_at_seq),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Token0,
			pool.Token1,
			int64(pool.Fee),
			pool.TickLower,
			pool.TickUpper,
			pool.Index,
			int64(pool.CreatedAtSeq),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume0, volume1, fee0, fee1, reserve0, reserve1,
				fee_rate0, fee_rate1, apr, fee_method, reserve_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				reserve_method = EXCLUDED.reserve_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.Volume0,
			m.Volume1,
			m.Fee0,
			m.Fee1,
			m.Reserve0,
			m.Reserve1,
			m.FeeRate0,
			m.FeeRate1,
			m.APR,
			m.FeeMethod,
			m.ReserveMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM engine_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engine_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
