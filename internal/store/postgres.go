package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Every engine integer is stored as NUMERIC and read back as text, so no
// value ever passes through a float.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// parse reads a NUMERIC::TEXT column into dst.
func parse[S decimal.Spec](dst *decimal.Decimal[S], text string) error {
	v, err := decimal.Parse[S](text)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (s *PostgresStore) ApplyChangeSet(ctx context.Context, cs engine.ChangeSet) error {
	batch := &pgx.Batch{}

	if cs.Config != nil {
		batch.Queue(`
			INSERT INTO engine_config (id, admin, protocol_fee, updated_at)
			VALUES (1, $1, $2::NUMERIC, now())
			ON CONFLICT (id) DO UPDATE SET
				admin = EXCLUDED.admin,
				protocol_fee = EXCLUDED.protocol_fee,
				updated_at = now()`,
			cs.Config.Admin.Hex(), cs.Config.ProtocolFee.RawString())
	}

	if replacesFeeTiers(cs.Op) {
		batch.Queue(`DELETE FROM fee_tiers`)
		for i, t := range cs.FeeTiers {
			batch.Queue(`INSERT INTO fee_tiers (ord, fee, tick_spacing) VALUES ($1, $2::NUMERIC, $3)`,
				i, t.Fee.RawString(), int32(t.TickSpacing))
		}
	}

	for _, ps := range cs.Pools {
		p := ps.Pool
		batch.Queue(`
			INSERT INTO pools (
				pool_key, liquidity, sqrt_price, current_tick_index,
				fee_growth_global_x, fee_growth_global_y,
				fee_protocol_token_x, fee_protocol_token_y,
				seconds_per_liquidity_global, start_timestamp, last_timestamp,
				fee_receiver, updated_at
			) VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5::NUMERIC, $6::NUMERIC,
			          $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11, $12, now())
			ON CONFLICT (pool_key) DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				sqrt_price = EXCLUDED.sqrt_price,
				current_tick_index = EXCLUDED.current_tick_index,
				fee_growth_global_x = EXCLUDED.fee_growth_global_x,
				fee_growth_global_y = EXCLUDED.fee_growth_global_y,
				fee_protocol_token_x = EXCLUDED.fee_protocol_token_x,
				fee_protocol_token_y = EXCLUDED.fee_protocol_token_y,
				seconds_per_liquidity_global = EXCLUDED.seconds_per_liquidity_global,
				last_timestamp = EXCLUDED.last_timestamp,
				fee_receiver = EXCLUDED.fee_receiver,
				updated_at = now()`,
			ps.Key.String(),
			p.Liquidity.RawString(), p.SqrtPrice.RawString(), p.CurrentTickIndex,
			p.FeeGrowthGlobalX.RawString(), p.FeeGrowthGlobalY.RawString(),
			p.FeeProtocolTokenX.RawString(), p.FeeProtocolTokenY.RawString(),
			p.SecondsPerLiquidityGlobal.RawString(),
			int64(p.StartTimestamp), int64(p.LastTimestamp),
			p.FeeReceiver.Hex(),
		)
	}

	for _, ts := range cs.Ticks {
		if ts.Removed {
			batch.Queue(`DELETE FROM ticks WHERE pool_key = $1 AND idx = $2`, ts.Key.String(), ts.Index)
			continue
		}
		t := ts.Tick
		batch.Queue(`
			INSERT INTO ticks (
				pool_key, idx, sign, liquidity_change, liquidity_gross, sqrt_price,
				fee_growth_outside_x, fee_growth_outside_y,
				seconds_per_liquidity_outside, seconds_outside
			) VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC,
			          $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)
			ON CONFLICT (pool_key, idx) DO UPDATE SET
				sign = EXCLUDED.sign,
				liquidity_change = EXCLUDED.liquidity_change,
				liquidity_gross = EXCLUDED.liquidity_gross,
				fee_growth_outside_x = EXCLUDED.fee_growth_outside_x,
				fee_growth_outside_y = EXCLUDED.fee_growth_outside_y,
				seconds_per_liquidity_outside = EXCLUDED.seconds_per_liquidity_outside,
				seconds_outside = EXCLUDED.seconds_outside`,
			ts.Key.String(), t.Index, t.Sign,
			t.LiquidityChange.RawString(), t.LiquidityGross.RawString(), t.SqrtPrice.RawString(),
			t.FeeGrowthOutsideX.RawString(), t.FeeGrowthOutsideY.RawString(),
			t.SecondsPerLiquidityOutside.RawString(), int64(t.SecondsOutside),
		)
	}

	// Owner lists are dense arrays, so each touched list is rewritten whole.
	for _, op := range cs.Positions {
		owner := op.Owner.Hex()
		batch.Queue(`DELETE FROM positions WHERE owner = $1`, owner)
		for i, p := range op.Positions {
			batch.Queue(`
				INSERT INTO positions (
					owner, idx, pool_key, liquidity, lower_tick_index, upper_tick_index,
					fee_growth_inside_x, fee_growth_inside_y, last_block_number,
					tokens_owed_x, tokens_owed_y
				) VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7::NUMERIC, $8::NUMERIC, $9,
				          $10::NUMERIC, $11::NUMERIC)`,
				owner, i, p.PoolKey.String(), p.Liquidity.RawString(),
				p.LowerTickIndex, p.UpperTickIndex,
				p.FeeGrowthInsideX.RawString(), p.FeeGrowthInsideY.RawString(),
				int64(p.LastBlockNumber),
				p.TokensOwedX.RawString(), p.TokensOwedY.RawString(),
			)
		}
	}

	if batch.Len() == 0 {
		return nil
	}
	return s.execBatch(ctx, fmt.Sprintf("apply %s", cs.Op), batch)
}

// execBatch runs batch inside one transaction.
func (s *PostgresStore) execBatch(ctx context.Context, what string, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", what, err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%s: statement %d: %w", what, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context) (engine.Snapshot, error) {
	var snap engine.Snapshot

	var admin, fee string
	err := s.pool.QueryRow(ctx, `SELECT admin, protocol_fee::TEXT FROM engine_config WHERE id = 1`).Scan(&admin, &fee)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return snap, fmt.Errorf("load config: %w", err)
	default:
		snap.Config.Admin = common.HexToAddress(admin)
		if err := parse(&snap.Config.ProtocolFee, fee); err != nil {
			return snap, fmt.Errorf("load config: %w", err)
		}
	}

	if snap.FeeTiers, err = s.loadFeeTiers(ctx); err != nil {
		return snap, err
	}
	if snap.Pools, err = s.loadPools(ctx); err != nil {
		return snap, err
	}
	if snap.Ticks, err = s.loadTicks(ctx); err != nil {
		return snap, err
	}
	if snap.Positions, err = s.loadPositions(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *PostgresStore) loadFeeTiers(ctx context.Context) ([]model.FeeTier, error) {
	rows, err := s.pool.Query(ctx, `SELECT fee::TEXT, tick_spacing FROM fee_tiers ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("load fee tiers: %w", err)
	}
	defer rows.Close()

	var tiers []model.FeeTier
	for rows.Next() {
		var fee string
		var spacing int32
		if err := rows.Scan(&fee, &spacing); err != nil {
			return nil, err
		}
		t := model.FeeTier{TickSpacing: uint16(spacing)}
		if err := parse(&t.Fee, fee); err != nil {
			return nil, fmt.Errorf("load fee tiers: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *PostgresStore) loadPools(ctx context.Context) ([]engine.PoolState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_key, liquidity::TEXT, sqrt_price::TEXT, current_tick_index,
		       fee_growth_global_x::TEXT, fee_growth_global_y::TEXT,
		       fee_protocol_token_x::TEXT, fee_protocol_token_y::TEXT,
		       seconds_per_liquidity_global::TEXT, start_timestamp, last_timestamp,
		       fee_receiver
		FROM pools ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}
	defer rows.Close()

	var pools []engine.PoolState
	for rows.Next() {
		var (
			key, liq, price, fgx, fgy, px, py, spl, receiver string
			tick                                             int32
			start, last                                      int64
		)
		if err := rows.Scan(&key, &liq, &price, &tick, &fgx, &fgy, &px, &py, &spl, &start, &last, &receiver); err != nil {
			return nil, err
		}
		pk, err := model.ParsePoolKey(key)
		if err != nil {
			return nil, fmt.Errorf("load pools: %w", err)
		}
		p := model.Pool{
			CurrentTickIndex: tick,
			StartTimestamp:   uint64(start),
			LastTimestamp:    uint64(last),
			FeeReceiver:      common.HexToAddress(receiver),
		}
		err = errors.Join(
			parse(&p.Liquidity, liq),
			parse(&p.SqrtPrice, price),
			parse(&p.FeeGrowthGlobalX, fgx),
			parse(&p.FeeGrowthGlobalY, fgy),
			parse(&p.FeeProtocolTokenX, px),
			parse(&p.FeeProtocolTokenY, py),
			parse(&p.SecondsPerLiquidityGlobal, spl),
		)
		if err != nil {
			return nil, fmt.Errorf("load pool %s: %w", key, err)
		}
		pools = append(pools, engine.PoolState{Key: pk, Pool: p})
	}
	return pools, rows.Err()
}

func (s *PostgresStore) loadTicks(ctx context.Context) ([]engine.TickState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_key, idx, sign, liquidity_change::TEXT, liquidity_gross::TEXT,
		       sqrt_price::TEXT, fee_growth_outside_x::TEXT, fee_growth_outside_y::TEXT,
		       seconds_per_liquidity_outside::TEXT, seconds_outside
		FROM ticks ORDER BY pool_key, idx`)
	if err != nil {
		return nil, fmt.Errorf("load ticks: %w", err)
	}
	defer rows.Close()

	var ticks []engine.TickState
	for rows.Next() {
		var (
			key, change, gross, price, fgx, fgy, spl string
			t                                        model.Tick
			outside                                  int64
		)
		if err := rows.Scan(&key, &t.Index, &t.Sign, &change, &gross, &price, &fgx, &fgy, &spl, &outside); err != nil {
			return nil, err
		}
		pk, err := model.ParsePoolKey(key)
		if err != nil {
			return nil, fmt.Errorf("load ticks: %w", err)
		}
		t.SecondsOutside = uint64(outside)
		err = errors.Join(
			parse(&t.LiquidityChange, change),
			parse(&t.LiquidityGross, gross),
			parse(&t.SqrtPrice, price),
			parse(&t.FeeGrowthOutsideX, fgx),
			parse(&t.FeeGrowthOutsideY, fgy),
			parse(&t.SecondsPerLiquidityOutside, spl),
		)
		if err != nil {
			return nil, fmt.Errorf("load tick %s/%d: %w", key, t.Index, err)
		}
		ticks = append(ticks, engine.TickState{Key: pk, Index: t.Index, Tick: t})
	}
	return ticks, rows.Err()
}

func (s *PostgresStore) loadPositions(ctx context.Context) ([]engine.OwnerPositions, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner, pool_key, liquidity::TEXT, lower_tick_index, upper_tick_index,
		       fee_growth_inside_x::TEXT, fee_growth_inside_y::TEXT, last_block_number,
		       tokens_owed_x::TEXT, tokens_owed_y::TEXT
		FROM positions ORDER BY owner, idx`)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var out []engine.OwnerPositions
	for rows.Next() {
		var (
			owner, key, liq, fgx, fgy, ox, oy string
			p                                 model.Position
			block                             int64
		)
		if err := rows.Scan(&owner, &key, &liq, &p.LowerTickIndex, &p.UpperTickIndex, &fgx, &fgy, &block, &ox, &oy); err != nil {
			return nil, err
		}
		if p.PoolKey, err = model.ParsePoolKey(key); err != nil {
			return nil, fmt.Errorf("load positions: %w", err)
		}
		p.LastBlockNumber = uint64(block)
		err = errors.Join(
			parse(&p.Liquidity, liq),
			parse(&p.FeeGrowthInsideX, fgx),
			parse(&p.FeeGrowthInsideY, fgy),
			parse(&p.TokensOwedX, ox),
			parse(&p.TokensOwedY, oy),
		)
		if err != nil {
			return nil, fmt.Errorf("load position of %s: %w", owner, err)
		}
		addr := common.HexToAddress(owner)
		if n := len(out); n > 0 && out[n-1].Owner == addr {
			out[n-1].Positions = append(out[n-1].Positions, p)
			continue
		}
		out = append(out, engine.OwnerPositions{Owner: addr, Positions: []model.Position{p}})
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveBalances(ctx context.Context, account common.Address, balances Balances) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM balances WHERE account = $1`, account.Hex())
	for token, amount := range balances {
		batch.Queue(`INSERT INTO balances (account, token, amount) VALUES ($1, $2, $3::NUMERIC)`,
			account.Hex(), token.Hex(), amount.RawString())
	}
	return s.execBatch(ctx, "save balances", batch)
}

func (s *PostgresStore) LoadBalances(ctx context.Context) (map[common.Address]Balances, error) {
	rows, err := s.pool.Query(ctx, `SELECT account, token, amount::TEXT FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	out := make(map[common.Address]Balances)
	for rows.Next() {
		var account, token, amount string
		if err := rows.Scan(&account, &token, &amount); err != nil {
			return nil, err
		}
		v, err := decimal.Parse[decimal.TokenAmountSpec](amount)
		if err != nil {
			return nil, fmt.Errorf("load balances: %w", err)
		}
		a := common.HexToAddress(account)
		if out[a] == nil {
			out[a] = make(Balances)
		}
		out[a][common.HexToAddress(token)] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertSwapReceipts(ctx context.Context, receipts []SwapReceipt) error {
	if len(receipts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range receipts {
		batch.Queue(`
			INSERT INTO swap_receipts (
				id, op, caller, hop, pool_key, x_to_y, amount_in, amount_out, fee,
				start_sqrt_price, end_sqrt_price, crossed_ticks, ts, block, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
			          $10::NUMERIC, $11::NUMERIC, $12, $13, $14, $15)`,
			r.ID, string(r.Op), r.Caller.Hex(), r.Hop, r.PoolKey.String(), r.XToY,
			r.AmountIn.RawString(), r.AmountOut.RawString(), r.Fee.RawString(),
			r.StartSqrtPrice.RawString(), r.EndSqrtPrice.RawString(),
			r.CrossedTicks, int64(r.Timestamp), int64(r.Block), r.CreatedAt,
		)
	}
	return s.execBatch(ctx, "insert receipts", batch)
}

const receiptColumns = `
	SELECT id::TEXT, op, caller, hop, pool_key, x_to_y, amount_in::TEXT, amount_out::TEXT,
	       fee::TEXT, start_sqrt_price::TEXT, end_sqrt_price::TEXT, crossed_ticks,
	       ts, block, created_at
	FROM swap_receipts`

func (s *PostgresStore) ListSwapReceiptsByPool(ctx context.Context, key model.PoolKey) ([]SwapReceipt, error) {
	return s.queryReceipts(ctx, receiptColumns+` WHERE pool_key = $1 ORDER BY created_at, hop`, key.String())
}

func (s *PostgresStore) ListSwapReceiptsByAccount(ctx context.Context, account common.Address) ([]SwapReceipt, error) {
	return s.queryReceipts(ctx, receiptColumns+` WHERE caller = $1 ORDER BY created_at, hop`, account.Hex())
}

func (s *PostgresStore) queryReceipts(ctx context.Context, query string, arg string) ([]SwapReceipt, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []SwapReceipt
	for rows.Next() {
		var (
			r                                   SwapReceipt
			op, caller, key, in, out, fee, a, b string
			ts, block                           int64
		)
		if err := rows.Scan(&r.ID, &op, &caller, &r.Hop, &key, &r.XToY, &in, &out, &fee, &a, &b,
			&r.CrossedTicks, &ts, &block, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.PoolKey, err = model.ParsePoolKey(key); err != nil {
			return nil, err
		}
		r.Op = engine.Op(op)
		r.Caller = common.HexToAddress(caller)
		r.Timestamp, r.Block = uint64(ts), uint64(block)
		err = errors.Join(
			parse(&r.AmountIn, in),
			parse(&r.AmountOut, out),
			parse(&r.Fee, fee),
			parse(&r.StartSqrtPrice, a),
			parse(&r.EndSqrtPrice, b),
		)
		if err != nil {
			return nil, fmt.Errorf("receipt %s: %w", r.ID, err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
