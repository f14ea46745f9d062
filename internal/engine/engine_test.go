package engine_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clamm-engine/internal/collections"
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/ledger"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/route"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000ad000")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	vault  = common.HexToAddress("0x000000000000000000000000000000000000fa17")
	tokenX = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenY = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tokenZ = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	// 0.6% fee, spacing 10
	tier        = model.FeeTier{Fee: decimal.NewPercentage(6_000_000_000), TickSpacing: 10}
	protocolFee = decimal.NewPercentage(10_000_000_000) // 1%
	million     = decimal.NewLiquidity(1_000_000_000_000)
	funds       = decimal.NewTokenAmount(1_000_000_000)
)

type fixture struct {
	s      *engine.State
	env    *engine.FixedEnv
	book   *ledger.Book
	key    model.PoolKey
	events []engine.ChangeSet
}

func price(t *testing.T, tick int32) decimal.SqrtPrice {
	t.Helper()
	p, err := tickmath.SqrtPriceAt(tick)
	require.NoError(t, err)
	return p
}

func amt(v uint64) decimal.TokenAmount { return decimal.NewTokenAmount(v) }

// newFixture opens an X/Y pool at tick 0 and funds alice and bob.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		env:  &engine.FixedEnv{Time: 1000, Block: 1},
		book: ledger.New(vault),
	}
	s, err := engine.New(engine.Config{Admin: admin, ProtocolFee: protocolFee},
		engine.WithEnv(f.env),
		engine.WithBank(f.book),
		engine.WithCommitHook(func(cs engine.ChangeSet) { f.events = append(f.events, cs) }),
	)
	require.NoError(t, err)
	f.s = s

	require.NoError(t, s.AddFeeTier(admin, tier))
	f.key, err = s.CreatePool(admin, tokenY, tokenX, tier, price(t, 0), 0)
	require.NoError(t, err)

	for _, who := range []common.Address{alice, bob} {
		for _, token := range []common.Address{tokenX, tokenY, tokenZ} {
			require.NoError(t, f.book.Deposit(who, token, funds))
		}
	}
	return f
}

func (f *fixture) deposit(t *testing.T, key model.PoolKey, lower, upper int32) engine.PositionChange {
	t.Helper()
	pc, err := f.s.CreatePosition(alice, key, lower, upper, million, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice)
	require.NoError(t, err)
	return pc
}

func (f *fixture) spent(who, token common.Address) uint64 {
	return funds.Sub(f.book.Balance(who, token)).Uint64()
}

func xToY(key model.PoolKey, amount uint64) engine.SwapParams {
	return engine.SwapParams{
		PoolKey:        key,
		XToY:           true,
		Amount:         amt(amount),
		ByAmountIn:     true,
		SqrtPriceLimit: tickmath.MinSqrtPrice,
	}
}

func TestScenarioA_PositionLifecycle(t *testing.T) {
	f := newFixture(t)

	pc := f.deposit(t, f.key, -20, 10)
	assert.Equal(t, uint32(0), pc.Index)
	assert.Equal(t, uint64(500), pc.X.Uint64())
	assert.Equal(t, uint64(1000), pc.Y.Uint64())
	assert.Equal(t, uint64(500), f.spent(alice, tokenX))
	assert.True(t, f.s.IsTickInitialized(f.key, -20))
	assert.True(t, f.s.IsTickInitialized(f.key, 10))

	res, err := f.s.Swap(bob, xToY(f.key, 1000))
	require.NoError(t, err)
	assert.Equal(t, engine.Exhausted, res.State)
	assert.Equal(t, uint64(1000), res.AmountIn.Uint64())
	assert.Equal(t, uint64(993), res.AmountOut.Uint64())
	assert.Equal(t, uint64(6), res.Fee.Uint64())
	assert.Empty(t, res.CrossedTicks)

	pool, err := f.s.GetPool(f.key)
	require.NoError(t, err)
	assert.Equal(t, int32(-20), pool.CurrentTickIndex)
	assert.Equal(t, "999006987054867461743028", pool.SqrtPrice.RawString())
	assert.Equal(t, uint64(1), pool.FeeProtocolTokenX.Uint64())
	assert.Equal(t, "50000000000000000000000", pool.FeeGrowthGlobalX.RawString())
	assert.Equal(t, uint64(1000), f.spent(bob, tokenX))
	assert.Equal(t, uint64(993), f.book.Balance(bob, tokenY).Sub(funds).Uint64())

	claim, err := f.s.ClaimFee(alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), claim.X.Uint64())
	assert.True(t, claim.Y.IsZero())

	removed, err := f.s.RemovePosition(alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1493), removed.X.Uint64())
	assert.Equal(t, uint64(6), removed.Y.Uint64())
	assert.False(t, f.s.IsTickInitialized(f.key, -20))
	assert.False(t, f.s.IsTickInitialized(f.key, 10))
	_, err = f.s.GetTick(f.key, -20)
	assert.ErrorIs(t, err, collections.ErrTickNotFound)
	_, err = f.s.GetPosition(alice, 0)
	assert.ErrorIs(t, err, collections.ErrPositionNotFound)

	_, _, err = f.s.WithdrawProtocolFee(bob, f.key)
	assert.ErrorIs(t, err, engine.ErrNotFeeReceiver)
	px, py, err := f.s.WithdrawProtocolFee(admin, f.key)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), px.Uint64())
	assert.True(t, py.IsZero())

	// rounding always favours the pool: dust stays in the vault
	assert.Equal(t, uint64(1), f.book.Balance(vault, tokenX).Uint64())
	assert.Equal(t, uint64(1), f.book.Balance(vault, tokenY).Uint64())
}

func TestScenarioC_RemovedFeeTier(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 10)

	require.NoError(t, f.s.RemoveFeeTier(admin, tier))
	assert.False(t, f.s.FeeTierExists(tier))

	_, err := f.s.Swap(bob, xToY(f.key, 100))
	assert.NoError(t, err, "existing pools keep trading")

	_, err = f.s.CreatePool(admin, tokenX, tokenZ, tier, price(t, 0), 0)
	assert.ErrorIs(t, err, collections.ErrFeeTierNotFound)

	require.NoError(t, f.s.AddFeeTier(admin, tier))
	_, err = f.s.CreatePool(admin, tokenX, tokenY, tier, price(t, 0), 0)
	assert.ErrorIs(t, err, collections.ErrPoolAlreadyExist)
	_, err = f.s.CreatePool(admin, tokenX, tokenZ, tier, price(t, 0), 0)
	assert.NoError(t, err)

	keys, count := f.s.GetPoolKeys(0, 10)
	assert.Equal(t, uint16(2), count)
	assert.Len(t, keys, 2)
	assert.ErrorIs(t, f.s.AddFeeTier(admin, tier), collections.ErrFeeTierAlreadyExist)
}

func TestScenarioD_DenseRemoval(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 10)
	f.deposit(t, f.key, -40, 40)
	f.deposit(t, f.key, -60, 60)

	_, err := f.s.RemovePosition(alice, 0)
	require.NoError(t, err)

	list, total := f.s.GetPositions(alice, 0, 10)
	assert.Equal(t, uint32(2), total)
	assert.Equal(t, int32(-60), list[0].LowerTickIndex, "last position moves into the freed slot")
	assert.Equal(t, int32(-40), list[1].LowerTickIndex)
	_, err = f.s.GetPosition(alice, 2)
	assert.ErrorIs(t, err, collections.ErrPositionNotFound)

	require.NoError(t, f.s.TransferPosition(alice, 0, bob))
	got, err := f.s.GetPosition(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(60), got.UpperTickIndex)
	list, total = f.s.GetPositions(alice, 0, 10)
	assert.Equal(t, uint32(1), total)
	assert.Equal(t, int32(40), list[0].UpperTickIndex)
}

func TestSwap_CrossesTick(t *testing.T) {
	t.Run("x to y by input", func(t *testing.T) {
		f := newFixture(t)
		a := f.deposit(t, f.key, -20, 20)
		b := f.deposit(t, f.key, -60, 60)
		assert.Equal(t, []uint64{1000, 1000, 2996, 2996}, []uint64{a.X.Uint64(), a.Y.Uint64(), b.X.Uint64(), b.Y.Uint64()})

		res, err := f.s.Swap(bob, xToY(f.key, 3000))
		require.NoError(t, err)
		assert.Equal(t, uint64(3000), res.AmountIn.Uint64())
		assert.Equal(t, uint64(2975), res.AmountOut.Uint64())
		assert.Equal(t, uint64(19), res.Fee.Uint64())
		require.Len(t, res.CrossedTicks, 1)
		assert.Equal(t, int32(-20), res.CrossedTicks[0].Index)

		pool, _ := f.s.GetPool(f.key)
		assert.Equal(t, int32(-40), pool.CurrentTickIndex)
		assert.Equal(t, "998023464310251504168070", pool.SqrtPrice.RawString())
		assert.True(t, pool.Liquidity.Eq(million), "only the wide position is left in range")
		assert.Equal(t, uint64(2), pool.FeeProtocolTokenX.Uint64())
		assert.Equal(t, "110000000000000000000000", pool.FeeGrowthGlobalX.RawString())

		crossed, err := f.s.GetTick(f.key, -20)
		require.NoError(t, err)
		assert.Equal(t, res.CrossedTicks[0], crossed)

		last := f.events[len(f.events)-1]
		assert.Equal(t, engine.OpSwap, last.Op)
		require.Len(t, last.Swaps, 1)
		assert.Equal(t, []int32{-20}, last.Swaps[0].CrossedTicks)
		require.Len(t, last.Ticks, 1)
		assert.Equal(t, int32(-20), last.Ticks[0].Index)
	})

	t.Run("y to x by output", func(t *testing.T) {
		f := newFixture(t)
		f.deposit(t, f.key, -20, 20)
		f.deposit(t, f.key, -60, 60)

		res, err := f.s.Swap(bob, engine.SwapParams{
			PoolKey:        f.key,
			Amount:         amt(2000),
			SqrtPriceLimit: tickmath.MaxSqrtPrice,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(2018), res.AmountIn.Uint64())
		assert.Equal(t, uint64(2000), res.AmountOut.Uint64())
		assert.Equal(t, uint64(14), res.Fee.Uint64())
		require.Len(t, res.CrossedTicks, 1)
		assert.Equal(t, int32(20), res.CrossedTicks[0].Index)

		pool, _ := f.s.GetPool(f.key)
		assert.Equal(t, int32(20), pool.CurrentTickIndex)
		assert.Equal(t, "1001002454127814306333546", pool.SqrtPrice.RawString())
		assert.Equal(t, uint64(2), pool.FeeProtocolTokenY.Uint64())
		assert.Equal(t, "60000000000000000000000", pool.FeeGrowthGlobalY.RawString())
		assert.Equal(t, uint64(2018), f.spent(bob, tokenY))
	})
}

func TestQuote_MatchesSwap(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 20)
	f.deposit(t, f.key, -60, 60)
	before := f.s.Snapshot()

	p := xToY(f.key, 3000)
	quote, err := f.s.Quote(p)
	require.NoError(t, err)
	assert.Equal(t, before, f.s.Snapshot(), "quote must not change state")

	res, err := f.s.Swap(bob, p)
	require.NoError(t, err)
	assert.Equal(t, quote.AmountIn, res.AmountIn)
	assert.Equal(t, quote.AmountOut, res.AmountOut)
	assert.Equal(t, quote.Fee, res.Fee)
	assert.Equal(t, quote.CrossedTicks, res.CrossedTicks)

	pool, _ := f.s.GetPool(f.key)
	assert.Equal(t, quote.Pool, pool)
}

func TestSwap_StopsShort(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 10)
	before := f.s.Snapshot()

	t.Run("runs out of liquidity", func(t *testing.T) {
		sim, err := f.s.Simulate(xToY(f.key, 1_000_000))
		require.NoError(t, err)
		assert.True(t, sim.GlobalInsufficientLiquidity)
		assert.False(t, sim.MaxSwapStepsReached)
		assert.Equal(t, engine.PriceLimitReached, sim.State)
		assert.Equal(t, uint64(1008), sim.AmountIn.Uint64())
		assert.Equal(t, uint64(999), sim.AmountOut.Uint64())

		_, err = f.s.Quote(xToY(f.key, 1_000_000))
		assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)
		_, err = f.s.Swap(bob, xToY(f.key, 1_000_000))
		assert.ErrorIs(t, err, engine.ErrInsufficientLiquidity)
		assert.Equal(t, before, f.s.Snapshot())
		assert.Zero(t, f.spent(bob, tokenX))
	})

	t.Run("hits the price limit", func(t *testing.T) {
		p := xToY(f.key, 1_000_000)
		p.SqrtPriceLimit = price(t, -100)

		sim, err := f.s.Simulate(p)
		require.NoError(t, err)
		assert.False(t, sim.GlobalInsufficientLiquidity)
		assert.Equal(t, engine.PriceLimitReached, sim.State)
		assert.True(t, sim.Pool.SqrtPrice.Eq(p.SqrtPriceLimit))

		_, err = f.s.Swap(bob, p)
		assert.ErrorIs(t, err, model.ErrPriceLimitReached)
		assert.Equal(t, before, f.s.Snapshot())
	})
}

func TestSwap_Validation(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 10)

	_, err := f.s.Swap(bob, xToY(f.key, 0))
	assert.ErrorIs(t, err, engine.ErrAmountIsZero)

	p := xToY(f.key, 10)
	p.SqrtPriceLimit = price(t, 10)
	_, err = f.s.Swap(bob, p)
	assert.ErrorIs(t, err, engine.ErrWrongLimit)

	p = xToY(f.key, 10)
	p.XToY = false
	_, err = f.s.Swap(bob, p)
	assert.ErrorIs(t, err, engine.ErrWrongLimit)

	other, err := model.NewPoolKey(tokenX, tokenZ, tier)
	require.NoError(t, err)
	_, err = f.s.Swap(bob, xToY(other, 10))
	assert.ErrorIs(t, err, collections.ErrPoolNotFound)
}

func TestSwapRoute(t *testing.T) {
	f := newFixture(t)
	yz, err := f.s.CreatePool(admin, tokenY, tokenZ, tier, price(t, 0), 0)
	require.NoError(t, err)
	for _, k := range []model.PoolKey{f.key, yz} {
		f.deposit(t, k, -20, 20)
		f.deposit(t, k, -60, 60)
	}
	hops := []model.SwapHop{{PoolKey: f.key, XToY: true}, {PoolKey: yz, XToY: true}}
	before := f.s.Snapshot()
	events := len(f.events)

	quote, err := f.s.QuoteRoute(amt(1000), hops)
	require.NoError(t, err)
	require.Len(t, quote.Hops, 2)
	assert.Equal(t, quote.Hops[0].AmountOut, quote.Hops[1].AmountIn)
	assert.Equal(t, before, f.s.Snapshot(), "quote route always reverts")
	assert.Len(t, f.events, events)

	t.Run("below minimum is atomic", func(t *testing.T) {
		_, err := f.s.SwapRoute(bob, amt(1000), quote.AmountOut.Add(amt(100)), decimal.NewPercentage(0), hops)
		assert.ErrorIs(t, err, route.ErrAmountUnderMinimum)
		assert.Equal(t, before, f.s.Snapshot())
		assert.Zero(t, f.spent(bob, tokenX))
	})

	t.Run("broken chain", func(t *testing.T) {
		_, err := f.s.SwapRoute(bob, amt(1000), amt(0), decimal.NewPercentage(0), []model.SwapHop{hops[1], hops[0]})
		assert.ErrorIs(t, err, route.ErrBrokenChain)
	})

	t.Run("executes like the quote", func(t *testing.T) {
		rr, err := f.s.SwapRoute(bob, amt(1000), quote.AmountOut, decimal.NewPercentage(10_000_000_000), hops)
		require.NoError(t, err)
		assert.Equal(t, quote.AmountOut, rr.AmountOut)
		assert.Equal(t, uint64(1000), f.spent(bob, tokenX))
		assert.Equal(t, rr.AmountOut.Uint64(), f.book.Balance(bob, tokenZ).Sub(funds).Uint64())
		assert.Equal(t, funds, f.book.Balance(bob, tokenY), "intermediate token never leaves the vault")

		last := f.events[len(f.events)-1]
		assert.Equal(t, engine.OpSwapRoute, last.Op)
		assert.Len(t, last.Swaps, 2)
		assert.Len(t, last.Pools, 2)
	})
}

func TestRollback_OnBankFailure(t *testing.T) {
	f := newFixture(t)
	before := f.s.Snapshot()
	events := len(f.events)
	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")

	_, err := f.s.CreatePosition(poor, f.key, -20, 10, million, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, before, f.s.Snapshot())
	assert.False(t, f.s.IsTickInitialized(f.key, -20))
	assert.False(t, f.s.IsTickInitialized(f.key, 10))
	assert.Len(t, f.events, events)
}

func TestCreatePosition_Validation(t *testing.T) {
	f := newFixture(t)
	create := func(lower, upper int32, l decimal.Liquidity, lo, hi decimal.SqrtPrice) error {
		_, err := f.s.CreatePosition(alice, f.key, lower, upper, l, lo, hi)
		return err
	}

	assert.ErrorIs(t, create(-20, 10, decimal.Liquidity{}, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice), engine.ErrZeroLiquidity)
	assert.ErrorIs(t, create(10, 10, million, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice), engine.ErrInvalidTickRange)
	assert.ErrorIs(t, create(-25, 10, million, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice), tickmath.ErrInvalidTickSpacing)
	assert.ErrorIs(t, create(-20, 10, million, price(t, 10), tickmath.MaxSqrtPrice), model.ErrPriceLimitReached)
	assert.Empty(t, f.s.Snapshot().Ticks)
}

func TestAdmin(t *testing.T) {
	f := newFixture(t)
	other := model.FeeTier{Fee: decimal.NewPercentage(1_000_000_000), TickSpacing: 1}

	assert.ErrorIs(t, f.s.AddFeeTier(bob, other), engine.ErrNotAdmin)
	assert.ErrorIs(t, f.s.AddFeeTier(admin, model.FeeTier{Fee: other.Fee}), tickmath.ErrInvalidTickSpacing)
	assert.ErrorIs(t, f.s.RemoveFeeTier(admin, other), collections.ErrFeeTierNotFound)

	assert.ErrorIs(t, f.s.ChangeProtocolFee(bob, protocolFee), engine.ErrNotAdmin)
	assert.ErrorIs(t, f.s.ChangeProtocolFee(admin, model.MaxFee.Add(decimal.NewPercentage(1))), model.ErrInvalidFee)
	require.NoError(t, f.s.ChangeProtocolFee(admin, decimal.NewPercentage(0)))
	assert.True(t, f.s.ProtocolFee().IsZero())
	assert.NotNil(t, f.events[len(f.events)-1].Config)

	assert.ErrorIs(t, f.s.ChangeFeeReceiver(bob, f.key, bob), engine.ErrNotAdmin)
	require.NoError(t, f.s.ChangeFeeReceiver(admin, f.key, bob))
	pool, _ := f.s.GetPool(f.key)
	assert.Equal(t, bob, pool.FeeReceiver)
	_, _, err := f.s.WithdrawProtocolFee(bob, f.key)
	assert.NoError(t, err)
}

func TestSecondsPerLiquidityInside(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 10)

	f.env.Time += 10
	spl, err := f.s.SecondsPerLiquidityInside(f.key, -20, 10)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", spl.RawString())

	_, err = f.s.SecondsPerLiquidityInside(f.key, -20, 20)
	assert.ErrorIs(t, err, collections.ErrTickNotFound)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 20)
	f.deposit(t, f.key, -60, 60)
	_, err := f.s.Swap(bob, xToY(f.key, 500))
	require.NoError(t, err)
	snap := f.s.Snapshot()

	restored, err := engine.New(engine.Config{}, engine.WithEnv(f.env))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, admin, restored.Admin())
	for _, idx := range []int32{-60, -20, 20, 60} {
		assert.True(t, restored.IsTickInitialized(f.key, idx), "tick %d", idx)
	}

	want, err := f.s.Quote(xToY(f.key, 2500))
	require.NoError(t, err)
	got, err := restored.Quote(xToY(f.key, 2500))
	require.NoError(t, err)
	assert.Equal(t, want.AmountOut, got.AmountOut)
	assert.Equal(t, want.Pool, got.Pool)

	bad := snap
	bad.Ticks = append([]engine.TickState{}, snap.Ticks...)
	bad.Ticks[0].Key.FeeTier.TickSpacing = 7
	assert.Error(t, restored.Restore(bad))
	assert.Equal(t, snap, restored.Snapshot(), "failed restore leaves state alone")
}

func TestChangeSet_CreatePosition(t *testing.T) {
	f := newFixture(t)
	f.env.Block = 7
	f.deposit(t, f.key, -20, 10)

	cs := f.events[len(f.events)-1]
	assert.Equal(t, engine.OpCreatePosition, cs.Op)
	assert.Equal(t, alice, cs.Caller)
	assert.Equal(t, uint64(7), cs.Block)
	require.Len(t, cs.Pools, 1)
	assert.Equal(t, f.key, cs.Pools[0].Key)
	assert.Len(t, cs.Ticks, 2)
	require.Len(t, cs.Positions, 1)
	assert.Equal(t, alice, cs.Positions[0].Owner)
	assert.Equal(t, uint64(7), cs.Positions[0].Positions[0].LastBlockNumber)
	assert.Equal(t, []engine.Transfer{{Token: tokenX, Amount: amt(500)}, {Token: tokenY, Amount: amt(1000)}}, cs.Debits)
}

func TestSwap_MaxTickCross(t *testing.T) {
	f := newFixture(t)
	fine := model.FeeTier{Fee: tier.Fee, TickSpacing: 1}
	require.NoError(t, f.s.AddFeeTier(admin, fine))
	key, err := f.s.CreatePool(admin, tokenX, tokenY, fine, price(t, 0), 0)
	require.NoError(t, err)
	f.deposit(t, key, -10, 10)
	before := f.s.Snapshot()
	p := xToY(key, 1_000_000)

	sim, err := f.s.Simulate(p)
	require.NoError(t, err)
	assert.Equal(t, engine.MaxCrossesReached, sim.State)
	assert.True(t, sim.MaxSwapStepsReached)
	assert.False(t, sim.GlobalInsufficientLiquidity)
	assert.Less(t, sim.AmountIn.Uint64(), uint64(1_000_000))
	assert.False(t, sim.AmountOut.IsZero())

	_, err = f.s.Quote(p)
	assert.ErrorIs(t, err, engine.ErrMaxTickCrossReached)
	_, err = f.s.Swap(bob, p)
	assert.ErrorIs(t, err, engine.ErrMaxTickCrossReached)
	assert.Equal(t, before, f.s.Snapshot())
	assert.Zero(t, f.spent(bob, tokenX))
}

func TestSwap_NoGainRejected(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 10)
	before := f.s.Snapshot()
	p := xToY(f.key, 1)

	sim, err := f.s.Simulate(p)
	require.NoError(t, err)
	assert.Equal(t, engine.NoGainRejected, sim.State)
	assert.Equal(t, uint64(1), sim.AmountIn.Uint64())
	assert.True(t, sim.AmountOut.IsZero())

	_, err = f.s.Quote(p)
	assert.ErrorIs(t, err, engine.ErrNoGainSwap)
	_, err = f.s.Swap(bob, p)
	assert.ErrorIs(t, err, engine.ErrNoGainSwap)
	assert.ErrorContains(t, err, "after 0 out")
	assert.Equal(t, before, f.s.Snapshot())
	assert.Zero(t, f.spent(bob, tokenX))
	assert.True(t, f.book.Balance(bob, tokenY).Eq(funds))
}

func TestSwap_FeeGrowsWithAmount(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 20)
	f.deposit(t, f.key, -60, 60)

	var prev decimal.TokenAmount
	for _, amount := range []uint64{200, 1000, 2000, 3000, 3900} {
		res, err := f.s.Quote(xToY(f.key, amount))
		require.NoError(t, err, "amount %d", amount)
		assert.Equal(t, amount, res.AmountIn.Uint64())
		assert.True(t, res.Fee.Gte(prev), "fee %s for %d is below %s", res.Fee, amount, prev)
		assert.True(t, res.Fee.Lt(res.AmountIn))
		prev = res.Fee
	}
}

func TestSwap_ConservesBalances(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, f.key, -20, 20)
	f.deposit(t, f.key, -60, 60)
	vaultX, vaultY := f.book.Balance(vault, tokenX), f.book.Balance(vault, tokenY)

	res, err := f.s.Swap(bob, xToY(f.key, 3000))
	require.NoError(t, err)
	assert.Equal(t, res.AmountIn.Uint64(), f.spent(bob, tokenX))
	assert.Equal(t, res.AmountOut, f.book.Balance(bob, tokenY).Sub(funds))
	assert.Equal(t, vaultX.Add(res.AmountIn), f.book.Balance(vault, tokenX))
	assert.Equal(t, vaultY.Sub(res.AmountOut), f.book.Balance(vault, tokenY))

	last := f.events[len(f.events)-1]
	require.Len(t, last.Swaps, 1)
	assert.Equal(t, res.Fee, last.Swaps[0].Fee)
	assert.Equal(t, res.AmountIn, last.Swaps[0].AmountIn)
}
