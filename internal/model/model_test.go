package model

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/swapmath"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	// 0.6% fee, spacing 10
	tier        = FeeTier{Fee: decimal.NewPercentage(6_000_000_000), TickSpacing: 10}
	protocolFee = decimal.NewPercentage(10_000_000_000) // 1%
	million     = decimal.NewLiquidity(1_000_000_000_000)
)

func TestNewFeeTier(t *testing.T) {
	fee := decimal.NewPercentage(6_000_000_000)

	ft, err := NewFeeTier(fee, 10)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), ft.TickSpacing)

	_, err = NewFeeTier(fee, 0)
	assert.ErrorIs(t, err, ErrInvalidTickSpacing)
	_, err = NewFeeTier(fee, 101)
	assert.ErrorIs(t, err, ErrInvalidTickSpacing)

	_, err = NewFeeTier(MaxFee, 10)
	assert.NoError(t, err)
	_, err = NewFeeTier(MaxFee.Add(decimal.NewPercentage(1)), 10)
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestPoolKey(t *testing.T) {
	k1, err := NewPoolKey(tokenB, tokenA, tier)
	require.NoError(t, err)
	assert.Equal(t, tokenA, k1.TokenX)
	assert.Equal(t, tokenB, k1.TokenY)

	k2, err := NewPoolKey(tokenA, tokenB, tier)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Equal(t, k1.ID(), k2.ID())
	assert.Len(t, k1.Hex(), 64)

	other, err := NewPoolKey(tokenA, tokenB, FeeTier{Fee: tier.Fee, TickSpacing: 20})
	require.NoError(t, err)
	assert.NotEqual(t, k1.ID(), other.ID())

	_, err = NewPoolKey(tokenA, tokenA, tier)
	assert.ErrorIs(t, err, ErrTokensAreSame)
}

func TestParsePoolKey(t *testing.T) {
	k, err := NewPoolKey(tokenA, tokenB, tier)
	require.NoError(t, err)

	s := k.String()
	assert.True(t, strings.HasSuffix(s, "-6000000000-10"), s)
	assert.True(t, strings.HasPrefix(s, k.TokenX.Hex()+"-"+k.TokenY.Hex()), s)

	parsed, err := ParsePoolKey(s)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	for _, bad := range []string{
		"",
		"0xaa-0xbb-6000000000-10",
		"0x00000000000000000000000000000000000000aa-0x00000000000000000000000000000000000000bb-600x-10",
		"0x00000000000000000000000000000000000000aa-0x00000000000000000000000000000000000000bb-6000000000",
	} {
		_, err := ParsePoolKey(bad)
		assert.ErrorIs(t, err, ErrInvalidPoolKey, bad)
	}

	_, err = ParsePoolKey("0x00000000000000000000000000000000000000aa-0x00000000000000000000000000000000000000bb-6000000000-0")
	assert.ErrorIs(t, err, ErrInvalidTickSpacing)
	_, err = ParsePoolKey("0x00000000000000000000000000000000000000aa-0x00000000000000000000000000000000000000aa-6000000000-10")
	assert.ErrorIs(t, err, ErrTokensAreSame)
}

func TestNewPool(t *testing.T) {
	one := decimal.One[decimal.SqrtPriceSpec]()
	p, err := NewPool(one, 0, 100, 10, tokenA)
	require.NoError(t, err)
	assert.Equal(t, int32(0), p.CurrentTickIndex)
	assert.Equal(t, uint64(100), p.StartTimestamp)
	assert.Equal(t, uint64(100), p.LastTimestamp)

	_, err = NewPool(one, 5, 100, 10, tokenA)
	assert.ErrorIs(t, err, ErrInvalidInitTick)

	_, err = NewPool(one, 10, 100, 10, tokenA)
	assert.ErrorIs(t, err, ErrInvalidInitSqrtPrice)

	// any price inside [tick, tick+spacing) is accepted
	inside, err := tickmath.SqrtPriceAt(15)
	require.NoError(t, err)
	_, err = NewPool(inside, 10, 100, 10, tokenA)
	assert.NoError(t, err)
}

func TestPool_AddFee(t *testing.T) {
	p := Pool{Liquidity: million}
	require.NoError(t, p.AddFee(decimal.NewTokenAmount(6), true, protocolFee))
	assert.Equal(t, decimal.NewTokenAmount(1), p.FeeProtocolTokenX)
	assert.Equal(t, "50000000000000000000000", p.FeeGrowthGlobalX.RawString())
	assert.True(t, p.FeeGrowthGlobalY.IsZero())

	require.NoError(t, p.AddFee(decimal.NewTokenAmount(6), false, protocolFee))
	assert.Equal(t, decimal.NewTokenAmount(1), p.FeeProtocolTokenY)

	empty := Pool{}
	require.NoError(t, empty.AddFee(decimal.NewTokenAmount(6), true, protocolFee))
	assert.True(t, empty.FeeProtocolTokenX.IsZero())
	assert.True(t, empty.FeeGrowthGlobalX.IsZero())

	x, y := p.WithdrawProtocolFee()
	assert.Equal(t, decimal.NewTokenAmount(1), x)
	assert.Equal(t, decimal.NewTokenAmount(1), y)
	assert.True(t, p.FeeProtocolTokenX.IsZero())
}

func TestPool_UpdateSecondsPerLiquidityGlobal(t *testing.T) {
	p := Pool{Liquidity: million, StartTimestamp: 100, LastTimestamp: 100}
	require.NoError(t, p.UpdateSecondsPerLiquidityGlobal(100))
	assert.True(t, p.SecondsPerLiquidityGlobal.IsZero())

	require.NoError(t, p.UpdateSecondsPerLiquidityGlobal(110))
	assert.Equal(t, "10000000000000000000", p.SecondsPerLiquidityGlobal.RawString())
	assert.Equal(t, uint64(110), p.LastTimestamp)

	assert.ErrorIs(t, p.UpdateSecondsPerLiquidityGlobal(109), ErrTimestampInPast)

	idle := Pool{LastTimestamp: 100}
	require.NoError(t, idle.UpdateSecondsPerLiquidityGlobal(200))
	assert.True(t, idle.SecondsPerLiquidityGlobal.IsZero())
	assert.Equal(t, uint64(200), idle.LastTimestamp)
}

func TestTick_Update(t *testing.T) {
	maxPerTick := decimal.Max[decimal.LiquiditySpec]()
	lower := Tick{Index: -20, Sign: true}
	upper := Tick{Index: 10, Sign: true}

	require.NoError(t, lower.Update(million, maxPerTick, false, true))
	require.NoError(t, upper.Update(million, maxPerTick, true, true))
	assert.True(t, lower.Sign)
	assert.Equal(t, million, lower.LiquidityChange)
	assert.False(t, upper.Sign)
	assert.Equal(t, million, upper.LiquidityChange)
	assert.Equal(t, million, upper.LiquidityGross)

	// a second position using -20 as its upper boundary cancels out
	require.NoError(t, lower.Update(million, maxPerTick, true, true))
	assert.True(t, lower.LiquidityChange.IsZero())
	assert.Equal(t, decimal.NewLiquidity(2_000_000_000_000), lower.LiquidityGross)

	err := upper.Update(decimal.NewLiquidity(2_000_000_000_000), maxPerTick, true, false)
	assert.ErrorIs(t, err, ErrInvalidTickLiquidity)

	err = upper.Update(million, million, true, true)
	assert.ErrorIs(t, err, ErrInvalidTickLiquidity)
}

func TestTick_Cross(t *testing.T) {
	pool := Pool{Liquidity: million, CurrentTickIndex: 0, StartTimestamp: 100, LastTimestamp: 100}
	tick, err := NewTick(-20, pool, 100)
	require.NoError(t, err)
	require.NoError(t, tick.Update(million, decimal.Max[decimal.LiquiditySpec](), false, true))

	require.NoError(t, pool.AddFee(decimal.NewTokenAmount(6), true, protocolFee))
	require.NoError(t, tick.Cross(&pool, 130))
	assert.True(t, pool.Liquidity.IsZero())
	assert.Equal(t, "50000000000000000000000", tick.FeeGrowthOutsideX.RawString())
	assert.Equal(t, uint64(30), tick.SecondsOutside)

	// crossing back up restores the liquidity
	pool.CurrentTickIndex = -30
	require.NoError(t, tick.Cross(&pool, 140))
	assert.Equal(t, million, pool.Liquidity)
	assert.True(t, tick.FeeGrowthOutsideX.IsZero())

	// a crossing that would go negative is an underflow
	pool.CurrentTickIndex = 0
	pool.Liquidity = decimal.Liquidity{}
	err = tick.Liquidity().Cross(&pool)
	assert.ErrorIs(t, err, decimal.ErrUnderflow)
}

func TestNewTick_OutsideSnapshot(t *testing.T) {
	pool := Pool{CurrentTickIndex: 0, StartTimestamp: 100, FeeGrowthGlobalX: decimal.New[decimal.FeeGrowthSpec](7)}

	below, err := NewTick(-10, pool, 150)
	require.NoError(t, err)
	assert.Equal(t, pool.FeeGrowthGlobalX, below.FeeGrowthOutsideX)
	assert.Equal(t, uint64(50), below.SecondsOutside)

	above, err := NewTick(10, pool, 150)
	require.NoError(t, err)
	assert.True(t, above.FeeGrowthOutsideX.IsZero())
	assert.Zero(t, above.SecondsOutside)
	assert.Equal(t, "1000500100010000000000000", above.SqrtPrice.RawString())
}

func openScenarioA(t *testing.T) (*Pool, *Tick, *Tick, Position) {
	t.Helper()
	key, err := NewPoolKey(tokenA, tokenB, tier)
	require.NoError(t, err)
	pool, err := NewPool(decimal.One[decimal.SqrtPriceSpec](), 0, 100, 10, tokenA)
	require.NoError(t, err)
	lower, err := NewTick(-20, pool, 100)
	require.NoError(t, err)
	upper, err := NewTick(10, pool, 100)
	require.NoError(t, err)

	pos, x, y, err := NewPosition(&pool, key, &lower, &upper, 100, million, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice, 7)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewTokenAmount(500), x)
	assert.Equal(t, decimal.NewTokenAmount(1000), y)
	return &pool, &lower, &upper, pos
}

func TestPosition_Lifecycle(t *testing.T) {
	pool, lower, upper, pos := openScenarioA(t)
	assert.Equal(t, million, pool.Liquidity)
	assert.Equal(t, uint64(7), pos.LastBlockNumber)

	require.NoError(t, pool.AddFee(decimal.NewTokenAmount(6), true, protocolFee))

	x, y, err := pos.ClaimFee(pool, upper, lower, 110)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewTokenAmount(5), x)
	assert.True(t, y.IsZero())
	assert.True(t, pos.TokensOwedX.IsZero())

	// claiming again yields nothing new
	x, _, err = pos.ClaimFee(pool, upper, lower, 110)
	require.NoError(t, err)
	assert.True(t, x.IsZero())

	r, err := pos.Remove(pool, 120, lower, upper)
	require.NoError(t, err)
	assert.Equal(t, decimal.NewTokenAmount(499), r.X)
	assert.Equal(t, decimal.NewTokenAmount(999), r.Y)
	assert.True(t, r.DeinitializeLower)
	assert.True(t, r.DeinitializeUpper)
	assert.True(t, pool.Liquidity.IsZero())
}

func TestNewPosition_Slippage(t *testing.T) {
	key, err := NewPoolKey(tokenA, tokenB, tier)
	require.NoError(t, err)
	pool, err := NewPool(decimal.One[decimal.SqrtPriceSpec](), 0, 100, 10, tokenA)
	require.NoError(t, err)
	lower, _ := NewTick(-20, pool, 100)
	upper, _ := NewTick(10, pool, 100)

	above, _ := tickmath.SqrtPriceAt(10)
	_, _, _, err = NewPosition(&pool, key, &lower, &upper, 100, million, above, tickmath.MaxSqrtPrice, 1)
	assert.ErrorIs(t, err, ErrPriceLimitReached)

	_, _, _, err = NewPosition(&pool, key, &lower, &upper, 100, decimal.Liquidity{}, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice, 1)
	assert.ErrorIs(t, err, ErrEmptyPositionPokes)
}

func TestPool_UpdateTick(t *testing.T) {
	limit, err := tickmath.SqrtPriceAt(-20)
	require.NoError(t, err)

	t.Run("step stops before the boundary", func(t *testing.T) {
		pool, lower, _, _ := openScenarioA(t)
		step, err := swapmath.ComputeSwapStep(pool.SqrtPrice, limit, pool.Liquidity, decimal.NewTokenAmount(1000), true, tier.Fee)
		require.NoError(t, err)
		pool.SqrtPrice = step.NextSqrtPrice

		u, err := pool.UpdateTick(step, limit, &Boundary{Index: -20, Initialized: true}, lower, decimal.TokenAmount{}, true, true, 100, protocolFee, tier)
		require.NoError(t, err)
		assert.False(t, u.Crossed)
		assert.Equal(t, int32(-20), pool.CurrentTickIndex)
		assert.Equal(t, million, pool.Liquidity)
	})

	t.Run("enough remaining crosses", func(t *testing.T) {
		pool, lower, _, _ := openScenarioA(t)
		step, err := swapmath.ComputeSwapStep(pool.SqrtPrice, limit, pool.Liquidity, decimal.NewTokenAmount(5000), true, tier.Fee)
		require.NoError(t, err)
		require.Equal(t, limit, step.NextSqrtPrice)
		pool.SqrtPrice = step.NextSqrtPrice

		remaining := decimal.NewTokenAmount(5000 - 1001 - 7)
		u, err := pool.UpdateTick(step, limit, &Boundary{Index: -20, Initialized: true}, lower, remaining, true, true, 100, protocolFee, tier)
		require.NoError(t, err)
		assert.True(t, u.Crossed)
		assert.Equal(t, remaining, u.Remaining)
		assert.Equal(t, int32(-30), pool.CurrentTickIndex)
		assert.True(t, pool.Liquidity.IsZero())
	})

	t.Run("dust is swallowed as fee", func(t *testing.T) {
		pool, lower, _, _ := openScenarioA(t)
		step, err := swapmath.ComputeSwapStep(pool.SqrtPrice, limit, pool.Liquidity, decimal.NewTokenAmount(1009), true, tier.Fee)
		require.NoError(t, err)
		require.Equal(t, limit, step.NextSqrtPrice)
		pool.SqrtPrice = step.NextSqrtPrice

		u, err := pool.UpdateTick(step, limit, &Boundary{Index: -20, Initialized: true}, lower, decimal.NewTokenAmount(1), true, true, 100, protocolFee, tier)
		require.NoError(t, err)
		assert.False(t, u.Crossed)
		assert.Equal(t, decimal.NewTokenAmount(1), u.Consumed)
		assert.True(t, u.Remaining.IsZero())
		assert.Equal(t, int32(-20), pool.CurrentTickIndex)
		assert.Equal(t, million, pool.Liquidity)
	})
}
