package model

import (
	"fmt"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/liquidity"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

// Tick is an initialized tick of a pool. The "outside" accumulators hold
// the growth on the side of the tick the price is not on.
type Tick struct {
	Index                      int32                       `json:"index"`
	Sign                       bool                        `json:"sign"`
	LiquidityChange            decimal.Liquidity           `json:"liquidity_change"`
	LiquidityGross             decimal.Liquidity           `json:"liquidity_gross"`
	SqrtPrice                  decimal.SqrtPrice           `json:"sqrt_price"`
	FeeGrowthOutsideX          decimal.FeeGrowth           `json:"fee_growth_outside_x"`
	FeeGrowthOutsideY          decimal.FeeGrowth           `json:"fee_growth_outside_y"`
	SecondsPerLiquidityOutside decimal.SecondsPerLiquidity `json:"seconds_per_liquidity_outside"`
	SecondsOutside             uint64                      `json:"seconds_outside"`
}

// LiquidityTick is the part of a tick a crossing needs.
type LiquidityTick struct {
	Index           int32
	LiquidityChange decimal.Liquidity
	Sign            bool
}

// NewTick initializes a tick. A tick at or below the current tick starts
// with all growth so far counted as outside.
func NewTick(index int32, pool Pool, now uint64) (Tick, error) {
	price, err := tickmath.SqrtPriceAt(index)
	if err != nil {
		return Tick{}, err
	}
	t := Tick{Index: index, Sign: true, SqrtPrice: price}
	if index <= pool.CurrentTickIndex {
		if now < pool.StartTimestamp {
			return Tick{}, fmt.Errorf("%w: %d < start %d", ErrTimestampInPast, now, pool.StartTimestamp)
		}
		t.FeeGrowthOutsideX = pool.FeeGrowthGlobalX
		t.FeeGrowthOutsideY = pool.FeeGrowthGlobalY
		t.SecondsPerLiquidityOutside = pool.SecondsPerLiquidityGlobal
		t.SecondsOutside = now - pool.StartTimestamp
	}
	return t, nil
}

// Outside returns the tick's accumulator snapshot.
func (t *Tick) Outside() liquidity.Outside {
	return liquidity.Outside{
		Index:               t.Index,
		FeeGrowthX:          t.FeeGrowthOutsideX,
		FeeGrowthY:          t.FeeGrowthOutsideY,
		SecondsPerLiquidity: t.SecondsPerLiquidityOutside,
	}
}

// Liquidity projects the tick for crossing.
func (t *Tick) Liquidity() LiquidityTick {
	return LiquidityTick{Index: t.Index, LiquidityChange: t.LiquidityChange, Sign: t.Sign}
}

// Update applies a position's liquidity change to this tick, the upper
// or lower boundary of the position.
func (t *Tick) Update(delta, maxPerTick decimal.Liquidity, isUpper, isDeposit bool) error {
	gross, err := t.newGross(delta, maxPerTick, isDeposit)
	if err != nil {
		return err
	}
	t.LiquidityGross = gross
	t.updateChange(delta, isDeposit != isUpper)
	return nil
}

func (t *Tick) newGross(delta, maxPerTick decimal.Liquidity, isDeposit bool) (decimal.Liquidity, error) {
	if !isDeposit {
		if t.LiquidityGross.Lt(delta) {
			return decimal.Liquidity{}, fmt.Errorf("%w: tick %d gross %s < %s", ErrInvalidTickLiquidity, t.Index, t.LiquidityGross, delta)
		}
		return t.LiquidityGross.Sub(delta), nil
	}
	gross, err := t.LiquidityGross.CheckedAdd(delta)
	if err != nil || gross.Gte(maxPerTick) {
		return decimal.Liquidity{}, fmt.Errorf("%w: tick %d above max per tick", ErrInvalidTickLiquidity, t.Index)
	}
	return gross, nil
}

// updateChange adds delta to the signed liquidity change, or subtracts it
// and flips the sign when it goes past zero.
func (t *Tick) updateChange(delta decimal.Liquidity, add bool) {
	if t.Sign == add {
		t.LiquidityChange = t.LiquidityChange.Add(delta)
		return
	}
	if t.LiquidityChange.Gt(delta) {
		t.LiquidityChange = t.LiquidityChange.Sub(delta)
		return
	}
	t.LiquidityChange = delta.Sub(t.LiquidityChange)
	t.Sign = !t.Sign
}

// Cross moves the tick to the other side of the price: its outside
// accumulators are mirrored and its liquidity change applied to pool.
func (t *Tick) Cross(pool *Pool, now uint64) error {
	if now < pool.StartTimestamp {
		return fmt.Errorf("%w: %d < start %d", ErrTimestampInPast, now, pool.StartTimestamp)
	}
	t.FeeGrowthOutsideX = pool.FeeGrowthGlobalX.WrappingSub(t.FeeGrowthOutsideX)
	t.FeeGrowthOutsideY = pool.FeeGrowthGlobalY.WrappingSub(t.FeeGrowthOutsideY)
	t.SecondsPerLiquidityOutside = pool.SecondsPerLiquidityGlobal.WrappingSub(t.SecondsPerLiquidityOutside)
	t.SecondsOutside = (now - pool.StartTimestamp) - t.SecondsOutside

	lt := t.Liquidity()
	return lt.Cross(pool)
}

// Cross applies the change to pool.Liquidity: added when the price
// moves up through a positive tick, subtracted otherwise.
func (lt LiquidityTick) Cross(pool *Pool) error {
	var (
		next decimal.Liquidity
		err  error
	)
	if (pool.CurrentTickIndex >= lt.Index) != lt.Sign {
		next, err = pool.Liquidity.CheckedAdd(lt.LiquidityChange)
	} else {
		next, err = pool.Liquidity.CheckedSub(lt.LiquidityChange)
	}
	if err != nil {
		return fmt.Errorf("cross tick %d: %w", lt.Index, err)
	}
	pool.Liquidity = next
	return nil
}
