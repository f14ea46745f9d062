package model

import (
	"fmt"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/liquidity"
)

// Position is liquidity an owner provides to one pool over
// [LowerTickIndex, UpperTickIndex].
type Position struct {
	PoolKey          PoolKey             `json:"pool_key"`
	Liquidity        decimal.Liquidity   `json:"liquidity"`
	LowerTickIndex   int32               `json:"lower_tick_index"`
	UpperTickIndex   int32               `json:"upper_tick_index"`
	FeeGrowthInsideX decimal.FeeGrowth   `json:"fee_growth_inside_x"`
	FeeGrowthInsideY decimal.FeeGrowth   `json:"fee_growth_inside_y"`
	LastBlockNumber  uint64              `json:"last_block_number"`
	TokensOwedX      decimal.TokenAmount `json:"tokens_owed_x"`
	TokensOwedY      decimal.TokenAmount `json:"tokens_owed_y"`
}

// NewPosition opens a position with liquidity delta, provided the pool
// price lies within [slippageLower, slippageUpper]. It returns the
// amounts the owner must deposit.
func NewPosition(pool *Pool, key PoolKey, lower, upper *Tick, now uint64, delta decimal.Liquidity, slippageLower, slippageUpper decimal.SqrtPrice, block uint64) (Position, decimal.TokenAmount, decimal.TokenAmount, error) {
	if pool.SqrtPrice.Lt(slippageLower) || pool.SqrtPrice.Gt(slippageUpper) {
		return Position{}, decimal.TokenAmount{}, decimal.TokenAmount{},
			fmt.Errorf("%w: pool price %s outside [%s, %s]", ErrPriceLimitReached, pool.SqrtPrice, slippageLower, slippageUpper)
	}
	p := Position{
		PoolKey:         key,
		LowerTickIndex:  lower.Index,
		UpperTickIndex:  upper.Index,
		LastBlockNumber: block,
	}
	x, y, err := p.Modify(pool, upper, lower, delta, true, now)
	if err != nil {
		return Position{}, decimal.TokenAmount{}, decimal.TokenAmount{}, err
	}
	return p, x, y, nil
}

// Modify changes the position's liquidity by delta, updating both
// boundary ticks and the pool, and returns the token amounts moved.
func (p *Position) Modify(pool *Pool, upper, lower *Tick, delta decimal.Liquidity, add bool, now uint64) (x, y decimal.TokenAmount, err error) {
	if err := pool.UpdateSecondsPerLiquidityGlobal(now); err != nil {
		return x, y, err
	}

	maxPerTick := liquidity.MaxLiquidityPerTick(p.PoolKey.FeeTier.TickSpacing)
	if err := upper.Update(delta, maxPerTick, true, add); err != nil {
		return x, y, err
	}
	if err := lower.Update(delta, maxPerTick, false, add); err != nil {
		return x, y, err
	}

	insideX, insideY := liquidity.FeeGrowthInside(lower.Outside(), upper.Outside(), pool.CurrentTickIndex, pool.FeeGrowthGlobalX, pool.FeeGrowthGlobalY)
	if err := p.Update(add, delta, insideX, insideY); err != nil {
		return x, y, err
	}
	return pool.UpdateLiquidity(delta, add, upper.Index, lower.Index)
}

// Update settles fees earned since the last update at the current
// liquidity, then applies the liquidity change.
func (p *Position) Update(add bool, delta decimal.Liquidity, insideX, insideY decimal.FeeGrowth) error {
	if delta.IsZero() && p.Liquidity.IsZero() {
		return ErrEmptyPositionPokes
	}

	owedX, err := decimal.FeeGrowthToFee(insideX.WrappingSub(p.FeeGrowthInsideX), p.Liquidity)
	if err != nil {
		return err
	}
	owedY, err := decimal.FeeGrowthToFee(insideY.WrappingSub(p.FeeGrowthInsideY), p.Liquidity)
	if err != nil {
		return err
	}

	var l decimal.Liquidity
	if add {
		if l, err = p.Liquidity.CheckedAdd(delta); err != nil {
			return err
		}
	} else {
		if p.Liquidity.Lt(delta) {
			return fmt.Errorf("%w: %s < %s", ErrInsufficientLiquidity, p.Liquidity, delta)
		}
		l = p.Liquidity.Sub(delta)
	}

	if owedX, err = p.TokensOwedX.CheckedAdd(owedX); err != nil {
		return err
	}
	if owedY, err = p.TokensOwedY.CheckedAdd(owedY); err != nil {
		return err
	}

	p.Liquidity = l
	p.FeeGrowthInsideX = insideX
	p.FeeGrowthInsideY = insideY
	p.TokensOwedX = owedX
	p.TokensOwedY = owedY
	return nil
}

// ClaimFee settles and hands out the fees owed to the position.
func (p *Position) ClaimFee(pool *Pool, upper, lower *Tick, now uint64) (x, y decimal.TokenAmount, err error) {
	if _, _, err := p.Modify(pool, upper, lower, decimal.Liquidity{}, true, now); err != nil {
		return x, y, err
	}
	x, y = p.TokensOwedX, p.TokensOwedY
	p.TokensOwedX = decimal.TokenAmount{}
	p.TokensOwedY = decimal.TokenAmount{}
	return x, y, nil
}

// Removal is what closing a position yields.
type Removal struct {
	X, Y              decimal.TokenAmount
	DeinitializeLower bool
	DeinitializeUpper bool
}

// Remove withdraws all liquidity and owed fees. Boundary ticks whose gross
// liquidity drops to zero are reported for deinitialization.
func (p *Position) Remove(pool *Pool, now uint64, lower, upper *Tick) (Removal, error) {
	x, y, err := p.Modify(pool, upper, lower, p.Liquidity, false, now)
	if err != nil {
		return Removal{}, err
	}
	if x, err = x.CheckedAdd(p.TokensOwedX); err != nil {
		return Removal{}, err
	}
	if y, err = y.CheckedAdd(p.TokensOwedY); err != nil {
		return Removal{}, err
	}
	return Removal{
		X:                 x,
		Y:                 y,
		DeinitializeLower: lower.LiquidityGross.IsZero(),
		DeinitializeUpper: upper.LiquidityGross.IsZero(),
	}, nil
}
