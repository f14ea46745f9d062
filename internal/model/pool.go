package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/liquidity"
	"github.com/atmx/clamm-engine/internal/swapmath"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

// Pool is the state of one pool. CurrentTickIndex is always the greatest
// spacing-aligned tick at or below the tick implied by SqrtPrice.
type Pool struct {
	Liquidity                 decimal.Liquidity           `json:"liquidity"`
	SqrtPrice                 decimal.SqrtPrice           `json:"sqrt_price"`
	CurrentTickIndex          int32                       `json:"current_tick_index"`
	FeeGrowthGlobalX          decimal.FeeGrowth           `json:"fee_growth_global_x"`
	FeeGrowthGlobalY          decimal.FeeGrowth           `json:"fee_growth_global_y"`
	FeeProtocolTokenX         decimal.TokenAmount         `json:"fee_protocol_token_x"`
	FeeProtocolTokenY         decimal.TokenAmount         `json:"fee_protocol_token_y"`
	SecondsPerLiquidityGlobal decimal.SecondsPerLiquidity `json:"seconds_per_liquidity_global"`
	StartTimestamp            uint64                      `json:"start_timestamp"`
	LastTimestamp             uint64                      `json:"last_timestamp"`
	FeeReceiver               common.Address              `json:"fee_receiver"`
}

// Boundary is the tick a swap step is bounded by, and whether that tick
// is initialized or merely the edge of the search window.
type Boundary struct {
	Index       int32
	Initialized bool
}

// TickUpdate is the outcome of Pool.UpdateTick.
type TickUpdate struct {
	// Consumed is input swallowed without moving the price; it counts
	// toward the amount in.
	Consumed  decimal.TokenAmount
	Remaining decimal.TokenAmount
	Crossed   bool
}

// NewPool validates that initTick is usable with spacing and is the tick
// of initSqrtPrice.
func NewPool(initSqrtPrice decimal.SqrtPrice, initTick int32, now uint64, spacing uint16, feeReceiver common.Address) (Pool, error) {
	if err := tickmath.CheckTick(initTick, spacing); err != nil {
		return Pool{}, fmt.Errorf("%w: %w", ErrInvalidInitTick, err)
	}
	tick, err := tickmath.TickAt(initSqrtPrice, spacing)
	if err != nil {
		return Pool{}, fmt.Errorf("%w: %w", ErrInvalidInitSqrtPrice, err)
	}
	if tick != initTick {
		return Pool{}, fmt.Errorf("%w: price %s is at tick %d, not %d", ErrInvalidInitSqrtPrice, initSqrtPrice, tick, initTick)
	}
	return Pool{
		SqrtPrice:        initSqrtPrice,
		CurrentTickIndex: initTick,
		StartTimestamp:   now,
		LastTimestamp:    now,
		FeeReceiver:      feeReceiver,
	}, nil
}

// AddFee splits a swap fee between the protocol (rounded up) and the
// liquidity providers. Nothing is recorded while the pool has no active
// liquidity.
func (p *Pool) AddFee(amount decimal.TokenAmount, inX bool, protocolFee decimal.Percentage) error {
	protocol, err := decimal.BigMulUp(amount, protocolFee)
	if err != nil {
		return err
	}
	poolFee, err := amount.CheckedSub(protocol)
	if err != nil {
		return err
	}
	if (poolFee.IsZero() && protocol.IsZero()) || p.Liquidity.IsZero() {
		return nil
	}

	growth, err := decimal.FeeGrowthFromFee(p.Liquidity, poolFee)
	if err != nil {
		return err
	}
	if inX {
		owed, err := p.FeeProtocolTokenX.CheckedAdd(protocol)
		if err != nil {
			return err
		}
		p.FeeGrowthGlobalX = p.FeeGrowthGlobalX.WrappingAdd(growth)
		p.FeeProtocolTokenX = owed
		return nil
	}
	owed, err := p.FeeProtocolTokenY.CheckedAdd(protocol)
	if err != nil {
		return err
	}
	p.FeeGrowthGlobalY = p.FeeGrowthGlobalY.WrappingAdd(growth)
	p.FeeProtocolTokenY = owed
	return nil
}

// UpdateLiquidity returns the amounts moved by changing a position over
// [lower, upper] by delta and, when the range is active, applies delta to
// the pool's liquidity.
func (p *Pool) UpdateLiquidity(delta decimal.Liquidity, add bool, upper, lower int32) (x, y decimal.TokenAmount, err error) {
	x, y, active, err := liquidity.AmountDelta(p.CurrentTickIndex, p.SqrtPrice, delta, add, upper, lower)
	if err != nil {
		return x, y, err
	}
	if !active {
		return x, y, nil
	}
	var next decimal.Liquidity
	if add {
		next, err = p.Liquidity.CheckedAdd(delta)
	} else {
		next, err = p.Liquidity.CheckedSub(delta)
	}
	if err != nil {
		return decimal.TokenAmount{}, decimal.TokenAmount{}, fmt.Errorf("pool liquidity: %w", err)
	}
	p.Liquidity = next
	return x, y, nil
}

// UpdateSecondsPerLiquidityGlobal advances the time accumulator to now.
// Calls at the last timestamp are no-ops.
func (p *Pool) UpdateSecondsPerLiquidityGlobal(now uint64) error {
	if now < p.LastTimestamp {
		return fmt.Errorf("%w: %d < %d", ErrTimestampInPast, now, p.LastTimestamp)
	}
	if now == p.LastTimestamp {
		return nil
	}
	if !p.Liquidity.IsZero() {
		inc, err := liquidity.SecondsPerLiquidityGlobal(p.Liquidity, now, p.LastTimestamp)
		if err != nil {
			return err
		}
		p.SecondsPerLiquidityGlobal = p.SecondsPerLiquidityGlobal.WrappingAdd(inc)
	}
	p.LastTimestamp = now
	return nil
}

// UpdateTick settles a swap step that ended at swapLimit against the tick
// bounding it. tick must be non-nil when the boundary is initialized.
//
// Moving y to x always crosses. Moving x to y crosses only if the
// remaining amount is enough to move the price further; otherwise the
// remainder is swallowed (as fee when swapping by input) and the swap ends.
func (p *Pool) UpdateTick(step swapmath.Result, swapLimit decimal.SqrtPrice, boundary *Boundary, tick *Tick, remaining decimal.TokenAmount, byAmountIn, xToY bool, now uint64, protocolFee decimal.Percentage, tier FeeTier) (TickUpdate, error) {
	u := TickUpdate{Remaining: remaining}

	if boundary == nil || !step.NextSqrtPrice.Eq(swapLimit) {
		index, err := tickmath.TickAt(step.NextSqrtPrice, tier.TickSpacing)
		if err != nil {
			return TickUpdate{}, err
		}
		p.CurrentTickIndex = index
		return u, nil
	}

	enough, err := swapmath.IsEnoughAmountToChangePrice(remaining, step.NextSqrtPrice, p.Liquidity, tier.Fee, byAmountIn, xToY)
	if err != nil {
		return TickUpdate{}, err
	}

	if boundary.Initialized {
		if tick == nil {
			return TickUpdate{}, fmt.Errorf("update tick %d: missing initialized tick", boundary.Index)
		}
		switch {
		case !xToY || enough:
			if err := tick.Cross(p, now); err != nil {
				return TickUpdate{}, err
			}
			u.Crossed = true
		case !remaining.IsZero():
			if byAmountIn {
				if err := p.AddFee(remaining, xToY, protocolFee); err != nil {
					return TickUpdate{}, err
				}
				u.Consumed = remaining
			}
			u.Remaining = decimal.TokenAmount{}
		}
	}

	if xToY && enough {
		p.CurrentTickIndex = boundary.Index - int32(tier.TickSpacing)
	} else {
		p.CurrentTickIndex = boundary.Index
	}
	return u, nil
}

// WithdrawProtocolFee hands out and resets the accrued protocol fees.
func (p *Pool) WithdrawProtocolFee() (x, y decimal.TokenAmount) {
	x, y = p.FeeProtocolTokenX, p.FeeProtocolTokenY
	p.FeeProtocolTokenX = decimal.TokenAmount{}
	p.FeeProtocolTokenY = decimal.TokenAmount{}
	return x, y
}
