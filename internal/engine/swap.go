package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/collections"
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/route"
	"github.com/atmx/clamm-engine/internal/swapmath"
	"github.com/atmx/clamm-engine/internal/tickmap"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

// MaxTickCross bounds the steps a single swap may take.
const MaxTickCross = 173

// SwapState is where the swap loop stopped.
type SwapState uint8

const (
	Stepping SwapState = iota
	PriceLimitReached
	Exhausted
	MaxCrossesReached
	NoGainRejected
)

func (s SwapState) String() string {
	switch s {
	case Stepping:
		return "stepping"
	case PriceLimitReached:
		return "price_limit_reached"
	case Exhausted:
		return "exhausted"
	case MaxCrossesReached:
		return "max_crosses_reached"
	case NoGainRejected:
		return "no_gain_rejected"
	}
	return fmt.Sprintf("swap_state(%d)", uint8(s))
}

func (s SwapState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SwapResult is the outcome of running the swap loop against a pool.
// AmountIn includes Fee. Fee is the step fees plus any remainder absorbed
// at a tick boundary that was too small to move the price, so it can
// exceed Amount times the tier fee.
type SwapResult struct {
	AmountIn        decimal.TokenAmount `json:"amount_in"`
	AmountOut       decimal.TokenAmount `json:"amount_out"`
	Fee             decimal.TokenAmount `json:"fee"`
	StartSqrtPrice  decimal.SqrtPrice   `json:"start_sqrt_price"`
	TargetSqrtPrice decimal.SqrtPrice   `json:"target_sqrt_price"`
	CrossedTicks    []model.Tick        `json:"crossed_ticks"`
	Pool            model.Pool          `json:"pool"`

	GlobalInsufficientLiquidity bool      `json:"global_insufficient_liquidity"`
	MaxSwapStepsReached         bool      `json:"max_swap_steps_reached"`
	StateOutdated               bool      `json:"state_outdated"`
	State                       SwapState `json:"state"`

	// ticks holds every tick the loop changed, by index.
	ticks map[int32]model.Tick
}

// SwapParams describes a single-pool swap. Amount is the input when
// ByAmountIn is set and the desired output otherwise.
type SwapParams struct {
	PoolKey        model.PoolKey
	XToY           bool
	Amount         decimal.TokenAmount
	ByAmountIn     bool
	SqrtPriceLimit decimal.SqrtPrice
}

// calculateSwap runs the swap loop on a copy of the pool and its ticks.
// Nothing in s is modified. In strict mode an initialized tick missing
// from storage is an error; otherwise it marks the result StateOutdated.
func (s *State) calculateSwap(p SwapParams, now uint64, strict bool) (SwapResult, error) {
	if p.Amount.IsZero() {
		return SwapResult{}, ErrAmountIsZero
	}
	pool, err := s.pools.Get(p.PoolKey)
	if err != nil {
		return SwapResult{}, err
	}
	if p.XToY {
		if pool.SqrtPrice.Lte(p.SqrtPriceLimit) || p.SqrtPriceLimit.Lt(tickmath.MinSqrtPrice) {
			return SwapResult{}, fmt.Errorf("%w: %s for price %s", ErrWrongLimit, p.SqrtPriceLimit, pool.SqrtPrice)
		}
	} else if pool.SqrtPrice.Gte(p.SqrtPriceLimit) || p.SqrtPriceLimit.Gt(tickmath.MaxSqrtPrice) {
		return SwapResult{}, fmt.Errorf("%w: %s for price %s", ErrWrongLimit, p.SqrtPriceLimit, pool.SqrtPrice)
	}

	tier := p.PoolKey.FeeTier
	edge := tickmath.MaxTickFor(tier.TickSpacing)
	if p.XToY {
		edge = tickmath.MinTickFor(tier.TickSpacing)
	}
	edgePrice, err := tickmath.SqrtPriceAt(edge)
	if err != nil {
		return SwapResult{}, err
	}

	if err := pool.UpdateSecondsPerLiquidityGlobal(now); err != nil {
		return SwapResult{}, err
	}

	res := SwapResult{
		StartSqrtPrice:  pool.SqrtPrice,
		TargetSqrtPrice: p.SqrtPriceLimit,
		ticks:           make(map[int32]model.Tick),
	}
	remaining := p.Amount

loop:
	for steps := 0; ; steps++ {
		switch {
		case remaining.IsZero():
			res.State = Exhausted
			break loop
		case steps >= MaxTickCross:
			res.MaxSwapStepsReached = true
			res.State = MaxCrossesReached
			break loop
		case (p.XToY && pool.SqrtPrice.Lte(edgePrice)) || (!p.XToY && pool.SqrtPrice.Gte(edgePrice)):
			res.GlobalInsufficientLiquidity = true
			res.State = PriceLimitReached
			break loop
		}

		target, boundary, err := s.tickmap.CloserLimit(p.SqrtPriceLimit, p.XToY, pool.CurrentTickIndex, tier.TickSpacing, p.PoolKey)
		if errors.Is(err, tickmap.ErrTickLimitReached) {
			res.GlobalInsufficientLiquidity = true
			res.State = PriceLimitReached
			break
		}
		if err != nil {
			return SwapResult{}, err
		}

		step, err := swapmath.ComputeSwapStep(pool.SqrtPrice, target, pool.Liquidity, remaining, p.ByAmountIn, tier.Fee)
		if err != nil {
			return SwapResult{}, err
		}
		// Any step that consumes input for no output rejects the whole
		// swap, even when earlier steps already produced output.
		if !step.AmountIn.IsZero() && step.AmountOut.IsZero() {
			res.State = NoGainRejected
			break
		}

		used := step.AmountOut
		if p.ByAmountIn {
			used = step.AmountIn.Add(step.FeeAmount)
		}
		if remaining, err = remaining.CheckedSub(used); err != nil {
			return SwapResult{}, fmt.Errorf("swap step: %w", err)
		}
		if err := pool.AddFee(step.FeeAmount, p.XToY, s.config.ProtocolFee); err != nil {
			return SwapResult{}, err
		}
		pool.SqrtPrice = step.NextSqrtPrice
		res.AmountIn = res.AmountIn.Add(step.AmountIn).Add(step.FeeAmount)
		res.AmountOut = res.AmountOut.Add(step.AmountOut)
		res.Fee = res.Fee.Add(step.FeeAmount)

		var tick *model.Tick
		if boundary != nil && boundary.Initialized && step.NextSqrtPrice.Eq(target) {
			t, ok := res.ticks[boundary.Index]
			if !ok {
				stored, err := s.ticks.Get(p.PoolKey, boundary.Index)
				if err != nil {
					if strict || !errors.Is(err, collections.ErrTickNotFound) {
						return SwapResult{}, err
					}
					res.StateOutdated = true
					break
				}
				t = stored
			}
			tick = &t
		}

		u, err := pool.UpdateTick(step, target, boundary, tick, remaining, p.ByAmountIn, p.XToY, now, s.config.ProtocolFee, tier)
		if err != nil {
			return SwapResult{}, err
		}
		remaining = u.Remaining
		if !u.Consumed.IsZero() {
			res.AmountIn = res.AmountIn.Add(u.Consumed)
			res.Fee = res.Fee.Add(u.Consumed)
		}
		if u.Crossed {
			res.ticks[tick.Index] = *tick
			res.CrossedTicks = append(res.CrossedTicks, *tick)
		}

		if pool.SqrtPrice.Eq(p.SqrtPriceLimit) && !remaining.IsZero() {
			res.State = PriceLimitReached
			break
		}
	}

	if res.State == Exhausted && res.AmountOut.IsZero() {
		res.State = NoGainRejected
	}
	res.Pool = pool
	return res, nil
}

// swapError turns a result that did not run to completion into an error.
func swapError(res SwapResult) error {
	switch {
	case res.State == Exhausted:
		return nil
	case res.GlobalInsufficientLiquidity:
		return ErrInsufficientLiquidity
	case res.State == PriceLimitReached:
		return fmt.Errorf("%w: stopped at %s", model.ErrPriceLimitReached, res.Pool.SqrtPrice)
	case res.State == MaxCrossesReached:
		return fmt.Errorf("%w: %d steps", ErrMaxTickCrossReached, MaxTickCross)
	case res.State == NoGainRejected:
		return fmt.Errorf("%w: step gave no output after %s out", ErrNoGainSwap, res.AmountOut)
	}
	return fmt.Errorf("engine: swap stopped in state %s", res.State)
}

// Simulate runs the swap loop without touching state and reports where it
// stopped. Stopping short is reported through the result's flags and
// State, not as an error. A result marked StateOutdated was interrupted
// and keeps State Stepping.
func (s *State) Simulate(p SwapParams) (SwapResult, error) {
	return s.calculateSwap(p, s.env.Now(), false)
}

// Quote computes exactly what Swap would do with p, without doing it.
func (s *State) Quote(p SwapParams) (SwapResult, error) {
	res, err := s.calculateSwap(p, s.env.Now(), true)
	if err != nil {
		return SwapResult{}, err
	}
	if err := swapError(res); err != nil {
		return SwapResult{}, err
	}
	return res, nil
}

// swap executes one swap inside the open journal.
func (s *State) swap(tx *txn, p SwapParams) (SwapResult, error) {
	res, err := s.calculateSwap(p, tx.now, true)
	if err != nil {
		return SwapResult{}, err
	}
	if err := swapError(res); err != nil {
		return SwapResult{}, err
	}
	if err := s.savePool(p.PoolKey, res.Pool); err != nil {
		return SwapResult{}, err
	}
	for _, t := range res.CrossedTicks {
		if err := s.saveTick(p.PoolKey, res.ticks[t.Index]); err != nil {
			return SwapResult{}, err
		}
	}

	crossed := make([]int32, len(res.CrossedTicks))
	for i, t := range res.CrossedTicks {
		crossed[i] = t.Index
	}
	tx.swaps = append(tx.swaps, SwapEvent{
		PoolKey:      p.PoolKey,
		XToY:         p.XToY,
		AmountIn:     res.AmountIn,
		AmountOut:    res.AmountOut,
		Fee:          res.Fee,
		StartPrice:   res.StartSqrtPrice,
		EndPrice:     res.Pool.SqrtPrice,
		CrossedTicks: crossed,
	})
	return res, nil
}

// Swap trades against a single pool. The caller pays AmountIn of the
// input token and receives AmountOut of the other one.
func (s *State) Swap(caller common.Address, p SwapParams) (SwapResult, error) {
	var res SwapResult
	err := s.apply(OpSwap, caller, func(tx *txn) error {
		r, err := s.swap(tx, p)
		if err != nil {
			return err
		}
		hop := model.SwapHop{PoolKey: p.PoolKey, XToY: p.XToY}
		tx.debit(route.TokenIn(hop), r.AmountIn)
		tx.credit(route.TokenOut(hop), r.AmountOut)
		res = r
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}
	return res, nil
}

// RouteResult is the outcome of a multi-hop swap.
type RouteResult struct {
	AmountIn  decimal.TokenAmount `json:"amount_in"`
	AmountOut decimal.TokenAmount `json:"amount_out"`
	Hops      []SwapResult        `json:"hops"`
}

// hopLimit is the loosest price limit in the hop's direction.
func hopLimit(xToY bool) decimal.SqrtPrice {
	if xToY {
		return tickmath.MinSqrtPrice
	}
	return tickmath.MaxSqrtPrice
}

func (s *State) swapRoute(tx *txn, amountIn decimal.TokenAmount, hops []model.SwapHop) (RouteResult, error) {
	if err := route.Validate(hops); err != nil {
		return RouteResult{}, err
	}
	rr := RouteResult{AmountIn: amountIn, Hops: make([]SwapResult, 0, len(hops))}
	amount := amountIn
	for i, h := range hops {
		res, err := s.swap(tx, SwapParams{
			PoolKey:        h.PoolKey,
			XToY:           h.XToY,
			Amount:         amount,
			ByAmountIn:     true,
			SqrtPriceLimit: hopLimit(h.XToY),
		})
		if err != nil {
			return RouteResult{}, fmt.Errorf("hop %d (%s): %w", i, h.PoolKey, err)
		}
		rr.Hops = append(rr.Hops, res)
		amount = res.AmountOut
	}
	rr.AmountOut = amount
	return rr, nil
}

// SwapRoute swaps amountIn through hops, each hop's output feeding the
// next. It fails, changing nothing, unless the final output is at least
// expectedOut less slippage.
func (s *State) SwapRoute(caller common.Address, amountIn, expectedOut decimal.TokenAmount, slippage decimal.Percentage, hops []model.SwapHop) (RouteResult, error) {
	var rr RouteResult
	err := s.apply(OpSwapRoute, caller, func(tx *txn) error {
		r, err := s.swapRoute(tx, amountIn, hops)
		if err != nil {
			return err
		}
		if err := route.Check(r.AmountOut, expectedOut, slippage); err != nil {
			return err
		}
		tx.debit(route.TokenIn(hops[0]), r.AmountIn)
		tx.credit(route.TokenOut(hops[len(hops)-1]), r.AmountOut)
		rr = r
		return nil
	})
	if err != nil {
		return RouteResult{}, err
	}
	return rr, nil
}

// QuoteRoute runs the route and reverts it, returning what SwapRoute
// would produce. Hops revisiting a pool see the earlier hops' effect.
func (s *State) QuoteRoute(amountIn decimal.TokenAmount, hops []model.SwapHop) (RouteResult, error) {
	var rr RouteResult
	err := s.dryRun(OpSwapRoute, common.Address{}, func(tx *txn) error {
		r, err := s.swapRoute(tx, amountIn, hops)
		rr = r
		return err
	})
	if err != nil {
		return RouteResult{}, err
	}
	return rr, nil
}
