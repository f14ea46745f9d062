// Package swapmath computes a single step of a swap: how far the price
// moves toward a target at constant liquidity, what is paid, received and
// charged as fee.
package swapmath

import (
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/sqrtmath"
)

// Result describes one swap step.
type Result struct {
	NextSqrtPrice decimal.SqrtPrice
	AmountIn      decimal.TokenAmount
	AmountOut     decimal.TokenAmount
	FeeAmount     decimal.TokenAmount
}

func afterFee(amount decimal.TokenAmount, fee decimal.Percentage) (decimal.TokenAmount, error) {
	rest, err := decimal.One[decimal.PercentageSpec]().CheckedSub(fee)
	if err != nil {
		return decimal.TokenAmount{}, err
	}
	return decimal.BigMul(amount, rest)
}

// deltaIn is the input needed to move between a and b; deltaOut the
// output released. Direction picks the token.
func deltaIn(a, b decimal.SqrtPrice, l decimal.Liquidity, xToY bool) (decimal.TokenAmount, error) {
	if xToY {
		return sqrtmath.DeltaX(a, b, l, true)
	}
	return sqrtmath.DeltaY(a, b, l, true)
}

func deltaOut(a, b decimal.SqrtPrice, l decimal.Liquidity, xToY bool) (decimal.TokenAmount, error) {
	if xToY {
		return sqrtmath.DeltaY(a, b, l, false)
	}
	return sqrtmath.DeltaX(a, b, l, false)
}

// ComputeSwapStep moves the price from current toward target with
// liquidity l, spending (byAmountIn) or receiving amount. The direction
// is x to y when target is at or below current.
//
// When the step stops short of target with byAmountIn, everything not
// swapped is the fee, so AmountIn+FeeAmount == amount exactly.
func ComputeSwapStep(current, target decimal.SqrtPrice, l decimal.Liquidity, amount decimal.TokenAmount, byAmountIn bool, fee decimal.Percentage) (Result, error) {
	if l.IsZero() {
		return Result{NextSqrtPrice: target}, nil
	}
	xToY := current.Gte(target)

	var (
		r   Result
		err error
	)
	if byAmountIn {
		net, err := afterFee(amount, fee)
		if err != nil {
			return Result{}, err
		}
		if r.AmountIn, err = deltaIn(target, current, l, xToY); err != nil {
			return Result{}, err
		}
		if net.Gte(r.AmountIn) {
			r.NextSqrtPrice = target
		} else if r.NextSqrtPrice, err = sqrtmath.NextSqrtPriceFromInput(current, l, net, xToY); err != nil {
			return Result{}, err
		}
	} else {
		if r.AmountOut, err = deltaOut(target, current, l, xToY); err != nil {
			return Result{}, err
		}
		if amount.Gte(r.AmountOut) {
			r.NextSqrtPrice = target
		} else if r.NextSqrtPrice, err = sqrtmath.NextSqrtPriceFromOutput(current, l, amount, xToY); err != nil {
			return Result{}, err
		}
	}

	reached := r.NextSqrtPrice.Eq(target)
	if !reached || !byAmountIn {
		if r.AmountIn, err = deltaIn(r.NextSqrtPrice, current, l, xToY); err != nil {
			return Result{}, err
		}
	}
	if !reached || byAmountIn {
		if r.AmountOut, err = deltaOut(r.NextSqrtPrice, current, l, xToY); err != nil {
			return Result{}, err
		}
	}

	if !byAmountIn && r.AmountOut.Gt(amount) {
		r.AmountOut = amount
	}

	if byAmountIn && !reached {
		r.FeeAmount, err = amount.CheckedSub(r.AmountIn)
	} else {
		r.FeeAmount, err = decimal.BigMulUp(r.AmountIn, fee)
	}
	if err != nil {
		return Result{}, err
	}
	return r, nil
}

// IsEnoughAmountToChangePrice reports whether amount, net of fee when
// byAmountIn, moves the sqrt price at all from start.
func IsEnoughAmountToChangePrice(amount decimal.TokenAmount, start decimal.SqrtPrice, l decimal.Liquidity, fee decimal.Percentage, byAmountIn, xToY bool) (bool, error) {
	if l.IsZero() {
		return true, nil
	}
	var (
		next decimal.SqrtPrice
		err  error
	)
	if byAmountIn {
		net, err := afterFee(amount, fee)
		if err != nil {
			return false, err
		}
		next, err = sqrtmath.NextSqrtPriceFromInput(start, l, net, xToY)
		if err != nil {
			return false, err
		}
	} else if next, err = sqrtmath.NextSqrtPriceFromOutput(start, l, amount, xToY); err != nil {
		return false, err
	}
	return !next.Eq(start), nil
}
