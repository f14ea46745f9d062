// Package liquidity converts between token amounts and liquidity over a
// tick range, and partitions the pool's global accumulators into the
// part earned inside a range.
package liquidity

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/sqrtmath"
	"github.com/atmx/clamm-engine/internal/tickmath"
	"github.com/atmx/clamm-engine/internal/wide"
)

var (
	// ErrPriceAboveRange is returned by ByX when the current price is at
	// or above the range; such a position holds only Y.
	ErrPriceAboveRange = errors.New("liquidity: current price at or above range")

	// ErrPriceBelowRange is returned by ByY when the current price is at
	// or below the range; such a position holds only X.
	ErrPriceBelowRange = errors.New("liquidity: current price at or below range")

	// ErrInvalidRange is returned when the upper tick is below the lower.
	ErrInvalidRange = errors.New("liquidity: upper tick below lower tick")
)

// SingleTokenLiquidity is the liquidity bought by an amount of one token
// together with the amount of the other token it requires.
type SingleTokenLiquidity struct {
	L      decimal.Liquidity
	Amount decimal.TokenAmount
}

// Amounts is a liquidity together with both token amounts backing it.
type Amounts struct {
	L decimal.Liquidity
	X decimal.TokenAmount
	Y decimal.TokenAmount
}

func rangePrices(lower, upper int32) (decimal.SqrtPrice, decimal.SqrtPrice, error) {
	lp, err := tickmath.SqrtPriceAt(lower)
	if err != nil {
		return decimal.SqrtPrice{}, decimal.SqrtPrice{}, err
	}
	up, err := tickmath.SqrtPriceAt(upper)
	if err != nil {
		return decimal.SqrtPrice{}, decimal.SqrtPrice{}, err
	}
	return lp, up, nil
}

// liquidityFromX computes x * priceProduct * one / diff, where
// priceProduct = a*b rounded down to sqrt price scale.
func liquidityFromX(x decimal.TokenAmount, a, b, diff decimal.SqrtPrice) (decimal.Liquidity, error) {
	priceProduct, err := decimal.BigMul(a, b)
	if err != nil {
		return decimal.Liquidity{}, err
	}
	r, err := wide.CheckedWideOp(wide.W256, wide.W512, func(w wide.Width) (wide.Uint, error) {
		xw := x.MustWide(w)
		pw := priceProduct.MustWide(w)
		dw := diff.MustWide(w)
		one := decimal.One[decimal.LiquiditySpec]().MustWide(w)
		num, err := xw.Mul(pw)
		if err != nil {
			return wide.Uint{}, err
		}
		if num, err = num.Mul(one); err != nil {
			return wide.Uint{}, err
		}
		return num.Div(dw)
	})
	if err != nil {
		return decimal.Liquidity{}, fmt.Errorf("liquidity by x: %w", err)
	}
	return decimal.FromWide[decimal.LiquiditySpec](r)
}

// liquidityFromY computes y * sqrtPriceOne * one / diff.
func liquidityFromY(y decimal.TokenAmount, diff decimal.SqrtPrice) (decimal.Liquidity, error) {
	r, err := wide.CheckedWideOp(wide.W256, wide.W512, func(w wide.Width) (wide.Uint, error) {
		yw := y.MustWide(w)
		dw := diff.MustWide(w)
		sp := decimal.One[decimal.SqrtPriceSpec]().MustWide(w)
		one := decimal.One[decimal.LiquiditySpec]().MustWide(w)
		num, err := yw.Mul(sp)
		if err != nil {
			return wide.Uint{}, err
		}
		if num, err = num.Mul(one); err != nil {
			return wide.Uint{}, err
		}
		return num.Div(dw)
	})
	if err != nil {
		return decimal.Liquidity{}, fmt.Errorf("liquidity by y: %w", err)
	}
	return decimal.FromWide[decimal.LiquiditySpec](r)
}

// ByX returns the liquidity provided by x units of X over [lower, upper]
// at the current price, and the Y amount that must accompany it.
func ByX(x decimal.TokenAmount, lower, upper int32, current decimal.SqrtPrice, roundUp bool) (SingleTokenLiquidity, error) {
	lowerPrice, upperPrice, err := rangePrices(lower, upper)
	if err != nil {
		return SingleTokenLiquidity{}, err
	}
	if !upperPrice.Gt(current) {
		return SingleTokenLiquidity{}, fmt.Errorf("%w: upper %d", ErrPriceAboveRange, upper)
	}

	if current.Lt(lowerPrice) {
		l, err := liquidityFromX(x, lowerPrice, upperPrice, upperPrice.Sub(lowerPrice))
		if err != nil {
			return SingleTokenLiquidity{}, err
		}
		return SingleTokenLiquidity{L: l}, nil
	}

	l, err := liquidityFromX(x, current, upperPrice, upperPrice.Sub(current))
	if err != nil {
		return SingleTokenLiquidity{}, err
	}
	y, err := sqrtmath.CalculateY(current.Sub(lowerPrice), l, roundUp)
	if err != nil {
		return SingleTokenLiquidity{}, err
	}
	return SingleTokenLiquidity{L: l, Amount: y}, nil
}

// ByY returns the liquidity provided by y units of Y over [lower, upper]
// at the current price, and the X amount that must accompany it.
func ByY(y decimal.TokenAmount, lower, upper int32, current decimal.SqrtPrice, roundUp bool) (SingleTokenLiquidity, error) {
	lowerPrice, upperPrice, err := rangePrices(lower, upper)
	if err != nil {
		return SingleTokenLiquidity{}, err
	}
	if !current.Gt(lowerPrice) {
		return SingleTokenLiquidity{}, fmt.Errorf("%w: lower %d", ErrPriceBelowRange, lower)
	}

	if !upperPrice.Gt(current) {
		l, err := liquidityFromY(y, upperPrice.Sub(lowerPrice))
		if err != nil {
			return SingleTokenLiquidity{}, err
		}
		return SingleTokenLiquidity{L: l}, nil
	}

	l, err := liquidityFromY(y, current.Sub(lowerPrice))
	if err != nil {
		return SingleTokenLiquidity{}, err
	}
	x, err := sqrtmath.CalculateX(upperPrice.Sub(current), upperPrice, current, l, roundUp)
	if err != nil {
		return SingleTokenLiquidity{}, err
	}
	return SingleTokenLiquidity{L: l, Amount: x}, nil
}

// ByXY returns the largest liquidity that both x and y can back over
// [lower, upper], with the amounts actually required.
func ByXY(x, y decimal.TokenAmount, lower, upper int32, current decimal.SqrtPrice, roundUp bool) (Amounts, error) {
	lowerPrice, upperPrice, err := rangePrices(lower, upper)
	if err != nil {
		return Amounts{}, err
	}

	if !current.Gt(lowerPrice) {
		r, err := ByX(x, lower, upper, current, roundUp)
		if err != nil {
			return Amounts{}, err
		}
		return Amounts{L: r.L, X: x}, nil
	}
	if !current.Lt(upperPrice) {
		r, err := ByY(y, lower, upper, current, roundUp)
		if err != nil {
			return Amounts{}, err
		}
		return Amounts{L: r.L, Y: y}, nil
	}

	byX, err := ByX(x, lower, upper, current, roundUp)
	if err != nil {
		return Amounts{}, err
	}
	byY, err := ByY(y, lower, upper, current, roundUp)
	if err != nil {
		return Amounts{}, err
	}

	if byY.L.Gt(byX.L) {
		if byX.Amount.Lte(y) {
			return Amounts{L: byX.L, X: x, Y: byX.Amount}, nil
		}
		return Amounts{L: byY.L, X: byY.Amount, Y: y}, nil
	}
	if byY.Amount.Lte(x) {
		return Amounts{L: byY.L, X: byY.Amount, Y: y}, nil
	}
	return Amounts{L: byX.L, X: x, Y: byX.Amount}, nil
}

// AmountDelta returns the token amounts moved by adding (add) or
// removing liquidity delta over [lower, upper], and whether the range is
// active so the pool's liquidity must change too. Deposits round up,
// withdrawals round down.
func AmountDelta(currentTick int32, current decimal.SqrtPrice, delta decimal.Liquidity, add bool, upper, lower int32) (x, y decimal.TokenAmount, active bool, err error) {
	if upper < lower {
		return x, y, false, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lower, upper)
	}
	lowerPrice, upperPrice, err := rangePrices(lower, upper)
	if err != nil {
		return x, y, false, err
	}

	switch {
	case currentTick < lower:
		x, err = sqrtmath.DeltaX(lowerPrice, upperPrice, delta, add)
	case currentTick < upper:
		if x, err = sqrtmath.DeltaX(current, upperPrice, delta, add); err != nil {
			return x, y, false, err
		}
		y, err = sqrtmath.DeltaY(lowerPrice, current, delta, add)
		active = true
	default:
		y, err = sqrtmath.DeltaY(lowerPrice, upperPrice, delta, add)
	}
	if err != nil {
		return decimal.TokenAmount{}, decimal.TokenAmount{}, false, err
	}
	return x, y, active, nil
}

// MaxLiquidityPerTick bounds the gross liquidity referencing one tick so
// that the sum over every usable tick cannot overflow.
func MaxLiquidityPerTick(spacing uint16) decimal.Liquidity {
	ticks := uint64(2*tickmath.MaxTick+1) / uint64(spacing)
	top := decimal.Max[decimal.LiquiditySpec]().Get()
	l, _ := decimal.FromUint256[decimal.LiquiditySpec](top.Div(top, uint256.NewInt(ticks)))
	return l
}
