// Package sqrtmath relates token amounts to sqrt price movements at a
// given liquidity.
//
// All formulas are evaluated exactly in 512-bit intermediates and rounded
// once. Amounts a swapper pays round up, amounts paid out round down, and
// the next sqrt price always rounds in the pool's favour.
package sqrtmath

import (
	"errors"
	"fmt"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/wide"
)

// ErrInsufficientLiquidity is returned when the requested output would
// take the price past the end of the curve.
var ErrInsufficientLiquidity = errors.New("sqrtmath: insufficient liquidity")

var (
	sqrtPriceOne = pow10(decimal.SqrtPriceSpec{}.Scale())
	liquidityOne = pow10(decimal.LiquiditySpec{}.Scale())
)

func pow10(exp uint8) wide.Uint {
	u, err := wide.Pow10(wide.W512, uint(exp))
	if err != nil {
		panic(err)
	}
	return u
}

func widen[S decimal.Spec](d decimal.Decimal[S]) wide.Uint {
	return d.MustWide(wide.W512)
}

func product(xs ...wide.Uint) (wide.Uint, error) {
	acc := wide.FromUint64(wide.W512, 1)
	for _, x := range xs {
		var err error
		if acc, err = acc.Mul(x); err != nil {
			return wide.Uint{}, err
		}
	}
	return acc, nil
}

// quotient computes num/den rounding as requested and narrows into S.
func quotient[S decimal.Spec](num, den []wide.Uint, up bool) (decimal.Decimal[S], error) {
	n, err := product(num...)
	if err != nil {
		return decimal.Decimal[S]{}, err
	}
	d, err := product(den...)
	if err != nil {
		return decimal.Decimal[S]{}, err
	}
	q, err := n.DivRound(d, up)
	if err != nil {
		return decimal.Decimal[S]{}, err
	}
	return decimal.FromWide[S](q)
}

// CalculateX returns the amount of X held by liquidity l between two
// sqrt prices whose difference is diff: l*diff/(upper*lower).
func CalculateX(diff, upper, lower decimal.SqrtPrice, l decimal.Liquidity, up bool) (decimal.TokenAmount, error) {
	return quotient[decimal.TokenAmountSpec](
		[]wide.Uint{widen(l), widen(diff), sqrtPriceOne},
		[]wide.Uint{liquidityOne, widen(upper), widen(lower)},
		up,
	)
}

// CalculateY returns the amount of Y held by liquidity l over a sqrt
// price difference diff: l*diff.
func CalculateY(diff decimal.SqrtPrice, l decimal.Liquidity, up bool) (decimal.TokenAmount, error) {
	toValue := decimal.BigMulToValue[decimal.SqrtPriceSpec, decimal.LiquiditySpec]
	if up {
		toValue = decimal.BigMulToValueUp[decimal.SqrtPriceSpec, decimal.LiquiditySpec]
	}
	v, err := toValue(diff, l)
	if err != nil {
		return decimal.TokenAmount{}, err
	}
	return quotient[decimal.TokenAmountSpec]([]wide.Uint{v}, []wide.Uint{sqrtPriceOne}, up)
}

func absDiff(a, b decimal.SqrtPrice) decimal.SqrtPrice {
	if a.Gt(b) {
		return a.Sub(b)
	}
	return b.Sub(a)
}

// DeltaX returns the X amount moved when the price goes between a and b.
func DeltaX(a, b decimal.SqrtPrice, l decimal.Liquidity, up bool) (decimal.TokenAmount, error) {
	return CalculateX(absDiff(a, b), a, b, l, up)
}

// DeltaY returns the Y amount moved when the price goes between a and b.
func DeltaY(a, b decimal.SqrtPrice, l decimal.Liquidity, up bool) (decimal.TokenAmount, error) {
	return CalculateY(absDiff(a, b), l, up)
}

// NextSqrtPriceFromInput returns the price after adding amount of the
// input token (X when xToY) at liquidity l.
func NextSqrtPriceFromInput(price decimal.SqrtPrice, l decimal.Liquidity, amount decimal.TokenAmount, xToY bool) (decimal.SqrtPrice, error) {
	if amount.IsZero() {
		return price, nil
	}
	if xToY {
		return nextFromX(price, l, amount, true)
	}
	return nextFromY(price, l, amount, true)
}

// NextSqrtPriceFromOutput returns the price after removing amount of the
// output token (Y when xToY) at liquidity l.
func NextSqrtPriceFromOutput(price decimal.SqrtPrice, l decimal.Liquidity, amount decimal.TokenAmount, xToY bool) (decimal.SqrtPrice, error) {
	if amount.IsZero() {
		return price, nil
	}
	if xToY {
		return nextFromY(price, l, amount, false)
	}
	return nextFromX(price, l, amount, false)
}

// nextFromX: l*p / (l ± x*p), rounded up.
func nextFromX(price decimal.SqrtPrice, l decimal.Liquidity, x decimal.TokenAmount, add bool) (decimal.SqrtPrice, error) {
	lw, pw, xw := widen(l), widen(price), widen(x)

	num, err := product(lw, pw, sqrtPriceOne)
	if err != nil {
		return decimal.SqrtPrice{}, err
	}
	base, err := product(lw, sqrtPriceOne)
	if err != nil {
		return decimal.SqrtPrice{}, err
	}
	shift, err := product(xw, pw, liquidityOne)
	if err != nil {
		return decimal.SqrtPrice{}, err
	}

	var den wide.Uint
	if add {
		den, err = base.Add(shift)
	} else {
		if base.Cmp(shift) <= 0 {
			return decimal.SqrtPrice{}, fmt.Errorf("%w: removing %s X", ErrInsufficientLiquidity, x)
		}
		den, err = base.Sub(shift)
	}
	if err != nil {
		return decimal.SqrtPrice{}, err
	}

	q, err := num.DivUp(den)
	if err != nil {
		return decimal.SqrtPrice{}, err
	}
	return decimal.FromWide[decimal.SqrtPriceSpec](q)
}

// nextFromY: p ± y/l; the shift rounds down when adding and up when
// removing, so the price is always rounded down.
func nextFromY(price decimal.SqrtPrice, l decimal.Liquidity, y decimal.TokenAmount, add bool) (decimal.SqrtPrice, error) {
	shift, err := quotient[decimal.SqrtPriceSpec](
		[]wide.Uint{widen(y), sqrtPriceOne, liquidityOne},
		[]wide.Uint{widen(l)},
		!add,
	)
	if err != nil {
		return decimal.SqrtPrice{}, err
	}
	if add {
		return price.CheckedAdd(shift)
	}
	next, err := price.CheckedSub(shift)
	if err != nil {
		return decimal.SqrtPrice{}, fmt.Errorf("%w: removing %s Y", ErrInsufficientLiquidity, y)
	}
	return next, nil
}
