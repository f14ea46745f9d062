package decimal

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/atmx/clamm-engine/internal/wide"
)

// mulDiv widens x, y and div to a width holding x*y, computes x*y/div
// (ceil when up) and narrows the result back into S.
func mulDiv[S Spec](op string, x, y, div *uint256.Int, up bool) (Decimal[S], error) {
	narrow, err := wide.For(spec[S]().Bits())
	if err != nil {
		return Decimal[S]{}, err
	}
	w, err := wide.For(uint(x.BitLen() + y.BitLen()))
	if err != nil {
		return Decimal[S]{}, err
	}
	if w < narrow {
		w = narrow
	}
	r, err := wide.CheckedWideOp(narrow, w, func(w wide.Width) (wide.Uint, error) {
		a, err := wide.FromUint256(w, x)
		if err != nil {
			return wide.Uint{}, err
		}
		b, err := wide.FromUint256(w, y)
		if err != nil {
			return wide.Uint{}, err
		}
		d, err := wide.FromUint256(w, div)
		if err != nil {
			return wide.Uint{}, err
		}
		return wide.MulDiv(w, a, b, d, up)
	})
	if err != nil {
		return Decimal[S]{}, fmt.Errorf("%s %s: %w", spec[S]().Name(), op, err)
	}
	return FromWide[S](r)
}

// BigMul returns a*b/one(b), rounding down. The result keeps a's type.
func BigMul[S, R Spec](a Decimal[S], b Decimal[R]) (Decimal[S], error) {
	return mulDiv[S]("big mul", &a.v, &b.v, &pow10[spec[R]().Scale()], false)
}

// BigMulUp is BigMul rounding up.
func BigMulUp[S, R Spec](a Decimal[S], b Decimal[R]) (Decimal[S], error) {
	return mulDiv[S]("big mul up", &a.v, &b.v, &pow10[spec[R]().Scale()], true)
}

// BigDiv returns a*one(b)/b, rounding down.
func BigDiv[S, R Spec](a Decimal[S], b Decimal[R]) (Decimal[S], error) {
	return mulDiv[S]("big div", &a.v, &pow10[spec[R]().Scale()], &b.v, false)
}

// BigDivUp is BigDiv rounding up.
func BigDivUp[S, R Spec](a Decimal[S], b Decimal[R]) (Decimal[S], error) {
	return mulDiv[S]("big div up", &a.v, &pow10[spec[R]().Scale()], &b.v, true)
}

// BigMulByNumber returns a*n/one(a), rounding down.
func BigMulByNumber[S Spec](a Decimal[S], n *uint256.Int) (Decimal[S], error) {
	return mulDiv[S]("big mul by number", &a.v, n, &pow10[spec[S]().Scale()], false)
}

// BigMulByNumberUp is BigMulByNumber rounding up.
func BigMulByNumberUp[S Spec](a Decimal[S], n *uint256.Int) (Decimal[S], error) {
	return mulDiv[S]("big mul by number up", &a.v, n, &pow10[spec[S]().Scale()], true)
}

// BigDivByNumber returns a*one(a)/n, rounding down.
func BigDivByNumber[S Spec](a Decimal[S], n *uint256.Int) (Decimal[S], error) {
	return mulDiv[S]("big div by number", &a.v, &pow10[spec[S]().Scale()], n, false)
}

// BigDivByNumberUp is BigDivByNumber rounding up.
func BigDivByNumberUp[S Spec](a Decimal[S], n *uint256.Int) (Decimal[S], error) {
	return mulDiv[S]("big div by number up", &a.v, &pow10[spec[S]().Scale()], n, true)
}

// BigMulToValue returns a*b/one(b) as a 512-bit value without narrowing
// it back into a's type.
func BigMulToValue[S, R Spec](a Decimal[S], b Decimal[R]) (wide.Uint, error) {
	return mulToValue(&a.v, &b.v, &pow10[spec[R]().Scale()], false)
}

// BigMulToValueUp is BigMulToValue rounding up.
func BigMulToValueUp[S, R Spec](a Decimal[S], b Decimal[R]) (wide.Uint, error) {
	return mulToValue(&a.v, &b.v, &pow10[spec[R]().Scale()], true)
}

func mulToValue(x, y, div *uint256.Int, up bool) (wide.Uint, error) {
	return wide.MulDiv(wide.W512, mustWide(wide.W512, x), mustWide(wide.W512, y), mustWide(wide.W512, div), up)
}

func rescale[S, R Spec](d Decimal[R], up bool) (Decimal[S], error) {
	to, from := spec[S]().Scale(), spec[R]().Scale()
	if to >= from {
		return mulDiv[S]("rescale", &d.v, &pow10[to-from], &pow10[0], false)
	}
	return mulDiv[S]("rescale", &d.v, &pow10[0], &pow10[from-to], up)
}

// Rescale converts d into S, rounding down when S has fewer decimals.
func Rescale[S, R Spec](d Decimal[R]) (Decimal[S], error) {
	return rescale[S](d, false)
}

// RescaleUp converts d into S, rounding up when S has fewer decimals.
func RescaleUp[S, R Spec](d Decimal[R]) (Decimal[S], error) {
	return rescale[S](d, true)
}
