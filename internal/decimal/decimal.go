// Package decimal implements the fixed-point value types of the engine.
//
// Every type is an unsigned integer of a fixed bit width with an implied
// decimal scale: value = raw × 10^-scale. All types share one generic
// implementation, Decimal[S], where the Spec type parameter fixes the
// width and the scale. Arithmetic is exact integer arithmetic; checked
// operations return errors and the plain operators panic with
// *FatalError, so a result is never silently truncated.
package decimal

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/atmx/clamm-engine/internal/wide"
)

// Spec fixes the backing width and decimal scale of a Decimal.
type Spec interface {
	Scale() uint8
	Bits() uint
	Name() string
}

// Decimal is an unsigned fixed-point number. The zero value is zero.
type Decimal[S Spec] struct {
	v uint256.Int
}

func spec[S Spec]() S {
	var s S
	return s
}

var pow10 [78]uint256.Int

func init() {
	pow10[0].SetOne()
	ten := uint256.NewInt(10)
	for i := 1; i < len(pow10); i++ {
		pow10[i].Mul(&pow10[i-1], ten)
	}
}

// Pow10 returns 10^exp as a uint256. exp must be below 78.
func Pow10(exp uint8) *uint256.Int {
	return new(uint256.Int).Set(&pow10[exp])
}

func fits[S Spec](x *uint256.Int) bool {
	return uint(x.BitLen()) <= spec[S]().Bits()
}

func maxRaw[S Spec]() *uint256.Int {
	bits := spec[S]().Bits()
	if bits >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	m := new(uint256.Int).Lsh(uint256.NewInt(1), bits)
	return m.SubUint64(m, 1)
}

// New returns a decimal with raw integer v. Every type is at least 64
// bits wide, so any uint64 fits.
func New[S Spec](raw uint64) Decimal[S] {
	var d Decimal[S]
	d.v.SetUint64(raw)
	return d
}

// FromUint256 returns a decimal with raw integer x.
func FromUint256[S Spec](x *uint256.Int) (Decimal[S], error) {
	if !fits[S](x) {
		return Decimal[S]{}, fmt.Errorf("%w: %s does not fit %s", ErrOverflow, x.Dec(), spec[S]().Name())
	}
	var d Decimal[S]
	d.v.Set(x)
	return d, nil
}

// FromBig returns a decimal with raw integer x.
func FromBig[S Spec](x *big.Int) (Decimal[S], error) {
	if x.Sign() < 0 {
		return Decimal[S]{}, fmt.Errorf("%w: negative %s", ErrUnderflow, spec[S]().Name())
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return Decimal[S]{}, fmt.Errorf("%w: %s does not fit %s", ErrOverflow, x, spec[S]().Name())
	}
	return FromUint256[S](v)
}

// CheckedFromInteger returns n as a whole number of units.
func CheckedFromInteger[S Spec](n uint64) (Decimal[S], error) {
	var z uint256.Int
	if _, overflow := z.MulOverflow(uint256.NewInt(n), &pow10[spec[S]().Scale()]); overflow {
		return Decimal[S]{}, fmt.Errorf("%w: from integer %d", ErrOverflow, n)
	}
	return FromUint256[S](&z)
}

// FromInteger is CheckedFromInteger that panics on overflow.
func FromInteger[S Spec](n uint64) Decimal[S] {
	return must(CheckedFromInteger[S](n))
}

// CheckedFromScale returns v × 10^-scale expressed in S, rounding down
// when scale is finer than S.
func CheckedFromScale[S Spec](v uint64, scale uint8) (Decimal[S], error) {
	own := spec[S]().Scale()
	x := uint256.NewInt(v)
	if scale <= own {
		var z uint256.Int
		if _, overflow := z.MulOverflow(x, &pow10[own-scale]); overflow {
			return Decimal[S]{}, fmt.Errorf("%w: from scale %d/%d", ErrOverflow, v, scale)
		}
		return FromUint256[S](&z)
	}
	return FromUint256[S](x.Div(x, &pow10[scale-own]))
}

// FromScale is CheckedFromScale that panics on overflow.
func FromScale[S Spec](v uint64, scale uint8) Decimal[S] {
	return must(CheckedFromScale[S](v, scale))
}

// Zero returns the zero value of S.
func Zero[S Spec]() Decimal[S] { return Decimal[S]{} }

// One returns 10^scale.
func One[S Spec]() Decimal[S] {
	var d Decimal[S]
	d.v.Set(&pow10[spec[S]().Scale()])
	return d
}

// AlmostOne returns One()-1.
func AlmostOne[S Spec]() Decimal[S] {
	d := One[S]()
	d.v.SubUint64(&d.v, 1)
	return d
}

// Max returns the largest representable value of S.
func Max[S Spec]() Decimal[S] {
	var d Decimal[S]
	d.v.Set(maxRaw[S]())
	return d
}

// Get returns a copy of the raw integer.
func (d Decimal[S]) Get() *uint256.Int { return new(uint256.Int).Set(&d.v) }

// Big returns the raw integer as a big.Int.
func (d Decimal[S]) Big() *big.Int { return d.v.ToBig() }

// Uint64 returns the raw integer truncated to 64 bits.
func (d Decimal[S]) Uint64() uint64 { return d.v.Uint64() }

// Scale returns the number of decimal places of S.
func (d Decimal[S]) Scale() uint8 { return spec[S]().Scale() }

func (d Decimal[S]) IsZero() bool { return d.v.IsZero() }

// Cmp compares d and o, returning -1, 0 or +1.
func (d Decimal[S]) Cmp(o Decimal[S]) int { return d.v.Cmp(&o.v) }

func (d Decimal[S]) Eq(o Decimal[S]) bool  { return d.v.Eq(&o.v) }
func (d Decimal[S]) Lt(o Decimal[S]) bool  { return d.v.Lt(&o.v) }
func (d Decimal[S]) Gt(o Decimal[S]) bool  { return d.v.Gt(&o.v) }
func (d Decimal[S]) Lte(o Decimal[S]) bool { return !d.v.Gt(&o.v) }
func (d Decimal[S]) Gte(o Decimal[S]) bool { return !d.v.Lt(&o.v) }

// Min returns the smaller of a and b.
func Min[S Spec](a, b Decimal[S]) Decimal[S] {
	if a.Lt(b) {
		return a
	}
	return b
}

// ToWide widens the raw integer into w.
func (d Decimal[S]) ToWide(w wide.Width) (wide.Uint, error) {
	return wide.FromUint256(w, &d.v)
}

// MustWide is ToWide for widths known to hold S. It panics with
// *FatalError when d does not fit w.
func (d Decimal[S]) MustWide(w wide.Width) wide.Uint {
	return mustWide(w, &d.v)
}

func mustWide(w wide.Width, x *uint256.Int) wide.Uint {
	u, err := wide.FromUint256(w, x)
	if err != nil {
		panic(&FatalError{Err: err})
	}
	return u
}

// FromWide narrows a wide integer into S.
func FromWide[S Spec](u wide.Uint) (Decimal[S], error) {
	x, err := u.Uint256()
	if err != nil {
		return Decimal[S]{}, fmt.Errorf("%s: %w", spec[S]().Name(), err)
	}
	return FromUint256[S](x)
}
