package decimal

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/atmx/clamm-engine/internal/wide"
)

var (
	ErrOverflow       = wide.ErrOverflow
	ErrUnderflow      = wide.ErrUnderflow
	ErrDivisionByZero = wide.ErrDivisionByZero

	// ErrInvalidValue is returned when a textual value cannot be parsed.
	ErrInvalidValue = errors.New("decimal: invalid value")
)

// FatalError is the panic value raised by the unchecked operators. It
// marks a broken invariant, never a user-triggerable condition.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "decimal: fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

func must[S Spec](d Decimal[S], err error) Decimal[S] {
	if err != nil {
		panic(&FatalError{Err: err})
	}
	return d
}

// CheckedAdd returns d+o.
func (d Decimal[S]) CheckedAdd(o Decimal[S]) (Decimal[S], error) {
	var z uint256.Int
	if _, overflow := z.AddOverflow(&d.v, &o.v); overflow || !fits[S](&z) {
		return Decimal[S]{}, fmt.Errorf("%w: %s %s + %s", ErrOverflow, spec[S]().Name(), d, o)
	}
	return Decimal[S]{v: z}, nil
}

// CheckedSub returns d-o.
func (d Decimal[S]) CheckedSub(o Decimal[S]) (Decimal[S], error) {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&d.v, &o.v); underflow {
		return Decimal[S]{}, fmt.Errorf("%w: %s %s - %s", ErrUnderflow, spec[S]().Name(), d, o)
	}
	return Decimal[S]{v: z}, nil
}

// CheckedMul returns d*o/one, rounding down.
func (d Decimal[S]) CheckedMul(o Decimal[S]) (Decimal[S], error) {
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&d.v, &o.v, &pow10[spec[S]().Scale()]); overflow || !fits[S](&z) {
		return Decimal[S]{}, fmt.Errorf("%w: %s %s * %s", ErrOverflow, spec[S]().Name(), d, o)
	}
	return Decimal[S]{v: z}, nil
}

// CheckedDiv returns d*one/o, preserving the scale across the division.
func (d Decimal[S]) CheckedDiv(o Decimal[S]) (Decimal[S], error) {
	if o.IsZero() {
		return Decimal[S]{}, fmt.Errorf("%w: %s %s / 0", ErrDivisionByZero, spec[S]().Name(), d)
	}
	var z uint256.Int
	if _, overflow := z.MulDivOverflow(&d.v, &pow10[spec[S]().Scale()], &o.v); overflow || !fits[S](&z) {
		return Decimal[S]{}, fmt.Errorf("%w: %s %s / %s", ErrOverflow, spec[S]().Name(), d, o)
	}
	return Decimal[S]{v: z}, nil
}

// Add is CheckedAdd that panics with *FatalError on failure.
func (d Decimal[S]) Add(o Decimal[S]) Decimal[S] { return must(d.CheckedAdd(o)) }

// Sub is CheckedSub that panics with *FatalError on failure.
func (d Decimal[S]) Sub(o Decimal[S]) Decimal[S] { return must(d.CheckedSub(o)) }

// Mul is CheckedMul that panics with *FatalError on failure.
func (d Decimal[S]) Mul(o Decimal[S]) Decimal[S] { return must(d.CheckedMul(o)) }

// Div is CheckedDiv that panics with *FatalError on failure.
func (d Decimal[S]) Div(o Decimal[S]) Decimal[S] { return must(d.CheckedDiv(o)) }

func wrap[S Spec](z *uint256.Int) Decimal[S] {
	if spec[S]().Bits() < 256 {
		z.And(z, maxRaw[S]())
	}
	return Decimal[S]{v: *z}
}

// WrappingAdd returns d+o modulo 2^Bits. Used by accumulators that are
// allowed to wrap, such as fee growth.
func (d Decimal[S]) WrappingAdd(o Decimal[S]) Decimal[S] {
	var z uint256.Int
	return wrap[S](z.Add(&d.v, &o.v))
}

// WrappingSub returns d-o modulo 2^Bits.
func (d Decimal[S]) WrappingSub(o Decimal[S]) Decimal[S] {
	var z uint256.Int
	return wrap[S](z.Sub(&d.v, &o.v))
}
