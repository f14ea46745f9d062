package decimal

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	shopspring "github.com/shopspring/decimal"
)

// String prints the integer part and the fraction zero-padded to the
// type's scale, e.g. Percentage raw 6000000000 prints "0.006000000000".
func (d Decimal[S]) String() string {
	scale := int32(spec[S]().Scale())
	return shopspring.NewFromBigInt(d.v.ToBig(), -scale).StringFixed(scale)
}

// Human returns the value as an arbitrary-precision decimal for display.
// It must not feed back into engine arithmetic.
func (d Decimal[S]) Human() shopspring.Decimal {
	return shopspring.NewFromBigInt(d.v.ToBig(), -int32(spec[S]().Scale()))
}

// RawString returns the raw integer in base 10.
func (d Decimal[S]) RawString() string { return d.v.Dec() }

// Parse reads a raw base-10 integer.
func Parse[S Spec](s string) (Decimal[S], error) {
	x, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return Decimal[S]{}, fmt.Errorf("%w: %s %q: %v", ErrInvalidValue, spec[S]().Name(), s, err)
	}
	return FromUint256[S](x)
}

// MarshalText encodes the raw integer, so JSON carries it as an exact
// base-10 string.
func (d Decimal[S]) MarshalText() ([]byte, error) {
	return []byte(d.v.Dec()), nil
}

// UnmarshalText decodes a raw base-10 integer, rejecting values above
// the type's width.
func (d *Decimal[S]) UnmarshalText(b []byte) error {
	v, err := Parse[S](string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
