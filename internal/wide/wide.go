// Package wide implements the family of fixed-width unsigned integers
// (128 to 512 bits) used as overflow-safe intermediates by the decimal
// types. Values carry their width and every operation checks the result
// against it, so an intermediate can never silently lose high bits.
package wide

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Width is the bit width of a wide integer.
type Width uint

const (
	W128 Width = 128
	W192 Width = 192
	W256 Width = 256
	W320 Width = 320
	W384 Width = 384
	W448 Width = 448
	W512 Width = 512
)

var family = []Width{W128, W192, W256, W320, W384, W448, W512}

var (
	// ErrOverflow is returned when a result does not fit its width.
	ErrOverflow = errors.New("arithmetic: overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic: underflow")

	// ErrDivisionByZero is returned for a zero divisor.
	ErrDivisionByZero = errors.New("arithmetic: division by zero")

	// ErrUnsupportedWidth is returned when no family member is wide enough.
	ErrUnsupportedWidth = errors.New("wide: unsupported width")
)

// For returns the narrowest family width holding at least bits.
func For(bits uint) (Width, error) {
	for _, w := range family {
		if uint(w) >= bits {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %d bits", ErrUnsupportedWidth, bits)
}

// Uint is an unsigned integer bound to a Width. The zero value is a
// 512-bit zero. A Uint is immutable: operations return new values.
type Uint struct {
	w Width
	n *big.Int
}

// New returns x as a Uint of width w.
func New(w Width, x *big.Int) (Uint, error) {
	if x.Sign() < 0 {
		return Uint{}, fmt.Errorf("%w: negative value %s", ErrUnderflow, x)
	}
	if uint(x.BitLen()) > uint(w) {
		return Uint{}, fmt.Errorf("%w: %d-bit value in U%d", ErrOverflow, x.BitLen(), w)
	}
	return Uint{w: w, n: new(big.Int).Set(x)}, nil
}

// FromUint64 returns v as a Uint of width w.
func FromUint64(w Width, v uint64) Uint {
	return Uint{w: w, n: new(big.Int).SetUint64(v)}
}

// FromUint256 zero-extends (or narrows, with a check) x into width w.
func FromUint256(w Width, x *uint256.Int) (Uint, error) {
	return New(w, x.ToBig())
}

// Pow10 returns 10^exp in width w.
func Pow10(w Width, exp uint) (Uint, error) {
	return New(w, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
}

// Width reports the width of u.
func (u Uint) Width() Width {
	if u.w == 0 {
		return W512
	}
	return u.w
}

func (u Uint) int() *big.Int {
	if u.n == nil {
		return new(big.Int)
	}
	return u.n
}

// Big returns a copy of the value as a big.Int.
func (u Uint) Big() *big.Int {
	return new(big.Int).Set(u.int())
}

// Uint256 narrows u to 256 bits.
func (u Uint) Uint256() (*uint256.Int, error) {
	v, overflow := uint256.FromBig(u.int())
	if overflow {
		return nil, fmt.Errorf("%w: %d-bit value in U256", ErrOverflow, u.int().BitLen())
	}
	return v, nil
}

// Cast converts u to width w. Widening always succeeds; narrowing
// requires every truncated high bit to be zero.
func (u Uint) Cast(w Width) (Uint, error) {
	if uint(u.int().BitLen()) > uint(w) {
		return Uint{}, fmt.Errorf("%w: cast U%d -> U%d", ErrOverflow, u.Width(), w)
	}
	return Uint{w: w, n: u.int()}, nil
}

// IsZero reports whether u == 0.
func (u Uint) IsZero() bool { return u.int().Sign() == 0 }

// Cmp compares u and v by value, ignoring width.
func (u Uint) Cmp(v Uint) int { return u.int().Cmp(v.int()) }

func (u Uint) String() string { return u.int().String() }

func common(u, v Uint) Width {
	if u.Width() > v.Width() {
		return u.Width()
	}
	return v.Width()
}

func bound(w Width, x *big.Int, op string) (Uint, error) {
	if uint(x.BitLen()) > uint(w) {
		return Uint{}, fmt.Errorf("%w: %s in U%d", ErrOverflow, op, w)
	}
	return Uint{w: w, n: x}, nil
}

// Add returns u+v at the wider of the two widths.
func (u Uint) Add(v Uint) (Uint, error) {
	return bound(common(u, v), new(big.Int).Add(u.int(), v.int()), "add")
}

// Sub returns u-v at the wider of the two widths.
func (u Uint) Sub(v Uint) (Uint, error) {
	if u.Cmp(v) < 0 {
		return Uint{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, u, v)
	}
	return Uint{w: common(u, v), n: new(big.Int).Sub(u.int(), v.int())}, nil
}

// Mul returns u*v at the wider of the two widths.
func (u Uint) Mul(v Uint) (Uint, error) {
	return bound(common(u, v), new(big.Int).Mul(u.int(), v.int()), "mul")
}

// Div returns floor(u/v).
func (u Uint) Div(v Uint) (Uint, error) {
	if v.IsZero() {
		return Uint{}, ErrDivisionByZero
	}
	return Uint{w: common(u, v), n: new(big.Int).Quo(u.int(), v.int())}, nil
}

// DivUp returns ceil(u/v).
func (u Uint) DivUp(v Uint) (Uint, error) {
	if v.IsZero() {
		return Uint{}, ErrDivisionByZero
	}
	q, r := new(big.Int).QuoRem(u.int(), v.int(), new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return bound(common(u, v), q, "div up")
}

// DivRound divides rounding up when up is set and down otherwise.
func (u Uint) DivRound(v Uint, up bool) (Uint, error) {
	if up {
		return u.DivUp(v)
	}
	return u.Div(v)
}

// MulDiv computes a*b/d in width w with a single rounding step.
func MulDiv(w Width, a, b, d Uint, up bool) (Uint, error) {
	a, err := a.Cast(w)
	if err != nil {
		return Uint{}, err
	}
	p, err := a.Mul(b)
	if err != nil {
		return Uint{}, err
	}
	return p.DivRound(d, up)
}

// CheckedWideOp runs op at the wide width and narrows its result back to
// narrow, failing with ErrOverflow when the result does not fit.
func CheckedWideOp(narrow, wide Width, op func(w Width) (Uint, error)) (Uint, error) {
	if wide < narrow {
		return Uint{}, fmt.Errorf("%w: U%d narrower than U%d", ErrUnsupportedWidth, wide, narrow)
	}
	r, err := op(wide)
	if err != nil {
		return Uint{}, err
	}
	return r.Cast(narrow)
}
