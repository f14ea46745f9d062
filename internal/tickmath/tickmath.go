// Package tickmath converts between tick indexes and sqrt prices.
//
// A tick t stands for the price 1.0001^t, so its sqrt price is
// 1.0001^(t/2). SqrtPriceAt builds that value bit by bit from eighteen
// precomputed multipliers; TickAt inverts it with a fixed-point log2
// approximation and settles the last step with an exact recomputation.
package tickmath

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/atmx/clamm-engine/internal/decimal"
)

const (
	// MaxTick is the largest usable tick index; 2^18 > MaxTick.
	MaxTick int32 = 221_818
	// MinTick is the smallest usable tick index.
	MinTick int32 = -MaxTick

	// TickSearchRange bounds a single initialized-tick probe, measured in
	// compressed (spacing-divided) ticks.
	TickSearchRange int32 = 256
)

var (
	// ErrTickOutOfBounds is returned for |tick| > MaxTick.
	ErrTickOutOfBounds = errors.New("tickmath: tick out of bounds")

	// ErrSqrtPriceOutOfBounds is returned for a price outside
	// [MinSqrtPrice, MaxSqrtPrice].
	ErrSqrtPriceOutOfBounds = errors.New("tickmath: sqrt price out of bounds")

	// ErrInvalidTickIndex is returned for a tick outside the bounds of its
	// spacing.
	ErrInvalidTickIndex = errors.New("tickmath: invalid tick index")

	// ErrInvalidTickSpacing is returned for a tick that is not a multiple
	// of its spacing, or for a zero spacing.
	ErrInvalidTickSpacing = errors.New("tickmath: invalid tick spacing")
)

// multipliers[k] is 1.0001^(2^k / 2) with 12 decimals, obtained by
// repeatedly squaring and truncating. These values are part of the
// pricing contract and are not recomputed.
var multipliers = [18]decimal.FixedPoint{
	decimal.New[decimal.FixedPointSpec](1_000_049_998_750),
	decimal.New[decimal.FixedPointSpec](1_000_100_000_000),
	decimal.New[decimal.FixedPointSpec](1_000_200_010_000),
	decimal.New[decimal.FixedPointSpec](1_000_400_060_004),
	decimal.New[decimal.FixedPointSpec](1_000_800_280_056),
	decimal.New[decimal.FixedPointSpec](1_001_601_200_560),
	decimal.New[decimal.FixedPointSpec](1_003_204_964_963),
	decimal.New[decimal.FixedPointSpec](1_006_420_201_726),
	decimal.New[decimal.FixedPointSpec](1_012_881_622_442),
	decimal.New[decimal.FixedPointSpec](1_025_929_181_080),
	decimal.New[decimal.FixedPointSpec](1_052_530_684_591),
	decimal.New[decimal.FixedPointSpec](1_107_820_842_005),
	decimal.New[decimal.FixedPointSpec](1_227_267_017_980),
	decimal.New[decimal.FixedPointSpec](1_506_184_333_421),
	decimal.New[decimal.FixedPointSpec](2_268_591_246_242),
	decimal.New[decimal.FixedPointSpec](5_146_506_242_525),
	decimal.New[decimal.FixedPointSpec](26_486_526_504_348),
	decimal.New[decimal.FixedPointSpec](701_536_086_265_529),
}

var (
	// MaxSqrtPrice is SqrtPriceAt(MaxTick).
	MaxSqrtPrice = mustSqrtPrice("65535383934512647000000000000")
	// MinSqrtPrice is SqrtPriceAt(MinTick).
	MinSqrtPrice = mustSqrtPrice("15258932000000000000")
)

func mustSqrtPrice(raw string) decimal.SqrtPrice {
	p, err := decimal.Parse[decimal.SqrtPriceSpec](raw)
	if err != nil {
		panic(err)
	}
	return p
}

// SqrtPriceAt returns the sqrt price of tick.
func SqrtPriceAt(tick int32) (decimal.SqrtPrice, error) {
	abs := tick
	if abs < 0 {
		abs = -abs
	}
	if abs > MaxTick {
		return decimal.SqrtPrice{}, fmt.Errorf("%w: %d", ErrTickOutOfBounds, tick)
	}

	acc := decimal.One[decimal.FixedPointSpec]()
	for k := 0; k < len(multipliers); k++ {
		if abs&(1<<k) == 0 {
			continue
		}
		next, err := acc.CheckedMul(multipliers[k])
		if err != nil {
			return decimal.SqrtPrice{}, fmt.Errorf("sqrt price at %d: %w", tick, err)
		}
		acc = next
	}

	if tick < 0 {
		inv, err := decimal.One[decimal.FixedPointSpec]().CheckedDiv(acc)
		if err != nil {
			return decimal.SqrtPrice{}, fmt.Errorf("sqrt price at %d: %w", tick, err)
		}
		acc = inv
	}
	return decimal.Rescale[decimal.SqrtPriceSpec](acc)
}

// MaxTickFor returns the largest tick aligned to spacing.
func MaxTickFor(spacing uint16) int32 {
	s := int32(spacing)
	return MaxTick / s * s
}

// MinTickFor returns the smallest tick aligned to spacing.
func MinTickFor(spacing uint16) int32 {
	return -MaxTickFor(spacing)
}

// CheckTick validates that tick is usable with spacing.
func CheckTick(tick int32, spacing uint16) error {
	if spacing == 0 {
		return fmt.Errorf("%w: zero", ErrInvalidTickSpacing)
	}
	if tick%int32(spacing) != 0 {
		return fmt.Errorf("%w: tick %d not a multiple of %d", ErrInvalidTickSpacing, tick, spacing)
	}
	if tick > MaxTickFor(spacing) || tick < MinTickFor(spacing) {
		return fmt.Errorf("%w: %d", ErrInvalidTickIndex, tick)
	}
	return nil
}

// AlignDown rounds tick down to a multiple of spacing, toward -inf.
func AlignDown(tick int32, spacing uint16) int32 {
	s := int32(spacing)
	r := tick % s
	if r < 0 {
		r += s
	}
	return tick - r
}

const (
	log2Scale        = 32
	log2One   uint64 = 1 << log2Scale
	log2Half         = log2One >> 1
	log2Two          = log2One << 1
	// log2(sqrt(1.0001)) in x32 fixed point.
	log2SqrtTick uint64 = 309_801
	// Worst-case approximation loss on the negative side.
	log2NegativeMaxLoss uint64 = 300_000
	// Refinement stops once the bit being decided is below 2^-15.
	log2Accuracy uint64 = 1 << (31 - 15)
)

// sqrtPriceToX32 converts a sqrt price to x32 fixed point, rounding down.
func sqrtPriceToX32(p decimal.SqrtPrice) uint64 {
	x := p.Get()
	x.Lsh(x, log2Scale)
	x.Div(x, decimal.Pow10(decimal.SqrtPriceSpec{}.Scale()))
	return x.Uint64()
}

// log2FloorX32 returns floor(log2(x)) for x > 0.
func log2FloorX32(x uint64) uint64 {
	return uint64(63 - bits.LeadingZeros64(x))
}

// log2X32 approximates log2 of an x32 value. The sign is false when the
// value is below one, in which case the magnitude of the log is returned.
func log2X32(x uint64) (positive bool, result uint64) {
	positive = true
	if x < log2One {
		positive = false
		// 2^64 / (x+1) computed in 128 bits.
		q, _ := bits.Div64(1, 0, x+1)
		x = q
	}

	floor := log2FloorX32(x >> log2Scale)
	result = floor << log2Scale
	y := x >> floor
	if y == log2One {
		return positive, result
	}

	for delta := log2Half; delta > log2Accuracy; delta >>= 1 {
		hi, lo := bits.Mul64(y, y)
		y = hi<<(64-log2Scale) | lo>>log2Scale
		if y >= log2Two {
			result |= delta
			y >>= 1
		}
	}
	return positive, result
}

// TickAt returns the greatest tick aligned to spacing whose sqrt price
// is at or below sqrtPrice.
func TickAt(sqrtPrice decimal.SqrtPrice, spacing uint16) (int32, error) {
	if spacing == 0 {
		return 0, fmt.Errorf("%w: zero", ErrInvalidTickSpacing)
	}
	if sqrtPrice.Lt(MinSqrtPrice) || sqrtPrice.Gt(MaxSqrtPrice) {
		return 0, fmt.Errorf("%w: %s", ErrSqrtPriceOutOfBounds, sqrtPrice)
	}

	positive, log := log2X32(sqrtPriceToX32(sqrtPrice))

	var absFloor uint64
	if positive {
		absFloor = log / log2SqrtTick
	} else {
		absFloor = (log + log2NegativeMaxLoss) / log2SqrtTick
	}

	var nearer, farther int32
	if positive {
		nearer, farther = int32(absFloor), int32(absFloor)+1
	} else {
		nearer, farther = -int32(absFloor), -int32(absFloor)-1
	}

	nearerAligned := AlignDown(nearer, spacing)
	fartherAligned := AlignDown(farther, spacing)
	if nearerAligned == fartherAligned {
		return nearerAligned, nil
	}

	if positive {
		if farther > MaxTick {
			return nearerAligned, nil
		}
		fartherPrice, err := SqrtPriceAt(farther)
		if err != nil {
			return 0, err
		}
		if sqrtPrice.Gte(fartherPrice) {
			return fartherAligned, nil
		}
		return nearerAligned, nil
	}

	nearerPrice, err := SqrtPriceAt(nearer)
	if err != nil {
		return 0, err
	}
	if nearerPrice.Lte(sqrtPrice) {
		return nearerAligned, nil
	}
	return fartherAligned, nil
}
