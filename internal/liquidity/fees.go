package liquidity

import (
	"errors"
	"fmt"

	"github.com/atmx/clamm-engine/internal/decimal"
)

// ErrTimestampNotIncreasing is returned when an accumulator is advanced to
// a timestamp that is not after the last one.
var ErrTimestampNotIncreasing = errors.New("liquidity: timestamp not after last update")

// Outside holds the accumulator values a tick recorded for the side of
// the price it is not on.
type Outside struct {
	Index               int32
	FeeGrowthX          decimal.FeeGrowth
	FeeGrowthY          decimal.FeeGrowth
	SecondsPerLiquidity decimal.SecondsPerLiquidity
}

// inside splits a global accumulator into the part below lower, the part
// above upper and the rest. All arithmetic wraps.
func inside[S decimal.Spec](lower, upper int32, lowerOut, upperOut decimal.Decimal[S], current int32, global decimal.Decimal[S]) decimal.Decimal[S] {
	below := lowerOut
	if current < lower {
		below = global.WrappingSub(lowerOut)
	}
	above := upperOut
	if current >= upper {
		above = global.WrappingSub(upperOut)
	}
	return global.WrappingSub(below).WrappingSub(above)
}

// FeeGrowthInside returns the fee growth per unit of liquidity accrued
// strictly inside [lower.Index, upper.Index].
func FeeGrowthInside(lower, upper Outside, current int32, globalX, globalY decimal.FeeGrowth) (x, y decimal.FeeGrowth) {
	x = inside(lower.Index, upper.Index, lower.FeeGrowthX, upper.FeeGrowthX, current, globalX)
	y = inside(lower.Index, upper.Index, lower.FeeGrowthY, upper.FeeGrowthY, current, globalY)
	return x, y
}

// SecondsPerLiquidityGlobal returns the increment of the seconds per
// liquidity accumulator over (last, now] at liquidity l.
func SecondsPerLiquidityGlobal(l decimal.Liquidity, now, last uint64) (decimal.SecondsPerLiquidity, error) {
	if now <= last {
		return decimal.SecondsPerLiquidity{}, fmt.Errorf("%w: %d <= %d", ErrTimestampNotIncreasing, now, last)
	}
	dt, err := decimal.CheckedFromInteger[decimal.SecondsPerLiquiditySpec](now - last)
	if err != nil {
		return decimal.SecondsPerLiquidity{}, err
	}
	return decimal.BigDiv(dt, l)
}

// SecondsPerLiquidityInside is FeeGrowthInside for the time accumulator.
func SecondsPerLiquidityInside(lower, upper Outside, current int32, global decimal.SecondsPerLiquidity) decimal.SecondsPerLiquidity {
	return inside(lower.Index, upper.Index, lower.SecondsPerLiquidity, upper.SecondsPerLiquidity, current, global)
}
