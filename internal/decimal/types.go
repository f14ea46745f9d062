package decimal

import (
	"github.com/atmx/clamm-engine/internal/wide"
)

// PercentageSpec: 64 bits, 12 decimals.
type PercentageSpec struct{}

func (PercentageSpec) Scale() uint8 { return 12 }
func (PercentageSpec) Bits() uint   { return 64 }
func (PercentageSpec) Name() string { return "Percentage" }

// SqrtPriceSpec: 128 bits, 24 decimals.
type SqrtPriceSpec struct{}

func (SqrtPriceSpec) Scale() uint8 { return 24 }
func (SqrtPriceSpec) Bits() uint   { return 128 }
func (SqrtPriceSpec) Name() string { return "SqrtPrice" }

// FixedPointSpec: 128 bits, 12 decimals.
type FixedPointSpec struct{}

func (FixedPointSpec) Scale() uint8 { return 12 }
func (FixedPointSpec) Bits() uint   { return 128 }
func (FixedPointSpec) Name() string { return "FixedPoint" }

// LiquiditySpec: 256 bits, 6 decimals.
type LiquiditySpec struct{}

func (LiquiditySpec) Scale() uint8 { return 6 }
func (LiquiditySpec) Bits() uint   { return 256 }
func (LiquiditySpec) Name() string { return "Liquidity" }

// TokenAmountSpec: 256 bits, no decimals.
type TokenAmountSpec struct{}

func (TokenAmountSpec) Scale() uint8 { return 0 }
func (TokenAmountSpec) Bits() uint   { return 256 }
func (TokenAmountSpec) Name() string { return "TokenAmount" }

// FeeGrowthSpec: 128 bits, 28 decimals.
type FeeGrowthSpec struct{}

func (FeeGrowthSpec) Scale() uint8 { return 28 }
func (FeeGrowthSpec) Bits() uint   { return 128 }
func (FeeGrowthSpec) Name() string { return "FeeGrowth" }

// SecondsPerLiquiditySpec: 128 bits, 24 decimals.
type SecondsPerLiquiditySpec struct{}

func (SecondsPerLiquiditySpec) Scale() uint8 { return 24 }
func (SecondsPerLiquiditySpec) Bits() uint   { return 128 }
func (SecondsPerLiquiditySpec) Name() string { return "SecondsPerLiquidity" }

type (
	// Percentage is a fee or ratio; 1.0 is 100%.
	Percentage = Decimal[PercentageSpec]

	// SqrtPrice is the square root of a pool price.
	SqrtPrice = Decimal[SqrtPriceSpec]

	// FixedPoint is a 12-decimal helper used by tick math.
	FixedPoint = Decimal[FixedPointSpec]

	// Liquidity is the virtual reserve magnitude of a range.
	Liquidity = Decimal[LiquiditySpec]

	// TokenAmount is an integer amount of a token.
	TokenAmount = Decimal[TokenAmountSpec]

	// FeeGrowth is a fee-per-unit-of-liquidity accumulator. It wraps
	// modulo 2^128 and must only be combined with the Wrapping ops.
	FeeGrowth = Decimal[FeeGrowthSpec]

	// SecondsPerLiquidity is a time-per-unit-of-liquidity accumulator.
	SecondsPerLiquidity = Decimal[SecondsPerLiquiditySpec]
)

// NewPercentage returns a Percentage with raw integer v.
func NewPercentage(raw uint64) Percentage { return New[PercentageSpec](raw) }

// NewTokenAmount returns a TokenAmount of v units.
func NewTokenAmount(v uint64) TokenAmount { return New[TokenAmountSpec](v) }

// NewLiquidity returns a Liquidity with raw integer v.
func NewLiquidity(raw uint64) Liquidity { return New[LiquiditySpec](raw) }

// NewSqrtPrice returns a SqrtPrice with raw integer v.
func NewSqrtPrice(raw uint64) SqrtPrice { return New[SqrtPriceSpec](raw) }

var feeGrowthDenominatorExp = FeeGrowthSpec{}.Scale() + LiquiditySpec{}.Scale()

// FeeGrowthFromFee returns the growth that distributes fee over l,
// rounding down.
func FeeGrowthFromFee(l Liquidity, fee TokenAmount) (FeeGrowth, error) {
	r, err := wide.CheckedWideOp(wide.W128, wide.W512, func(w wide.Width) (wide.Uint, error) {
		f, err := fee.ToWide(w)
		if err != nil {
			return wide.Uint{}, err
		}
		liq, err := l.ToWide(w)
		if err != nil {
			return wide.Uint{}, err
		}
		scale, err := wide.Pow10(w, uint(feeGrowthDenominatorExp))
		if err != nil {
			return wide.Uint{}, err
		}
		return wide.MulDiv(w, f, scale, liq, false)
	})
	if err != nil {
		return FeeGrowth{}, err
	}
	return FromWide[FeeGrowthSpec](r)
}

// FeeGrowthToFee returns the amount earned by l over growth g,
// rounding down.
func FeeGrowthToFee(g FeeGrowth, l Liquidity) (TokenAmount, error) {
	r, err := wide.CheckedWideOp(wide.W256, wide.W512, func(w wide.Width) (wide.Uint, error) {
		gw, err := g.ToWide(w)
		if err != nil {
			return wide.Uint{}, err
		}
		liq, err := l.ToWide(w)
		if err != nil {
			return wide.Uint{}, err
		}
		scale, err := wide.Pow10(w, uint(feeGrowthDenominatorExp))
		if err != nil {
			return wide.Uint{}, err
		}
		return wide.MulDiv(w, gw, liq, scale, false)
	})
	if err != nil {
		return TokenAmount{}, err
	}
	return FromWide[TokenAmountSpec](r)
}
