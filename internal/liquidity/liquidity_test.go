package liquidity

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

var (
	one = decimal.One[decimal.SqrtPriceSpec]()
	// 1,000,000 units of liquidity
	million = decimal.NewLiquidity(1_000_000_000_000)
)

func amount(v uint64) decimal.TokenAmount { return decimal.NewTokenAmount(v) }

func TestAmountDelta(t *testing.T) {
	tests := []struct {
		name         string
		currentTick  int32
		lower, upper int32
		add          bool
		x, y         uint64
		active       bool
	}{
		{"inside, deposit", 0, -20, 10, true, 500, 1000, true},
		{"inside, withdraw", 0, -20, 10, false, 499, 999, true},
		{"below range holds only x", 0, 10, 20, true, 500, 0, false},
		{"above range holds only y", 0, -20, -10, true, 0, 500, false},
		{"upper boundary is inactive", 10, -20, 10, true, 0, 1500, false},
		{"lower boundary is active", -20, -20, 10, true, 1501, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := tickmath.SqrtPriceAt(tt.currentTick)
			require.NoError(t, err)
			x, y, active, err := AmountDelta(tt.currentTick, price, million, tt.add, tt.upper, tt.lower)
			require.NoError(t, err)
			assert.Equal(t, amount(tt.x), x, "x")
			assert.Equal(t, amount(tt.y), y, "y")
			assert.Equal(t, tt.active, active)
		})
	}

	_, _, _, err := AmountDelta(0, one, million, true, -20, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestByX(t *testing.T) {
	r, err := ByX(amount(500), -20, 10, one, true)
	require.NoError(t, err)
	assert.Equal(t, "1000300019999", r.L.RawString())
	assert.Equal(t, amount(1000), r.Amount)

	r, err = ByX(amount(500), -20, 10, one, false)
	require.NoError(t, err)
	assert.Equal(t, amount(999), r.Amount)

	below, err := tickmath.SqrtPriceAt(-30)
	require.NoError(t, err)
	r, err = ByX(amount(500), -20, 10, below, true)
	require.NoError(t, err)
	assert.Equal(t, "333266645547", r.L.RawString())
	assert.True(t, r.Amount.IsZero())

	_, err = ByX(amount(500), -20, 0, one, true)
	assert.ErrorIs(t, err, ErrPriceAboveRange)
}

func TestByY(t *testing.T) {
	r, err := ByY(amount(1000), -20, 10, one, true)
	require.NoError(t, err)
	assert.Equal(t, "1000550082424", r.L.RawString())
	assert.Equal(t, amount(501), r.Amount)

	above, err := tickmath.SqrtPriceAt(20)
	require.NoError(t, err)
	r, err = ByY(amount(1000), -20, 10, above, true)
	require.NoError(t, err)
	assert.Equal(t, "666866624401", r.L.RawString())
	assert.True(t, r.Amount.IsZero())

	_, err = ByY(amount(1000), 0, 10, one, true)
	assert.ErrorIs(t, err, ErrPriceBelowRange)
}

func TestByXY_TakesTheBindingSide(t *testing.T) {
	r, err := ByXY(amount(500), amount(1000), -20, 10, one, true)
	require.NoError(t, err)
	assert.Equal(t, "1000300019999", r.L.RawString())
	assert.Equal(t, amount(500), r.X)
	assert.Equal(t, amount(1000), r.Y)

	// short on y: liquidity is bounded by the y side instead
	r, err = ByXY(amount(500), amount(900), -20, 10, one, true)
	require.NoError(t, err)
	assert.Equal(t, amount(900), r.Y)
	assert.True(t, r.X.Lte(amount(500)))
	assert.True(t, r.L.Lt(decimal.NewLiquidity(1_000_300_019_999)))
}

func TestMaxLiquidityPerTick(t *testing.T) {
	want, ok := new(big.Int).SetString("2610105025298473850361133940641703849001870582819930213003123864660034930", 10)
	require.True(t, ok)
	assert.Equal(t, want, MaxLiquidityPerTick(10).Big())
	assert.True(t, MaxLiquidityPerTick(1).Lt(MaxLiquidityPerTick(100)))
}

func TestFeeGrowthInside(t *testing.T) {
	g := decimal.New[decimal.FeeGrowthSpec]
	lower := Outside{Index: -20, FeeGrowthX: g(10), FeeGrowthY: g(3)}
	upper := Outside{Index: 10, FeeGrowthX: g(4), FeeGrowthY: g(1)}

	// current inside: inside = global - lower - upper
	x, y := FeeGrowthInside(lower, upper, 0, g(100), g(50))
	assert.Equal(t, g(86), x)
	assert.Equal(t, g(46), y)

	// current above upper: above = global - upper
	x, _ = FeeGrowthInside(lower, upper, 10, g(100), g(50))
	assert.Equal(t, g(0).WrappingSub(g(6)), x)

	// current below lower: below = global - lower
	x, _ = FeeGrowthInside(lower, upper, -21, g(100), g(50))
	assert.Equal(t, g(10-4), x)
}

func TestFeeGrowthInside_Wraps(t *testing.T) {
	g := decimal.New[decimal.FeeGrowthSpec]
	lower := Outside{Index: -20, FeeGrowthX: g(10)}
	upper := Outside{Index: 10}

	x, _ := FeeGrowthInside(lower, upper, 0, g(5), decimal.FeeGrowth{})
	want := new(big.Int).Lsh(big.NewInt(1), 128)
	want.Sub(want, big.NewInt(5))
	assert.Equal(t, want, x.Big())

	// the wrapped value still yields the right difference once global grows
	later, _ := FeeGrowthInside(lower, upper, 0, g(25), decimal.FeeGrowth{})
	assert.Equal(t, g(20), later.WrappingSub(x))
}

func TestSecondsPerLiquidity(t *testing.T) {
	got, err := SecondsPerLiquidityGlobal(million, 110, 100)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", got.RawString())

	_, err = SecondsPerLiquidityGlobal(million, 100, 100)
	assert.ErrorIs(t, err, ErrTimestampNotIncreasing)
	_, err = SecondsPerLiquidityGlobal(million, 99, 100)
	assert.ErrorIs(t, err, ErrTimestampNotIncreasing)
	_, err = SecondsPerLiquidityGlobal(decimal.Liquidity{}, 110, 100)
	assert.ErrorIs(t, err, decimal.ErrDivisionByZero)

	s := decimal.New[decimal.SecondsPerLiquiditySpec]
	lower := Outside{Index: -20, SecondsPerLiquidity: s(7)}
	upper := Outside{Index: 10, SecondsPerLiquidity: s(2)}
	assert.Equal(t, s(21), SecondsPerLiquidityInside(lower, upper, 0, s(30)))
}
