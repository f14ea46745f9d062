package sqrtmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clamm-engine/internal/decimal"
)

func price(t *testing.T, raw string) decimal.SqrtPrice {
	t.Helper()
	p, err := decimal.Parse[decimal.SqrtPriceSpec](raw)
	require.NoError(t, err)
	return p
}

var (
	one = decimal.One[decimal.SqrtPriceSpec]()
	// liquidity 1,000,000
	l = decimal.NewLiquidity(1_000_000_000_000)
)

func TestDeltas(t *testing.T) {
	lower := price(t, "999000549780000000000000")  // tick -20
	upper := price(t, "1000500100010000000000000") // tick 10

	tests := []struct {
		name string
		fn   func(a, b decimal.SqrtPrice, l decimal.Liquidity, up bool) (decimal.TokenAmount, error)
		a, b decimal.SqrtPrice
		up   bool
		want uint64
	}{
		{"x up", DeltaX, one, upper, true, 500},
		{"x down", DeltaX, one, upper, false, 499},
		{"y up", DeltaY, lower, one, true, 1000},
		{"y down", DeltaY, lower, one, false, 999},
		{"x across lower half, up", DeltaX, lower, one, true, 1001},
		{"argument order does not matter", DeltaX, upper, one, true, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.a, tt.b, l, tt.up)
			require.NoError(t, err)
			assert.Equal(t, decimal.NewTokenAmount(tt.want), got)
		})
	}
}

func TestDeltas_RoundUpNeverBelowRoundDown(t *testing.T) {
	prices := []string{
		"15258932000000000000",
		"999000549780000000000000",
		"1000000000000000000000000",
		"1000500100010000000000000",
		"65535383934512647000000000000",
	}
	liquidities := []uint64{1, 999_999, 1_000_000_000_000, 123_456_789_123_456_789}
	for _, a := range prices {
		for _, b := range prices {
			for _, raw := range liquidities {
				liq := decimal.NewLiquidity(raw)
				for _, fn := range []func(a, b decimal.SqrtPrice, l decimal.Liquidity, up bool) (decimal.TokenAmount, error){DeltaX, DeltaY} {
					down, err := fn(price(t, a), price(t, b), liq, false)
					require.NoError(t, err)
					up, err := fn(price(t, a), price(t, b), liq, true)
					require.NoError(t, err)
					assert.True(t, up.Gte(down))
					assert.True(t, up.Sub(down).Lte(decimal.NewTokenAmount(1)))
				}
			}
		}
	}
}

func TestDeltas_ZeroLiquidity(t *testing.T) {
	x, err := DeltaX(one, price(t, "2000000000000000000000000"), decimal.Liquidity{}, true)
	require.NoError(t, err)
	assert.True(t, x.IsZero())
}

func TestNextSqrtPriceFromInput(t *testing.T) {
	next, err := NextSqrtPriceFromInput(one, l, decimal.NewTokenAmount(994), true)
	require.NoError(t, err)
	assert.Equal(t, "999006987054867461743028", next.RawString())

	next, err = NextSqrtPriceFromInput(one, l, decimal.NewTokenAmount(994), false)
	require.NoError(t, err)
	assert.Equal(t, "1000994000000000000000000", next.RawString())

	deep, err := decimal.Parse[decimal.LiquiditySpec]("1000000000000000000000000000000")
	require.NoError(t, err)
	next, err = NextSqrtPriceFromInput(one, deep, decimal.NewTokenAmount(1_000_000_000), true)
	require.NoError(t, err)
	assert.Equal(t, "999999999999999000000001", next.RawString())

	next, err = NextSqrtPriceFromOutput(one, deep, decimal.NewTokenAmount(1_000_000_000), false)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000001000000001", next.RawString())
}

func TestNextSqrtPriceFromOutput(t *testing.T) {
	next, err := NextSqrtPriceFromOutput(one, l, decimal.NewTokenAmount(100), true)
	require.NoError(t, err)
	assert.Equal(t, "999900000000000000000000", next.RawString())

	next, err = NextSqrtPriceFromOutput(one, l, decimal.NewTokenAmount(100), false)
	require.NoError(t, err)
	assert.Equal(t, "1000100010001000100010002", next.RawString())

	_, err = NextSqrtPriceFromOutput(one, l, decimal.NewTokenAmount(10_000_000), false)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = NextSqrtPriceFromOutput(one, l, decimal.NewTokenAmount(10_000_000), true)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestNextSqrtPrice_ZeroAmountIsIdentity(t *testing.T) {
	next, err := NextSqrtPriceFromInput(one, l, decimal.TokenAmount{}, true)
	require.NoError(t, err)
	assert.Equal(t, one, next)
	next, err = NextSqrtPriceFromOutput(one, l, decimal.TokenAmount{}, false)
	require.NoError(t, err)
	assert.Equal(t, one, next)
}
