// Package route validates multi-hop swap routes and enforces the minimum
// output a caller is willing to accept for one.
//
// A route is an ordered list of hops. Hop i swaps token X for Y when
// XToY is set (Y for X otherwise), and its output token must be the input
// token of hop i+1. Execution lives in the engine; this package only
// checks shape and slippage so the engine can fail before touching state.
package route

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
)

// MaxHops bounds the length of a route.
const MaxHops = 8

var (
	// ErrEmptyRoute is returned for a route without hops.
	ErrEmptyRoute = errors.New("route: no hops")

	// ErrTooManyHops is returned for a route longer than MaxHops.
	ErrTooManyHops = errors.New("route: too many hops")

	// ErrBrokenChain is returned when a hop does not consume the token the
	// previous hop produced.
	ErrBrokenChain = errors.New("route: hop does not continue the previous one")

	// ErrInvalidSlippage is returned for a slippage above 100%.
	ErrInvalidSlippage = errors.New("route: slippage above 100%")

	// ErrAmountUnderMinimum is returned when the route produced less than
	// the slippage-adjusted expected output.
	ErrAmountUnderMinimum = errors.New("route: amount out below minimum")
)

// TokenIn returns the token hop h consumes.
func TokenIn(h model.SwapHop) common.Address {
	if h.XToY {
		return h.PoolKey.TokenX
	}
	return h.PoolKey.TokenY
}

// TokenOut returns the token hop h produces.
func TokenOut(h model.SwapHop) common.Address {
	if h.XToY {
		return h.PoolKey.TokenY
	}
	return h.PoolKey.TokenX
}

// Validate checks that hops is non-empty, at most MaxHops long, and that
// every hop continues the previous one.
func Validate(hops []model.SwapHop) error {
	if len(hops) == 0 {
		return ErrEmptyRoute
	}
	if len(hops) > MaxHops {
		return fmt.Errorf("%w: %d > %d", ErrTooManyHops, len(hops), MaxHops)
	}
	for i := 1; i < len(hops); i++ {
		if TokenOut(hops[i-1]) != TokenIn(hops[i]) {
			return fmt.Errorf("%w: hop %d takes %s, previous gives %s",
				ErrBrokenChain, i, TokenIn(hops[i]).Hex(), TokenOut(hops[i-1]).Hex())
		}
	}
	return nil
}

// Path lists the tokens a route passes through, input first.
func Path(hops []model.SwapHop) []common.Address {
	if len(hops) == 0 {
		return nil
	}
	path := make([]common.Address, 0, len(hops)+1)
	path = append(path, TokenIn(hops[0]))
	for _, h := range hops {
		path = append(path, TokenOut(h))
	}
	return path
}

// MinAmountOut returns expected*(1-slippage), rounded up.
func MinAmountOut(expected decimal.TokenAmount, slippage decimal.Percentage) (decimal.TokenAmount, error) {
	one := decimal.One[decimal.PercentageSpec]()
	if slippage.Gt(one) {
		return decimal.TokenAmount{}, fmt.Errorf("%w: %s", ErrInvalidSlippage, slippage)
	}
	return decimal.BigMulUp(expected, one.Sub(slippage))
}

// Check returns ErrAmountUnderMinimum unless out meets the minimum for
// expected and slippage.
func Check(out, expected decimal.TokenAmount, slippage decimal.Percentage) error {
	lowest, err := MinAmountOut(expected, slippage)
	if err != nil {
		return err
	}
	if out.Lt(lowest) {
		return fmt.Errorf("%w: got %s, want at least %s", ErrAmountUnderMinimum, out, lowest)
	}
	return nil
}
