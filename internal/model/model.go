// Package model defines the core domain types shared across the engine:
// fee tiers, pool keys, pools, ticks and positions.
// All amounts are fixed-point decimals; nothing here uses float64.
package model

import (
	"errors"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

var (
	ErrInvalidTickSpacing = tickmath.ErrInvalidTickSpacing
	ErrInvalidFee         = errors.New("model: fee above 100%")
	ErrTokensAreSame      = errors.New("model: tokens are the same")
	ErrInvalidPoolKey     = errors.New("model: invalid pool key format")

	ErrInvalidInitTick      = errors.New("model: invalid init tick")
	ErrInvalidInitSqrtPrice = errors.New("model: invalid init sqrt price")

	ErrInvalidTickLiquidity  = errors.New("model: invalid tick liquidity")
	ErrEmptyPositionPokes    = errors.New("model: empty position pokes")
	ErrInsufficientLiquidity = errors.New("model: insufficient position liquidity")
	ErrPriceLimitReached     = errors.New("model: price limit reached")
	ErrTimestampInPast       = errors.New("model: timestamp before last update")
)

// SwapHop is one leg of a route: the pool and the direction to swap in.
type SwapHop struct {
	PoolKey PoolKey `json:"pool_key"`
	XToY    bool    `json:"x_to_y"`
}

// MaxFee is a fee of 100%.
var MaxFee = decimal.One[decimal.PercentageSpec]()

// MaxTickSpacing is the widest tick spacing a fee tier may use.
const MaxTickSpacing = 100
