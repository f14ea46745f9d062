package exchange

import (
	"errors"
	"net/http"

	"github.com/atmx/clamm-engine/internal/collections"
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/ledger"
	"github.com/atmx/clamm-engine/internal/liquidity"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/route"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

type errorClass struct {
	reason string
	status int
	errs   []error
}

// errorClasses maps engine errors to HTTP statuses. First match wins.
var errorClasses = []errorClass{
	{"forbidden", http.StatusForbidden, []error{
		engine.ErrNotAdmin,
		engine.ErrNotFeeReceiver,
	}},
	{"not_found", http.StatusNotFound, []error{
		collections.ErrFeeTierNotFound,
		collections.ErrPoolKeyNotFound,
		collections.ErrPoolNotFound,
		collections.ErrTickNotFound,
		collections.ErrPositionNotFound,
	}},
	{"conflict", http.StatusConflict, []error{
		collections.ErrFeeTierAlreadyExist,
		collections.ErrPoolKeyAlreadyExist,
		collections.ErrPoolAlreadyExist,
		collections.ErrTickAlreadyExist,
	}},
	{"unfillable", http.StatusUnprocessableEntity, []error{
		engine.ErrInsufficientLiquidity,
		engine.ErrNoGainSwap,
		engine.ErrMaxTickCrossReached,
		model.ErrPriceLimitReached,
		model.ErrInsufficientLiquidity,
		route.ErrAmountUnderMinimum,
		ledger.ErrInsufficientBalance,
		decimal.ErrOverflow,
		decimal.ErrUnderflow,
	}},
	{"invalid", http.StatusBadRequest, []error{
		engine.ErrAmountIsZero,
		engine.ErrZeroLiquidity,
		engine.ErrWrongLimit,
		engine.ErrInvalidTickRange,
		model.ErrInvalidFee,
		model.ErrInvalidTickSpacing,
		model.ErrTokensAreSame,
		model.ErrInvalidPoolKey,
		model.ErrInvalidInitTick,
		model.ErrInvalidInitSqrtPrice,
		model.ErrInvalidTickLiquidity,
		model.ErrEmptyPositionPokes,
		tickmath.ErrTickOutOfBounds,
		tickmath.ErrSqrtPriceOutOfBounds,
		tickmath.ErrInvalidTickIndex,
		liquidity.ErrInvalidRange,
		route.ErrEmptyRoute,
		route.ErrTooManyHops,
		route.ErrBrokenChain,
		route.ErrInvalidSlippage,
		ledger.ErrZeroAmount,
		decimal.ErrInvalidValue,
	}},
}

// statusOf returns the HTTP status for err.
func statusOf(err error) int {
	for _, c := range errorClasses {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.status
			}
		}
	}
	return http.StatusInternalServerError
}
