package exchange

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/atmx/clamm-engine/internal/model"
)

// --- Request types ---
//
// Amounts, prices, fees and liquidity travel as raw base-10 integers in
// strings, the same form every response uses.

type FeeTierRequest struct {
	Fee         string `json:"fee" validate:"required,uint_string"`
	TickSpacing uint16 `json:"tick_spacing" validate:"required,max=100"`
}

type CreatePoolRequest struct {
	TokenA        string `json:"token_a" validate:"required,eth_addr"`
	TokenB        string `json:"token_b" validate:"required,eth_addr,nefield=TokenA"`
	Fee           string `json:"fee" validate:"required,uint_string"`
	TickSpacing   uint16 `json:"tick_spacing" validate:"required,max=100"`
	InitTick      int32  `json:"init_tick"`
	InitSqrtPrice string `json:"init_sqrt_price" validate:"omitempty,uint_string"` // defaults to the price of InitTick
}

type CreatePositionRequest struct {
	PoolKey       string `json:"pool_key" validate:"required,pool_key"`
	LowerTick     int32  `json:"lower_tick"`
	UpperTick     int32  `json:"upper_tick" validate:"gtfield=LowerTick"`
	Liquidity     string `json:"liquidity" validate:"required,uint_string"`
	SlippageLower string `json:"slippage_lower" validate:"omitempty,uint_string"`
	SlippageUpper string `json:"slippage_upper" validate:"omitempty,uint_string"`
}

type TransferPositionRequest struct {
	Receiver string `json:"receiver" validate:"required,eth_addr"`
}

type SwapRequest struct {
	PoolKey        string `json:"pool_key" validate:"required,pool_key"`
	XToY           bool   `json:"x_to_y"`
	Amount         string `json:"amount" validate:"required,uint_string"`
	ByAmountIn     bool   `json:"by_amount_in"`
	SqrtPriceLimit string `json:"sqrt_price_limit" validate:"omitempty,uint_string"` // defaults to the edge of the price range
}

type HopRequest struct {
	PoolKey string `json:"pool_key" validate:"required,pool_key"`
	XToY    bool   `json:"x_to_y"`
}

type RouteRequest struct {
	AmountIn          string       `json:"amount_in" validate:"required,uint_string"`
	ExpectedAmountOut string       `json:"expected_amount_out" validate:"omitempty,uint_string"`
	Slippage          string       `json:"slippage" validate:"omitempty,uint_string"`
	Hops              []HopRequest `json:"hops" validate:"required,min=1,max=8,dive"`
}

type ProtocolFeeRequest struct {
	Fee string `json:"fee" validate:"required,uint_string"`
}

type FeeReceiverRequest struct {
	Receiver string `json:"receiver" validate:"required,eth_addr"`
}

type TransferRequest struct {
	Token  string `json:"token" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,uint_string"`
}

var uintString = regexp.MustCompile(`^[0-9]{1,78}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("uint_string", func(fl validator.FieldLevel) bool {
		return uintString.MatchString(fl.Field().String())
	})
	v.RegisterValidation("pool_key", func(fl validator.FieldLevel) bool {
		_, err := model.ParsePoolKey(fl.Field().String())
		return err == nil
	})
	return v
}

// decode reads and validates a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
