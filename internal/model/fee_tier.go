package model

import (
	"fmt"

	"github.com/atmx/clamm-engine/internal/decimal"
)

// FeeTier pairs a swap fee with the tick spacing pools using it must follow.
type FeeTier struct {
	Fee         decimal.Percentage `json:"fee"`
	TickSpacing uint16             `json:"tick_spacing"`
}

// NewFeeTier validates 0 < spacing <= 100 and fee <= 1.
func NewFeeTier(fee decimal.Percentage, spacing uint16) (FeeTier, error) {
	if spacing == 0 || spacing > MaxTickSpacing {
		return FeeTier{}, fmt.Errorf("%w: %d", ErrInvalidTickSpacing, spacing)
	}
	if fee.Gt(MaxFee) {
		return FeeTier{}, fmt.Errorf("%w: %s", ErrInvalidFee, fee)
	}
	return FeeTier{Fee: fee, TickSpacing: spacing}, nil
}

func (t FeeTier) String() string {
	return fmt.Sprintf("%s/%d", t.Fee.RawString(), t.TickSpacing)
}
