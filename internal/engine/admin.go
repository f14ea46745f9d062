package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
)

// AddFeeTier allows pools to be created with tier. Admin only.
func (s *State) AddFeeTier(caller common.Address, tier model.FeeTier) error {
	return s.apply(OpAddFeeTier, caller, func(*txn) error {
		if err := s.requireAdmin(caller); err != nil {
			return err
		}
		if _, err := model.NewFeeTier(tier.Fee, tier.TickSpacing); err != nil {
			return err
		}
		s.touchFeeTiers()
		return s.feeTiers.Add(tier)
	})
}

// RemoveFeeTier stops new pools from using tier. Existing pools keep
// trading. Admin only.
func (s *State) RemoveFeeTier(caller common.Address, tier model.FeeTier) error {
	return s.apply(OpRemoveFeeTier, caller, func(*txn) error {
		if err := s.requireAdmin(caller); err != nil {
			return err
		}
		s.touchFeeTiers()
		return s.feeTiers.Remove(tier)
	})
}

func (s *State) GetFeeTiers() []model.FeeTier { return s.feeTiers.All() }

func (s *State) FeeTierExists(tier model.FeeTier) bool { return s.feeTiers.Contains(tier) }

// ChangeProtocolFee sets the share of every future swap fee kept by the
// protocol. Admin only.
func (s *State) ChangeProtocolFee(caller common.Address, fee decimal.Percentage) error {
	return s.apply(OpChangeProtocolFee, caller, func(*txn) error {
		if err := s.requireAdmin(caller); err != nil {
			return err
		}
		if fee.Gt(model.MaxFee) {
			return fmt.Errorf("%w: protocol fee %s", model.ErrInvalidFee, fee)
		}
		s.touchConfig()
		s.config.ProtocolFee = fee
		return nil
	})
}

// ChangeFeeReceiver sets who may withdraw the protocol fee of a pool.
// Admin only.
func (s *State) ChangeFeeReceiver(caller common.Address, key model.PoolKey, receiver common.Address) error {
	return s.apply(OpChangeFeeReceiver, caller, func(*txn) error {
		if err := s.requireAdmin(caller); err != nil {
			return err
		}
		pool, err := s.pools.Get(key)
		if err != nil {
			return err
		}
		pool.FeeReceiver = receiver
		return s.savePool(key, pool)
	})
}

// WithdrawProtocolFee pays the pool's accrued protocol fee to its fee
// receiver, who must be the caller.
func (s *State) WithdrawProtocolFee(caller common.Address, key model.PoolKey) (x, y decimal.TokenAmount, err error) {
	err = s.apply(OpWithdrawProtocolFee, caller, func(tx *txn) error {
		pool, err := s.pools.Get(key)
		if err != nil {
			return err
		}
		if caller != pool.FeeReceiver {
			return fmt.Errorf("%w: %s", ErrNotFeeReceiver, caller.Hex())
		}
		x, y = pool.WithdrawProtocolFee()
		tx.credit(key.TokenX, x)
		tx.credit(key.TokenY, y)
		return s.savePool(key, pool)
	})
	if err != nil {
		return decimal.TokenAmount{}, decimal.TokenAmount{}, err
	}
	return x, y, nil
}
