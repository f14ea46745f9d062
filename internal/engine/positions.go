package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/liquidity"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

// PositionChange reports a position operation: the position as it stands
// afterwards (or as it was when removed), its index, and the token amounts
// deposited or paid out.
type PositionChange struct {
	Index    uint32              `json:"index"`
	Position model.Position      `json:"position"`
	X        decimal.TokenAmount `json:"x"`
	Y        decimal.TokenAmount `json:"y"`
}

// PositionWithAssociates bundles a position with its pool and boundary
// ticks.
type PositionWithAssociates struct {
	Position  model.Position `json:"position"`
	Pool      model.Pool     `json:"pool"`
	LowerTick model.Tick     `json:"lower_tick"`
	UpperTick model.Tick     `json:"upper_tick"`
}

// tickOrNew returns the stored tick at index or a fresh one.
func (s *State) tickOrNew(key model.PoolKey, index int32, pool model.Pool, now uint64) (model.Tick, bool, error) {
	if tick, err := s.ticks.Get(key, index); err == nil {
		return tick, true, nil
	}
	tick, err := model.NewTick(index, pool, now)
	return tick, false, err
}

func (s *State) storeTick(key model.PoolKey, tick model.Tick, existed bool) error {
	if existed {
		return s.saveTick(key, tick)
	}
	return s.initTick(key, tick)
}

// CreatePosition opens a position of liquidityDelta over [lower, upper]
// for caller, who deposits the returned amounts. The call fails unless
// the pool price lies within [slippageLower, slippageUpper].
func (s *State) CreatePosition(caller common.Address, key model.PoolKey, lower, upper int32, liquidityDelta decimal.Liquidity, slippageLower, slippageUpper decimal.SqrtPrice) (PositionChange, error) {
	var out PositionChange
	err := s.apply(OpCreatePosition, caller, func(tx *txn) error {
		if liquidityDelta.IsZero() {
			return ErrZeroLiquidity
		}
		if lower >= upper {
			return fmt.Errorf("%w: [%d, %d]", ErrInvalidTickRange, lower, upper)
		}
		pool, err := s.pools.Get(key)
		if err != nil {
			return err
		}
		spacing := key.FeeTier.TickSpacing
		if err := tickmath.CheckTick(lower, spacing); err != nil {
			return err
		}
		if err := tickmath.CheckTick(upper, spacing); err != nil {
			return err
		}

		lowerTick, lowerExisted, err := s.tickOrNew(key, lower, pool, tx.now)
		if err != nil {
			return err
		}
		upperTick, upperExisted, err := s.tickOrNew(key, upper, pool, tx.now)
		if err != nil {
			return err
		}

		pos, x, y, err := model.NewPosition(&pool, key, &lowerTick, &upperTick, tx.now, liquidityDelta, slippageLower, slippageUpper, tx.block)
		if err != nil {
			return err
		}

		if err := s.savePool(key, pool); err != nil {
			return err
		}
		if err := s.storeTick(key, lowerTick, lowerExisted); err != nil {
			return err
		}
		if err := s.storeTick(key, upperTick, upperExisted); err != nil {
			return err
		}
		s.touchOwner(caller)
		index := s.positions.Len(caller)
		s.positions.Add(caller, pos)

		tx.debit(key.TokenX, x)
		tx.debit(key.TokenY, y)
		out = PositionChange{Index: index, Position: pos, X: x, Y: y}
		return nil
	})
	if err != nil {
		return PositionChange{}, err
	}
	return out, nil
}

// associates loads a position with its pool and boundary ticks.
func (s *State) associates(owner common.Address, index uint32) (PositionWithAssociates, error) {
	pos, err := s.positions.Get(owner, index)
	if err != nil {
		return PositionWithAssociates{}, err
	}
	pool, err := s.pools.Get(pos.PoolKey)
	if err != nil {
		return PositionWithAssociates{}, err
	}
	lower, err := s.ticks.Get(pos.PoolKey, pos.LowerTickIndex)
	if err != nil {
		return PositionWithAssociates{}, err
	}
	upper, err := s.ticks.Get(pos.PoolKey, pos.UpperTickIndex)
	if err != nil {
		return PositionWithAssociates{}, err
	}
	return PositionWithAssociates{Position: pos, Pool: pool, LowerTick: lower, UpperTick: upper}, nil
}

// RemovePosition closes the caller's position at index, paying out its
// liquidity and owed fees. Boundary ticks left without liquidity are
// deinitialized. The owner's last position takes over index.
func (s *State) RemovePosition(caller common.Address, index uint32) (PositionChange, error) {
	var out PositionChange
	err := s.apply(OpRemovePosition, caller, func(tx *txn) error {
		a, err := s.associates(caller, index)
		if err != nil {
			return err
		}
		key := a.Position.PoolKey
		removal, err := a.Position.Remove(&a.Pool, tx.now, &a.LowerTick, &a.UpperTick)
		if err != nil {
			return err
		}

		if err := s.savePool(key, a.Pool); err != nil {
			return err
		}
		for _, t := range []struct {
			tick   model.Tick
			deinit bool
		}{{a.LowerTick, removal.DeinitializeLower}, {a.UpperTick, removal.DeinitializeUpper}} {
			if t.deinit {
				err = s.deinitTick(key, t.tick.Index)
			} else {
				err = s.saveTick(key, t.tick)
			}
			if err != nil {
				return err
			}
		}

		s.touchOwner(caller)
		if _, err := s.positions.Remove(caller, index); err != nil {
			return err
		}

		tx.credit(key.TokenX, removal.X)
		tx.credit(key.TokenY, removal.Y)
		out = PositionChange{Index: index, Position: a.Position, X: removal.X, Y: removal.Y}
		return nil
	})
	if err != nil {
		return PositionChange{}, err
	}
	return out, nil
}

// TransferPosition hands the caller's position at index to receiver,
// where it is appended.
func (s *State) TransferPosition(caller common.Address, index uint32, receiver common.Address) error {
	return s.apply(OpTransferPosition, caller, func(*txn) error {
		s.touchOwner(caller)
		s.touchOwner(receiver)
		return s.positions.Transfer(caller, index, receiver)
	})
}

// ClaimFee pays out the fees the caller's position at index has earned.
func (s *State) ClaimFee(caller common.Address, index uint32) (PositionChange, error) {
	var out PositionChange
	err := s.apply(OpClaimFee, caller, func(tx *txn) error {
		a, err := s.associates(caller, index)
		if err != nil {
			return err
		}
		key := a.Position.PoolKey
		x, y, err := a.Position.ClaimFee(&a.Pool, &a.UpperTick, &a.LowerTick, tx.now)
		if err != nil {
			return err
		}
		if err := s.savePool(key, a.Pool); err != nil {
			return err
		}
		if err := s.saveTick(key, a.LowerTick); err != nil {
			return err
		}
		if err := s.saveTick(key, a.UpperTick); err != nil {
			return err
		}
		s.touchOwner(caller)
		if err := s.positions.Update(caller, index, a.Position); err != nil {
			return err
		}

		tx.credit(key.TokenX, x)
		tx.credit(key.TokenY, y)
		out = PositionChange{Index: index, Position: a.Position, X: x, Y: y}
		return nil
	})
	if err != nil {
		return PositionChange{}, err
	}
	return out, nil
}

func (s *State) GetPosition(owner common.Address, index uint32) (model.Position, error) {
	return s.positions.Get(owner, index)
}

// GetPositions pages through an owner's positions and reports how many
// the owner holds.
func (s *State) GetPositions(owner common.Address, offset, size uint32) ([]model.Position, uint32) {
	all := s.positions.List(owner)
	total := uint32(len(all))
	if offset >= total {
		return []model.Position{}, total
	}
	end := min(uint64(offset)+uint64(size), uint64(total))
	return all[offset:end], total
}

func (s *State) GetPositionWithAssociates(owner common.Address, index uint32) (PositionWithAssociates, error) {
	return s.associates(owner, index)
}

// SecondsPerLiquidityInside is the time-weighted accumulator inside
// [lower, upper], brought up to the current time without storing it.
func (s *State) SecondsPerLiquidityInside(key model.PoolKey, lower, upper int32) (decimal.SecondsPerLiquidity, error) {
	pool, err := s.pools.Get(key)
	if err != nil {
		return decimal.SecondsPerLiquidity{}, err
	}
	lt, err := s.ticks.Get(key, lower)
	if err != nil {
		return decimal.SecondsPerLiquidity{}, err
	}
	ut, err := s.ticks.Get(key, upper)
	if err != nil {
		return decimal.SecondsPerLiquidity{}, err
	}
	if err := pool.UpdateSecondsPerLiquidityGlobal(s.env.Now()); err != nil {
		return decimal.SecondsPerLiquidity{}, err
	}
	return liquidity.SecondsPerLiquidityInside(lt.Outside(), ut.Outside(), pool.CurrentTickIndex, pool.SecondsPerLiquidityGlobal), nil
}
