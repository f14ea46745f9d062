package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/collections"
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
)

// CreatePool opens the pool of tokenA and tokenB under tier at
// initSqrtPrice, which must lie on initTick. The admin receives its
// protocol fee until changed.
func (s *State) CreatePool(caller, tokenA, tokenB common.Address, tier model.FeeTier, initSqrtPrice decimal.SqrtPrice, initTick int32) (model.PoolKey, error) {
	var key model.PoolKey
	err := s.apply(OpCreatePool, caller, func(tx *txn) error {
		if !s.feeTiers.Contains(tier) {
			return fmt.Errorf("%w: %s", collections.ErrFeeTierNotFound, tier)
		}
		k, err := model.NewPoolKey(tokenA, tokenB, tier)
		if err != nil {
			return err
		}
		if _, err := s.pools.Get(k); err == nil {
			return fmt.Errorf("%w: %s", collections.ErrPoolAlreadyExist, k)
		}
		pool, err := model.NewPool(initSqrtPrice, initTick, tx.now, tier.TickSpacing, s.config.Admin)
		if err != nil {
			return err
		}
		key = k
		return s.createPool(k, pool)
	})
	if err != nil {
		return model.PoolKey{}, err
	}
	return key, nil
}

func (s *State) GetPool(key model.PoolKey) (model.Pool, error) {
	return s.pools.Get(key)
}

// GetPoolKeys pages through pool keys in enumeration order and reports
// how many exist.
func (s *State) GetPoolKeys(offset, size uint16) ([]model.PoolKey, uint16) {
	return s.poolKeys.Page(offset, size), s.poolKeys.Count()
}

// GetPools is GetPoolKeys with each pool attached.
func (s *State) GetPools(offset, size uint16) ([]PoolState, uint16) {
	keys, count := s.GetPoolKeys(offset, size)
	out := make([]PoolState, 0, len(keys))
	for _, k := range keys {
		pool, err := s.pools.Get(k)
		if err != nil {
			continue
		}
		out = append(out, PoolState{Key: k, Pool: pool})
	}
	return out, count
}

func (s *State) GetTick(key model.PoolKey, index int32) (model.Tick, error) {
	return s.ticks.Get(key, index)
}

func (s *State) IsTickInitialized(key model.PoolKey, index int32) bool {
	return s.tickmap.Get(index, key.FeeTier.TickSpacing, key)
}
