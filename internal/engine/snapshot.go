package engine

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/atmx/clamm-engine/internal/collections"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/tickmap"
)

// Snapshot is the whole market state. Pools are in enumeration order;
// ticks and owners are sorted so equal states give equal snapshots.
type Snapshot struct {
	Config    Config           `json:"config"`
	FeeTiers  []model.FeeTier  `json:"fee_tiers"`
	Pools     []PoolState      `json:"pools"`
	Ticks     []TickState      `json:"ticks"`
	Positions []OwnerPositions `json:"positions"`
}

func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Config:   s.config,
		FeeTiers: s.feeTiers.All(),
	}
	snap.Pools, _ = s.GetPools(0, s.poolKeys.Count())

	s.ticks.Each(func(key model.PoolKey, tick model.Tick) {
		snap.Ticks = append(snap.Ticks, TickState{Key: key, Index: tick.Index, Tick: tick})
	})
	slices.SortFunc(snap.Ticks, func(a, b TickState) int {
		return cmp.Or(cmp.Compare(a.Key.String(), b.Key.String()), cmp.Compare(a.Index, b.Index))
	})

	for _, owner := range s.positions.Owners() {
		snap.Positions = append(snap.Positions, OwnerPositions{Owner: owner, Positions: s.positions.List(owner)})
	}
	slices.SortFunc(snap.Positions, func(a, b OwnerPositions) int {
		return bytes.Compare(a.Owner.Bytes(), b.Owner.Bytes())
	})
	return snap
}

// Restore replaces the whole state with snap, rebuilding the tickmap from
// its ticks. On error the state is left as it was.
func (s *State) Restore(snap Snapshot) error {
	if s.tx != nil {
		return fmt.Errorf("engine: restore while %s is running", s.tx.op)
	}
	if snap.Config.ProtocolFee.Gt(model.MaxFee) {
		return fmt.Errorf("restore: %w: protocol fee %s", model.ErrInvalidFee, snap.Config.ProtocolFee)
	}

	var tiers collections.FeeTiers
	for _, t := range snap.FeeTiers {
		if err := tiers.Add(t); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	keys := collections.NewPoolKeys()
	pools := collections.NewPools()
	for _, p := range snap.Pools {
		if err := errors.Join(pools.Add(p.Key, p.Pool), keys.Add(p.Key)); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	ticks := collections.NewTicks()
	tm := tickmap.New()
	for _, t := range snap.Ticks {
		if !keys.Contains(t.Key) {
			return fmt.Errorf("restore: tick %d: %w: %s", t.Index, collections.ErrPoolNotFound, t.Key)
		}
		if err := ticks.Add(t.Key, t.Tick); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if err := tm.Flip(true, t.Tick.Index, t.Key.FeeTier.TickSpacing, t.Key); err != nil {
			return fmt.Errorf("restore: tick %d: %w", t.Tick.Index, err)
		}
	}
	positions := collections.NewPositions()
	for _, o := range snap.Positions {
		positions.Replace(o.Owner, o.Positions)
	}

	s.config = snap.Config
	s.feeTiers = tiers
	s.poolKeys = keys
	s.pools = pools
	s.ticks = ticks
	s.tickmap = tm
	s.positions = positions
	return nil
}
