package store

import (
	"bytes"
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/model"
)

type tickKey struct {
	pool  model.PoolKey
	index int32
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	config    *engine.Config
	feeTiers  []model.FeeTier
	pools     []engine.PoolState
	poolIndex map[model.PoolKey]int
	ticks     map[tickKey]model.Tick
	positions map[common.Address][]model.Position
	balances  map[common.Address]Balances
	receipts  []SwapReceipt
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		poolIndex: make(map[model.PoolKey]int),
		ticks:     make(map[tickKey]model.Tick),
		positions: make(map[common.Address][]model.Position),
		balances:  make(map[common.Address]Balances),
	}
}

func (s *MemoryStore) ApplyChangeSet(_ context.Context, cs engine.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Config != nil {
		cfg := *cs.Config
		s.config = &cfg
	}
	if replacesFeeTiers(cs.Op) {
		s.feeTiers = slices.Clone(cs.FeeTiers)
	}
	for _, p := range cs.Pools {
		if i, ok := s.poolIndex[p.Key]; ok {
			s.pools[i] = p
			continue
		}
		s.poolIndex[p.Key] = len(s.pools)
		s.pools = append(s.pools, p)
	}
	for _, t := range cs.Ticks {
		k := tickKey{t.Key, t.Index}
		if t.Removed {
			delete(s.ticks, k)
			continue
		}
		s.ticks[k] = t.Tick
	}
	for _, o := range cs.Positions {
		if len(o.Positions) == 0 {
			delete(s.positions, o.Owner)
			continue
		}
		s.positions[o.Owner] = slices.Clone(o.Positions)
	}
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context) (engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap engine.Snapshot
	if s.config != nil {
		snap.Config = *s.config
	}
	snap.FeeTiers = slices.Clone(s.feeTiers)
	snap.Pools = slices.Clone(s.pools)
	for k, t := range s.ticks {
		snap.Ticks = append(snap.Ticks, engine.TickState{Key: k.pool, Index: k.index, Tick: t})
	}
	slices.SortFunc(snap.Ticks, func(a, b engine.TickState) int {
		return cmp.Or(cmp.Compare(a.Key.String(), b.Key.String()), cmp.Compare(a.Index, b.Index))
	})
	for owner, list := range s.positions {
		snap.Positions = append(snap.Positions, engine.OwnerPositions{Owner: owner, Positions: slices.Clone(list)})
	}
	slices.SortFunc(snap.Positions, func(a, b engine.OwnerPositions) int {
		return bytes.Compare(a.Owner.Bytes(), b.Owner.Bytes())
	})
	return snap, nil
}

func (s *MemoryStore) SaveBalances(_ context.Context, account common.Address, balances Balances) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(balances) == 0 {
		delete(s.balances, account)
		return nil
	}
	s.balances[account] = maps.Clone(balances)
	return nil
}

func (s *MemoryStore) LoadBalances(_ context.Context) (map[common.Address]Balances, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[common.Address]Balances, len(s.balances))
	for account, b := range s.balances {
		out[account] = maps.Clone(b)
	}
	return out, nil
}

func (s *MemoryStore) InsertSwapReceipts(_ context.Context, receipts []SwapReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receipts = append(s.receipts, receipts...)
	return nil
}

func (s *MemoryStore) ListSwapReceiptsByPool(_ context.Context, key model.PoolKey) ([]SwapReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []SwapReceipt
	for _, r := range s.receipts {
		if r.PoolKey == key {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListSwapReceiptsByAccount(_ context.Context, account common.Address) ([]SwapReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []SwapReceipt
	for _, r := range s.receipts {
		if r.Caller == account {
			result = append(result, r)
		}
	}
	return result, nil
}
