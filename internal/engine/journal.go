package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
)

// Op names a mutating entry point.
type Op string

const (
	OpAddFeeTier          Op = "add_fee_tier"
	OpRemoveFeeTier       Op = "remove_fee_tier"
	OpCreatePool          Op = "create_pool"
	OpCreatePosition      Op = "create_position"
	OpRemovePosition      Op = "remove_position"
	OpTransferPosition    Op = "transfer_position"
	OpSwap                Op = "swap"
	OpSwapRoute           Op = "swap_route"
	OpClaimFee            Op = "claim_fee"
	OpChangeProtocolFee   Op = "change_protocol_fee"
	OpChangeFeeReceiver   Op = "change_fee_receiver"
	OpWithdrawProtocolFee Op = "withdraw_protocol_fee"
)

// PoolState is a pool as of a commit.
type PoolState struct {
	Key  model.PoolKey `json:"key"`
	Pool model.Pool    `json:"pool"`
}

// TickState is a tick as of a commit. Removed ticks carry only Key and
// Index.
type TickState struct {
	Key     model.PoolKey `json:"key"`
	Index   int32         `json:"index"`
	Tick    model.Tick    `json:"tick"`
	Removed bool          `json:"removed"`
}

// OwnerPositions is the full position list of one owner as of a commit.
type OwnerPositions struct {
	Owner     common.Address   `json:"owner"`
	Positions []model.Position `json:"positions"`
}

// SwapEvent records one executed single-pool swap. Fee is SwapResult.Fee,
// boundary remainders included.
type SwapEvent struct {
	PoolKey      model.PoolKey       `json:"pool_key"`
	XToY         bool                `json:"x_to_y"`
	AmountIn     decimal.TokenAmount `json:"amount_in"`
	AmountOut    decimal.TokenAmount `json:"amount_out"`
	Fee          decimal.TokenAmount `json:"fee"`
	StartPrice   decimal.SqrtPrice   `json:"start_sqrt_price"`
	EndPrice     decimal.SqrtPrice   `json:"end_sqrt_price"`
	CrossedTicks []int32             `json:"crossed_ticks"`
}

// ChangeSet is everything one committed call changed. Touched objects are
// reported in full, in the order they were first touched.
type ChangeSet struct {
	Op        Op               `json:"op"`
	Caller    common.Address   `json:"caller"`
	Timestamp uint64           `json:"timestamp"`
	Block     uint64           `json:"block"`
	Config    *Config          `json:"config,omitempty"`
	FeeTiers  []model.FeeTier  `json:"fee_tiers,omitempty"`
	Pools     []PoolState      `json:"pools,omitempty"`
	Ticks     []TickState      `json:"ticks,omitempty"`
	Positions []OwnerPositions `json:"positions,omitempty"`
	Swaps     []SwapEvent      `json:"swaps,omitempty"`
	Debits    []Transfer       `json:"debits,omitempty"`
	Credits   []Transfer       `json:"credits,omitempty"`
}

type tickRef struct {
	key   model.PoolKey
	index int32
}

// txn is the undo journal of one call. Each object is snapshotted the
// first time it is touched; rollback replays the undo list backwards.
type txn struct {
	op     Op
	caller common.Address
	now    uint64
	block  uint64

	undo []func()

	pools      map[model.PoolKey]struct{}
	poolOrder  []model.PoolKey
	ticks      map[tickRef]struct{}
	tickOrder  []tickRef
	owners     map[common.Address]struct{}
	ownerOrder []common.Address
	feeTiers   bool
	config     bool

	swaps   []SwapEvent
	debits  []Transfer
	credits []Transfer
}

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *txn) debit(token common.Address, amount decimal.TokenAmount) {
	if !amount.IsZero() {
		tx.debits = append(tx.debits, Transfer{Token: token, Amount: amount})
	}
}

func (tx *txn) credit(token common.Address, amount decimal.TokenAmount) {
	if !amount.IsZero() {
		tx.credits = append(tx.credits, Transfer{Token: token, Amount: amount})
	}
}

// begin opens a journal. Entry points never nest, so a journal already
// open means a host called into the state concurrently or re-entrantly.
func (s *State) begin(op Op, caller common.Address) (*txn, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("engine: %s started while %s is running", op, s.tx.op)
	}
	s.tx = &txn{
		op:     op,
		caller: caller,
		now:    s.env.Now(),
		block:  s.env.BlockNumber(),
		pools:  make(map[model.PoolKey]struct{}),
		ticks:  make(map[tickRef]struct{}),
		owners: make(map[common.Address]struct{}),
	}
	return s.tx, nil
}

// run executes fn inside tx, rolling back on error or panic. With keep
// unset the journal is rolled back even on success.
func (s *State) run(tx *txn, keep bool, fn func(*txn) error) (err error) {
	defer func() {
		s.tx = nil
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil || !keep {
			tx.rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if keep && s.bank != nil && (len(tx.debits) > 0 || len(tx.credits) > 0) {
		if err = s.bank.Settle(tx.caller, tx.debits, tx.credits); err != nil {
			return fmt.Errorf("settle %s: %w", tx.op, err)
		}
	}
	return nil
}

// apply runs a mutating entry point and publishes its change set.
func (s *State) apply(op Op, caller common.Address, fn func(*txn) error) error {
	tx, err := s.begin(op, caller)
	if err != nil {
		return err
	}
	if err := s.run(tx, true, fn); err != nil {
		return err
	}
	if len(s.hooks) > 0 {
		cs := s.changeSet(tx)
		for _, h := range s.hooks {
			h(cs)
		}
	}
	return nil
}

// dryRun runs fn like apply would, then discards every change.
func (s *State) dryRun(op Op, caller common.Address, fn func(*txn) error) error {
	tx, err := s.begin(op, caller)
	if err != nil {
		return err
	}
	return s.run(tx, false, fn)
}

func (s *State) changeSet(tx *txn) ChangeSet {
	cs := ChangeSet{
		Op:        tx.op,
		Caller:    tx.caller,
		Timestamp: tx.now,
		Block:     tx.block,
		Swaps:     tx.swaps,
		Debits:    tx.debits,
		Credits:   tx.credits,
	}
	if tx.config {
		cfg := s.config
		cs.Config = &cfg
	}
	if tx.feeTiers {
		cs.FeeTiers = s.feeTiers.All()
	}
	for _, key := range tx.poolOrder {
		if pool, err := s.pools.Get(key); err == nil {
			cs.Pools = append(cs.Pools, PoolState{Key: key, Pool: pool})
		}
	}
	for _, ref := range tx.tickOrder {
		ts := TickState{Key: ref.key, Index: ref.index}
		if tick, err := s.ticks.Get(ref.key, ref.index); err == nil {
			ts.Tick = tick
		} else {
			ts.Removed = true
		}
		cs.Ticks = append(cs.Ticks, ts)
	}
	for _, owner := range tx.ownerOrder {
		cs.Positions = append(cs.Positions, OwnerPositions{Owner: owner, Positions: s.positions.List(owner)})
	}
	return cs
}

func (s *State) touchConfig() {
	tx := s.tx
	if tx.config {
		return
	}
	tx.config = true
	old := s.config
	tx.undo = append(tx.undo, func() { s.config = old })
}

func (s *State) touchFeeTiers() {
	tx := s.tx
	if tx.feeTiers {
		return
	}
	tx.feeTiers = true
	old := s.feeTiers.All()
	tx.undo = append(tx.undo, func() { s.feeTiers.Replace(old) })
}

func (s *State) touchPool(key model.PoolKey) {
	tx := s.tx
	if _, ok := tx.pools[key]; ok {
		return
	}
	tx.pools[key] = struct{}{}
	tx.poolOrder = append(tx.poolOrder, key)
	old, err := s.pools.Get(key)
	existed := err == nil
	tx.undo = append(tx.undo, func() {
		_ = s.pools.Remove(key)
		if existed {
			_ = s.pools.Add(key, old)
		}
	})
}

func (s *State) touchTick(key model.PoolKey, index int32) {
	tx := s.tx
	ref := tickRef{key, index}
	if _, ok := tx.ticks[ref]; ok {
		return
	}
	tx.ticks[ref] = struct{}{}
	tx.tickOrder = append(tx.tickOrder, ref)
	old, err := s.ticks.Get(key, index)
	existed := err == nil
	tx.undo = append(tx.undo, func() {
		_ = s.ticks.Remove(key, index)
		if existed {
			_ = s.ticks.Add(key, old)
		}
	})
}

func (s *State) touchOwner(owner common.Address) {
	tx := s.tx
	if _, ok := tx.owners[owner]; ok {
		return
	}
	tx.owners[owner] = struct{}{}
	tx.ownerOrder = append(tx.ownerOrder, owner)
	old := s.positions.List(owner)
	tx.undo = append(tx.undo, func() { s.positions.Replace(owner, old) })
}

// createPool stores a new pool and enumerates its key.
func (s *State) createPool(key model.PoolKey, pool model.Pool) error {
	s.touchPool(key)
	if err := s.pools.Add(key, pool); err != nil {
		return err
	}
	if err := s.poolKeys.Add(key); err != nil {
		return err
	}
	s.tx.undo = append(s.tx.undo, func() { _ = s.poolKeys.Remove(key) })
	return nil
}

func (s *State) savePool(key model.PoolKey, pool model.Pool) error {
	s.touchPool(key)
	return s.pools.Update(key, pool)
}

// initTick stores a new tick and marks it in the tickmap.
func (s *State) initTick(key model.PoolKey, tick model.Tick) error {
	s.touchTick(key, tick.Index)
	if err := s.ticks.Add(key, tick); err != nil {
		return err
	}
	return s.flip(true, tick.Index, key)
}

func (s *State) saveTick(key model.PoolKey, tick model.Tick) error {
	s.touchTick(key, tick.Index)
	return s.ticks.Update(key, tick)
}

// deinitTick removes a tick and clears it from the tickmap.
func (s *State) deinitTick(key model.PoolKey, index int32) error {
	s.touchTick(key, index)
	if err := s.ticks.Remove(key, index); err != nil {
		return err
	}
	return s.flip(false, index, key)
}

func (s *State) flip(value bool, index int32, key model.PoolKey) error {
	spacing := key.FeeTier.TickSpacing
	if err := s.tickmap.Flip(value, index, spacing, key); err != nil {
		return err
	}
	s.tx.undo = append(s.tx.undo, func() { _ = s.tickmap.Flip(!value, index, spacing, key) })
	return nil
}
