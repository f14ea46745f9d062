// Package exchange hosts the engine behind an HTTP API: it serializes
// every engine call, persists each committed change set, and pushes the
// changes to websocket clients.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/ledger"
	"github.com/atmx/clamm-engine/internal/metrics"
	"github.com/atmx/clamm-engine/internal/store"
)

// Service owns the engine state. Every engine call, read or write, runs
// under mu: the engine itself is not safe for concurrent use.
type Service struct {
	mu             sync.Mutex
	state          *engine.State
	book           *ledger.Book
	store          store.Store
	hub            *Hub // optional
	log            *zap.Logger
	persistTimeout time.Duration
}

// NewService wires the engine to the store and the hub. Pass nil for hub
// if websocket broadcasting is not needed.
func NewService(state *engine.State, book *ledger.Book, st store.Store, hub *Hub, log *zap.Logger) *Service {
	s := &Service{
		state:          state,
		book:           book,
		store:          st,
		hub:            hub,
		log:            log,
		persistTimeout: 5 * time.Second,
	}
	state.OnCommit(s.onCommit)
	return s
}

// Load restores the engine and the balance book from the store. The admin
// always comes from the running configuration; the protocol fee comes
// from the store once it has been changed through the API.
func (s *Service) Load(ctx context.Context) error {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	balances, err := s.store.LoadBalances(ctx)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.Snapshot().Config
	if snap.Config == (engine.Config{}) {
		snap.Config = current
	}
	snap.Config.Admin = current.Admin
	if err := s.state.Restore(snap); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	s.book.Load(balances)

	s.log.Info("state restored",
		zap.Int("pools", len(snap.Pools)),
		zap.Int("ticks", len(snap.Ticks)),
		zap.Int("owners", len(snap.Positions)),
		zap.Int("accounts", len(balances)),
	)
	return nil
}

// exec runs one engine call under the service lock.
func (s *Service) exec(op engine.Op, fn func() error) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn()
	metrics.OpLatency.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OpRejections.WithLabelValues(string(op), reason(err)).Inc()
	}
	return err
}

// read runs fn under the service lock.
func (s *Service) read(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// onCommit runs inside the committing engine call, after the bank settled.
// The engine change is final by then, so failures to persist are logged
// and counted rather than returned.
func (s *Service) onCommit(cs engine.ChangeSet) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	metrics.OpsTotal.WithLabelValues(string(cs.Op)).Inc()
	log := s.log.With(zap.String("op", string(cs.Op)), zap.String("caller", cs.Caller.Hex()))

	if err := s.store.ApplyChangeSet(ctx, cs); err != nil {
		metrics.PersistFailures.WithLabelValues("change_set").Inc()
		log.Error("persist change set failed", zap.Error(err))
	}
	receipts := store.ReceiptsFromChangeSet(cs)
	if err := s.store.InsertSwapReceipts(ctx, receipts); err != nil {
		metrics.PersistFailures.WithLabelValues("receipts").Inc()
		log.Error("persist swap receipts failed", zap.Error(err))
	}
	if len(cs.Debits) > 0 || len(cs.Credits) > 0 {
		s.saveBalances(ctx, cs.Caller)
		s.saveBalances(ctx, s.book.Vault())
	}

	for _, sw := range cs.Swaps {
		metrics.SwapsTotal.WithLabelValues(direction(sw.XToY)).Inc()
		metrics.TicksCrossed.Observe(float64(len(sw.CrossedTicks)))
		log.Info("swap executed",
			zap.String("pool", sw.PoolKey.String()),
			zap.Bool("x_to_y", sw.XToY),
			zap.String("amount_in", sw.AmountIn.RawString()),
			zap.String("amount_out", sw.AmountOut.RawString()),
			zap.String("fee", sw.Fee.RawString()),
			zap.Int32s("crossed_ticks", sw.CrossedTicks),
		)
	}
	if len(cs.Swaps) == 0 {
		log.Info("operation committed",
			zap.Int("pools", len(cs.Pools)),
			zap.Int("ticks", len(cs.Ticks)),
			zap.Int("owners", len(cs.Positions)),
		)
	}

	if s.hub == nil {
		return
	}
	for _, r := range receipts {
		sw := cs.Swaps[r.Hop]
		s.hub.Broadcast(Message{
			Type:      MsgSwapExecuted,
			EventID:   r.ID,
			Op:        cs.Op,
			Caller:    cs.Caller,
			PoolKey:   sw.PoolKey.String(),
			Price:     price(sw.EndPrice),
			Swap:      &sw,
			Timestamp: cs.Timestamp,
		})
	}
	for _, ps := range cs.Pools {
		pool := ps.Pool
		s.hub.Broadcast(Message{
			Type:      MsgPoolUpdated,
			EventID:   uuid.New().String(),
			Op:        cs.Op,
			Caller:    cs.Caller,
			PoolKey:   ps.Key.String(),
			Pool:      &pool,
			Price:     price(pool.SqrtPrice),
			Timestamp: cs.Timestamp,
		})
	}
	for _, op := range cs.Positions {
		owner := op.Owner
		s.hub.Broadcast(Message{
			Type:      MsgPositionsChanged,
			EventID:   uuid.New().String(),
			Op:        cs.Op,
			Caller:    cs.Caller,
			Owner:     &owner,
			Positions: len(op.Positions),
			Timestamp: cs.Timestamp,
		})
	}
}

func (s *Service) saveBalances(ctx context.Context, account common.Address) {
	if err := s.store.SaveBalances(ctx, account, s.book.Balances(account)); err != nil {
		metrics.PersistFailures.WithLabelValues("balances").Inc()
		s.log.Error("persist balances failed", zap.String("account", account.Hex()), zap.Error(err))
	}
}

// RefreshGauges publishes pool gauges. Run on a schedule.
func (s *Service) RefreshGauges() {
	var pools []engine.PoolState
	var count uint16
	s.read(func() { pools, count = s.state.GetPools(0, math.MaxUint16) })

	metrics.Pools.Set(float64(count))
	for _, p := range pools {
		label := p.Key.String()
		metrics.PoolLiquidity.WithLabelValues(label).Set(p.Pool.Liquidity.Human().InexactFloat64())
		metrics.PoolTick.WithLabelValues(label).Set(float64(p.Pool.CurrentTickIndex))
	}
}

func direction(xToY bool) string {
	if xToY {
		return "x_to_y"
	}
	return "y_to_x"
}

// price is the human-readable price of token X in token Y.
func price(sqrt decimal.SqrtPrice) string {
	h := sqrt.Human()
	return h.Mul(h).Round(int32(sqrt.Scale())).String()
}

// reason names the class of an engine error for metrics labels.
func reason(err error) string {
	for _, c := range errorClasses {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.reason
			}
		}
	}
	return "internal"
}
