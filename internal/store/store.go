// Package store persists committed engine state, account balances and the
// swap receipt log. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache for receipts), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/model"
)

// Balances maps token to amount for one account.
type Balances = map[common.Address]decimal.TokenAmount

// SwapReceipt is an immutable record of one executed hop.
type SwapReceipt struct {
	ID             string              `json:"id"`
	Op             engine.Op           `json:"op"`
	Caller         common.Address      `json:"caller"`
	Hop            int                 `json:"hop"`
	PoolKey        model.PoolKey       `json:"pool_key"`
	XToY           bool                `json:"x_to_y"`
	AmountIn       decimal.TokenAmount `json:"amount_in"`
	AmountOut      decimal.TokenAmount `json:"amount_out"`
	Fee            decimal.TokenAmount `json:"fee"`
	StartSqrtPrice decimal.SqrtPrice   `json:"start_sqrt_price"`
	EndSqrtPrice   decimal.SqrtPrice   `json:"end_sqrt_price"`
	CrossedTicks   []int32             `json:"crossed_ticks"`
	Timestamp      uint64              `json:"timestamp"`
	Block          uint64              `json:"block"`
	CreatedAt      time.Time           `json:"created_at"`
}

// ReceiptsFromChangeSet builds one receipt per swap in cs.
func ReceiptsFromChangeSet(cs engine.ChangeSet) []SwapReceipt {
	if len(cs.Swaps) == 0 {
		return nil
	}
	now := time.Now().UTC()
	out := make([]SwapReceipt, 0, len(cs.Swaps))
	for i, sw := range cs.Swaps {
		crossed := sw.CrossedTicks
		if crossed == nil {
			crossed = []int32{}
		}
		out = append(out, SwapReceipt{
			ID:             uuid.New().String(),
			Op:             cs.Op,
			Caller:         cs.Caller,
			Hop:            i,
			PoolKey:        sw.PoolKey,
			XToY:           sw.XToY,
			AmountIn:       sw.AmountIn,
			AmountOut:      sw.AmountOut,
			Fee:            sw.Fee,
			StartSqrtPrice: sw.StartPrice,
			EndSqrtPrice:   sw.EndPrice,
			CrossedTicks:   crossed,
			Timestamp:      cs.Timestamp,
			Block:          cs.Block,
			CreatedAt:      now,
		})
	}
	return out
}

// replacesFeeTiers reports whether a change set carries the full fee tier
// list. An emptied list and an untouched one look alike otherwise.
func replacesFeeTiers(op engine.Op) bool {
	return op == engine.OpAddFeeTier || op == engine.OpRemoveFeeTier
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Engine state ---

	// ApplyChangeSet persists everything one committed engine call
	// changed. It is all or nothing.
	ApplyChangeSet(ctx context.Context, cs engine.ChangeSet) error

	// LoadSnapshot rebuilds the engine state from storage. Config is the
	// zero value when no config was ever persisted.
	LoadSnapshot(ctx context.Context) (engine.Snapshot, error)

	// --- Balances ---

	// SaveBalances replaces every balance of account.
	SaveBalances(ctx context.Context, account common.Address, balances Balances) error

	// LoadBalances returns every stored balance by account.
	LoadBalances(ctx context.Context) (map[common.Address]Balances, error)

	// --- Immutable receipt log ---

	// InsertSwapReceipts appends receipts.
	InsertSwapReceipts(ctx context.Context, receipts []SwapReceipt) error

	// ListSwapReceiptsByPool returns the receipts of a pool, oldest first.
	ListSwapReceiptsByPool(ctx context.Context, key model.PoolKey) ([]SwapReceipt, error)

	// ListSwapReceiptsByAccount returns the receipts of a caller, oldest first.
	ListSwapReceiptsByAccount(ctx context.Context, account common.Address) ([]SwapReceipt, error)
}
