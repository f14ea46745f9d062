package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the receipt log. Inserts go to the primary store and
// invalidate the affected lists; reads check Redis first then fall back
// to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertSwapReceipts(ctx context.Context, receipts []SwapReceipt) error {
	if err := s.primary.InsertSwapReceipts(ctx, receipts); err != nil {
		return err
	}
	keys := make([]string, 0, 2*len(receipts))
	for _, r := range receipts {
		keys = append(keys, poolReceiptsKey(r.PoolKey), accountReceiptsKey(r.Caller))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListSwapReceiptsByPool(ctx context.Context, key model.PoolKey) ([]SwapReceipt, error) {
	return s.readThrough(ctx, poolReceiptsKey(key), func() ([]SwapReceipt, error) {
		return s.primary.ListSwapReceiptsByPool(ctx, key)
	})
}

func (s *CachedStore) ListSwapReceiptsByAccount(ctx context.Context, account common.Address) ([]SwapReceipt, error) {
	return s.readThrough(ctx, accountReceiptsKey(account), func() ([]SwapReceipt, error) {
		return s.primary.ListSwapReceiptsByAccount(ctx, account)
	})
}

func (s *CachedStore) readThrough(ctx context.Context, key string, load func() ([]SwapReceipt, error)) ([]SwapReceipt, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var receipts []SwapReceipt
		if json.Unmarshal(data, &receipts) == nil {
			return receipts, nil
		}
	}

	// Cache miss.
	receipts, err := load()
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(receipts); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return receipts, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ApplyChangeSet(ctx context.Context, cs engine.ChangeSet) error {
	return s.primary.ApplyChangeSet(ctx, cs)
}

func (s *CachedStore) LoadSnapshot(ctx context.Context) (engine.Snapshot, error) {
	return s.primary.LoadSnapshot(ctx)
}

func (s *CachedStore) SaveBalances(ctx context.Context, account common.Address, balances Balances) error {
	return s.primary.SaveBalances(ctx, account, balances)
}

func (s *CachedStore) LoadBalances(ctx context.Context) (map[common.Address]Balances, error) {
	return s.primary.LoadBalances(ctx)
}

// --- Cache helpers ---

func poolReceiptsKey(k model.PoolKey) string { return fmt.Sprintf("receipts:pool:%s", k.Hex()) }
func accountReceiptsKey(a common.Address) string { return fmt.Sprintf("receipts:account:%s", a.Hex()) }
