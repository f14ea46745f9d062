package store

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000ad000")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	tokenX = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenY = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tier   = model.FeeTier{Fee: decimal.NewPercentage(6_000_000_000), TickSpacing: 10}
)

// persisted builds an engine whose every commit is applied to a fresh
// memory store.
func persisted(t *testing.T) (*engine.State, *MemoryStore, *engine.FixedEnv) {
	t.Helper()
	st := NewMemoryStore()
	env := &engine.FixedEnv{Time: 1000, Block: 1}
	s, err := engine.New(
		engine.Config{Admin: admin, ProtocolFee: decimal.NewPercentage(10_000_000_000)},
		engine.WithEnv(env),
		engine.WithCommitHook(func(cs engine.ChangeSet) {
			require.NoError(t, st.ApplyChangeSet(context.Background(), cs))
			require.NoError(t, st.InsertSwapReceipts(context.Background(), ReceiptsFromChangeSet(cs)))
		}),
	)
	require.NoError(t, err)
	return s, st, env
}

func TestMemoryStore_SnapshotFollowsEngine(t *testing.T) {
	ctx := context.Background()
	s, st, env := persisted(t)

	require.NoError(t, s.AddFeeTier(admin, tier))
	key, err := s.CreatePool(admin, tokenX, tokenY, tier, decimal.One[decimal.SqrtPriceSpec](), 0)
	require.NoError(t, err)
	liq := decimal.NewLiquidity(1_000_000_000_000)
	for _, r := range [][2]int32{{-20, 10}, {-60, 60}, {-20, 20}} {
		_, err := s.CreatePosition(alice, key, r[0], r[1], liq, tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice)
		require.NoError(t, err)
	}
	env.Time += 5
	_, err = s.Swap(alice, engine.SwapParams{
		PoolKey: key, XToY: true, Amount: decimal.NewTokenAmount(2500), ByAmountIn: true,
		SqrtPriceLimit: tickmath.MinSqrtPrice,
	})
	require.NoError(t, err)
	_, err = s.RemovePosition(alice, 0)
	require.NoError(t, err)
	require.NoError(t, s.ChangeProtocolFee(admin, decimal.NewPercentage(0)))

	snap, err := st.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), snap)

	restored, err := engine.New(engine.Config{}, engine.WithEnv(env))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, s.Snapshot(), restored.Snapshot())
}

func TestMemoryStore_FeeTierListEmptied(t *testing.T) {
	ctx := context.Background()
	s, st, _ := persisted(t)

	require.NoError(t, s.AddFeeTier(admin, tier))
	require.NoError(t, s.RemoveFeeTier(admin, tier))

	snap, err := st.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.FeeTiers)
	assert.Equal(t, engine.Config{}, snap.Config, "config is only stored once changed")
}

func TestMemoryStore_Receipts(t *testing.T) {
	ctx := context.Background()
	s, st, _ := persisted(t)

	require.NoError(t, s.AddFeeTier(admin, tier))
	key, err := s.CreatePool(admin, tokenX, tokenY, tier, decimal.One[decimal.SqrtPriceSpec](), 0)
	require.NoError(t, err)
	_, err = s.CreatePosition(alice, key, -20, 20, decimal.NewLiquidity(1_000_000_000_000), tickmath.MinSqrtPrice, tickmath.MaxSqrtPrice)
	require.NoError(t, err)

	p := engine.SwapParams{
		PoolKey: key, XToY: true, Amount: decimal.NewTokenAmount(100), ByAmountIn: true,
		SqrtPriceLimit: tickmath.MinSqrtPrice,
	}
	_, err = s.Swap(alice, p)
	require.NoError(t, err)
	p.XToY, p.SqrtPriceLimit = false, tickmath.MaxSqrtPrice
	_, err = s.Swap(alice, p)
	require.NoError(t, err)

	byPool, err := st.ListSwapReceiptsByPool(ctx, key)
	require.NoError(t, err)
	require.Len(t, byPool, 2)
	assert.True(t, byPool[0].XToY)
	assert.False(t, byPool[1].XToY)
	assert.NotEqual(t, byPool[0].ID, byPool[1].ID)
	assert.Equal(t, engine.OpSwap, byPool[0].Op)
	assert.Equal(t, uint64(100), byPool[0].AmountIn.Uint64())
	assert.NotNil(t, byPool[0].CrossedTicks)

	byAccount, err := st.ListSwapReceiptsByAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, byPool, byAccount)

	none, err := st.ListSwapReceiptsByAccount(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_Balances(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	b := Balances{tokenX: decimal.NewTokenAmount(5)}
	require.NoError(t, st.SaveBalances(ctx, alice, b))
	b[tokenX] = decimal.NewTokenAmount(7)

	all, err := st.LoadBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), all[alice][tokenX].Uint64(), "store keeps its own copy")

	require.NoError(t, st.SaveBalances(ctx, alice, nil))
	all, err = st.LoadBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
