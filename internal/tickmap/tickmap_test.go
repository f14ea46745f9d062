package tickmap

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

func testKey(spacing uint16) model.PoolKey {
	return model.PoolKey{
		TokenX:  common.HexToAddress("0x01"),
		TokenY:  common.HexToAddress("0x02"),
		FeeTier: model.FeeTier{Fee: decimal.NewPercentage(6_000_000_000), TickSpacing: spacing},
	}
}

func TestFlipAndGet(t *testing.T) {
	m := New()
	key := testKey(10)

	assert.False(t, m.Get(20, 10, key))
	require.NoError(t, m.Flip(true, 20, 10, key))
	assert.True(t, m.Get(20, 10, key))
	assert.False(t, m.Get(10, 10, key))
	assert.False(t, m.Get(20, 10, testKey(20)), "pools do not share bits")

	assert.ErrorIs(t, m.Flip(true, 20, 10, key), ErrConflict)
	require.NoError(t, m.Flip(false, 20, 10, key))
	assert.False(t, m.Get(20, 10, key))
	assert.Empty(t, m.chunks, "empty chunks are dropped")
	assert.ErrorIs(t, m.Flip(false, 20, 10, key), ErrConflict)

	assert.ErrorIs(t, m.Flip(true, 25, 10, key), tickmath.ErrInvalidTickSpacing)
	assert.ErrorIs(t, m.Flip(true, tickmath.MaxTickFor(10)+10, 10, key), tickmath.ErrInvalidTickIndex)

	for _, tick := range []int32{tickmath.MinTickFor(10), tickmath.MaxTickFor(10)} {
		require.NoError(t, m.Flip(true, tick, 10, key))
		assert.True(t, m.Get(tick, 10, key))
	}
}

func TestNextInitialized(t *testing.T) {
	m := New()
	key := testKey(1)
	for _, tick := range []int32{-70, 5, 63, 64, 200} {
		require.NoError(t, m.Flip(true, tick, 1, key))
	}

	tests := []struct {
		from  int32
		want  int32
		found bool
	}{
		{-100, -70, true},
		{-70, 5, true}, // strictly above
		{5, 63, true},
		{63, 64, true},
		{64, 200, true},
		{200, 0, false},
		{-400, 0, false}, // -70 is beyond the search range
	}
	for _, tt := range tests {
		got, ok := m.NextInitialized(tt.from, 1, key)
		assert.Equal(t, tt.found, ok, "from %d", tt.from)
		if tt.found {
			assert.Equal(t, tt.want, got, "from %d", tt.from)
		}
	}

	_, ok := m.NextInitialized(tickmath.MaxTick, 1, key)
	assert.False(t, ok)
}

func TestPrevInitialized(t *testing.T) {
	m := New()
	key := testKey(10)
	for _, tick := range []int32{-650, -10, 0, 630, 640} {
		require.NoError(t, m.Flip(true, tick, 10, key))
	}

	tests := []struct {
		from  int32
		want  int32
		found bool
	}{
		{1000, 640, true},
		{640, 640, true}, // inclusive
		{630, 630, true},
		{620, 0, true},
		{-20, -650, true},
		{-660, 0, false},
		{3500, 0, false}, // 640 is beyond the search range
	}
	for _, tt := range tests {
		got, ok := m.PrevInitialized(tt.from, 10, key)
		assert.Equal(t, tt.found, ok, "from %d", tt.from)
		if tt.found {
			assert.Equal(t, tt.want, got, "from %d", tt.from)
		}
	}
}

func TestSearchLimit(t *testing.T) {
	assert.Equal(t, int32(2560), SearchLimit(0, 10, true))
	assert.Equal(t, int32(-2560), SearchLimit(0, 10, false))
	assert.Equal(t, tickmath.MaxTickFor(10), SearchLimit(221_000, 10, true))
	assert.Equal(t, tickmath.MinTickFor(10), SearchLimit(-221_000, 10, false))
	assert.Equal(t, tickmath.MaxTickFor(100), SearchLimit(tickmath.MaxTickFor(100), 100, true))
}

func TestMaxChunk(t *testing.T) {
	assert.Equal(t, uint16(6931), MaxChunk(1))
	assert.Equal(t, uint16(69), MaxChunk(100))
}

func TestCloserLimit(t *testing.T) {
	m := New()
	key := testKey(10)
	require.NoError(t, m.Flip(true, -20, 10, key))
	require.NoError(t, m.Flip(true, 10, 10, key))

	at := func(tick int32) decimal.SqrtPrice {
		p, err := tickmath.SqrtPriceAt(tick)
		require.NoError(t, err)
		return p
	}

	t.Run("initialized tick is closer", func(t *testing.T) {
		price, b, err := m.CloserLimit(tickmath.MinSqrtPrice, true, 0, 10, key)
		require.NoError(t, err)
		assert.Equal(t, at(-20), price)
		assert.Equal(t, &model.Boundary{Index: -20, Initialized: true}, b)

		price, b, err = m.CloserLimit(tickmath.MaxSqrtPrice, false, 0, 10, key)
		require.NoError(t, err)
		assert.Equal(t, at(10), price)
		assert.Equal(t, &model.Boundary{Index: 10, Initialized: true}, b)
	})

	t.Run("price limit is closer", func(t *testing.T) {
		limit := at(-10)
		price, b, err := m.CloserLimit(limit, true, 0, 10, key)
		require.NoError(t, err)
		assert.Equal(t, limit, price)
		assert.Nil(t, b)
	})

	t.Run("search window edge", func(t *testing.T) {
		price, b, err := m.CloserLimit(tickmath.MinSqrtPrice, true, -30, 10, key)
		require.NoError(t, err)
		assert.Equal(t, at(-2590), price)
		assert.Equal(t, &model.Boundary{Index: -2590, Initialized: false}, b)
	})

	t.Run("nowhere left to go", func(t *testing.T) {
		_, _, err := m.CloserLimit(tickmath.MinSqrtPrice, true, tickmath.MinTickFor(10), 10, key)
		assert.ErrorIs(t, err, ErrTickLimitReached)
		_, _, err = m.CloserLimit(tickmath.MaxSqrtPrice, false, tickmath.MaxTickFor(10), 10, key)
		assert.ErrorIs(t, err, ErrTickLimitReached)
	})
}
