// Package tickmap tracks which ticks of each pool are initialized.
//
// Ticks are compressed by their spacing and offset so that the lowest
// usable tick of the spacing maps to bit zero; bits are stored in 64-bit
// chunks. Searches never look further than tickmath.TickSearchRange
// compressed ticks from their starting point, which bounds the work a
// single swap step can do.
package tickmap

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

// ChunkSize is the number of ticks stored per chunk.
const ChunkSize = 64

var (
	// ErrTickLimitReached is returned when a swap cannot move any further
	// because it is already at the last usable tick.
	ErrTickLimitReached = errors.New("tickmap: tick limit reached")

	// ErrConflict is returned when flipping a tick into the state it is
	// already in.
	ErrConflict = errors.New("tickmap: tick already in requested state")
)

// Tickmap is the initialized-tick bitmap of every pool.
type Tickmap struct {
	chunks map[model.PoolKey]map[uint16]uint64
}

func New() *Tickmap {
	return &Tickmap{chunks: make(map[model.PoolKey]map[uint16]uint64)}
}

// compress maps an aligned tick into its bitmap index.
func compress(tick int32, spacing uint16) int32 {
	return (tick + tickmath.MaxTickFor(spacing)) / int32(spacing)
}

func decompress(index int32, spacing uint16) int32 {
	return index*int32(spacing) - tickmath.MaxTickFor(spacing)
}

func split(index int32) (uint16, uint8) {
	return uint16(index / ChunkSize), uint8(index % ChunkSize)
}

// MaxChunk is the highest chunk index a spacing can use.
func MaxChunk(spacing uint16) uint16 {
	c, _ := split(compress(tickmath.MaxTickFor(spacing), spacing))
	return c
}

func (m *Tickmap) chunk(key model.PoolKey, c uint16) uint64 {
	return m.chunks[key][c]
}

// Get reports whether tick is initialized.
func (m *Tickmap) Get(tick int32, spacing uint16, key model.PoolKey) bool {
	if tickmath.CheckTick(tick, spacing) != nil {
		return false
	}
	c, b := split(compress(tick, spacing))
	return m.chunk(key, c)&(1<<b) != 0
}

// Flip sets tick to value. It fails when tick is unusable with spacing or
// already in that state.
func (m *Tickmap) Flip(value bool, tick int32, spacing uint16, key model.PoolKey) error {
	if err := tickmath.CheckTick(tick, spacing); err != nil {
		return err
	}
	if m.Get(tick, spacing, key) == value {
		return fmt.Errorf("%w: tick %d initialized=%t", ErrConflict, tick, value)
	}

	c, b := split(compress(tick, spacing))
	pool, ok := m.chunks[key]
	if !ok {
		pool = make(map[uint16]uint64)
		m.chunks[key] = pool
	}
	word := pool[c] ^ (1 << b)
	switch {
	case word != 0:
		pool[c] = word
	case len(pool) == 1:
		delete(m.chunks, key)
	default:
		delete(pool, c)
	}
	return nil
}

// SearchLimit is the furthest tick a single search from tick may reach.
func SearchLimit(tick int32, spacing uint16, up bool) int32 {
	s := int32(spacing)
	index := tick / s
	if up {
		return min(index+tickmath.TickSearchRange, tickmath.MaxTick/s) * s
	}
	return max(index-tickmath.TickSearchRange, -tickmath.MaxTick/s) * s
}

// NextInitialized returns the first initialized tick strictly above tick
// and within the search limit.
func (m *Tickmap) NextInitialized(tick int32, spacing uint16, key model.PoolKey) (int32, bool) {
	if tick+int32(spacing) > tickmath.MaxTickFor(spacing) {
		return 0, false
	}
	from := compress(tick+int32(spacing), spacing)
	to := compress(SearchLimit(tick, spacing, true), spacing)

	for i := from; i <= to; {
		c, b := split(i)
		if word := m.chunk(key, c) >> b; word != 0 {
			found := i + int32(bits.TrailingZeros64(word))
			if found > to {
				return 0, false
			}
			return decompress(found, spacing), true
		}
		i = (int32(c) + 1) * ChunkSize
	}
	return 0, false
}

// PrevInitialized returns the first initialized tick at or below tick and
// within the search limit.
func (m *Tickmap) PrevInitialized(tick int32, spacing uint16, key model.PoolKey) (int32, bool) {
	if tick < tickmath.MinTickFor(spacing) {
		return 0, false
	}
	from := compress(tick, spacing)
	to := compress(SearchLimit(tick, spacing, false), spacing)

	for i := from; i >= to; {
		c, b := split(i)
		if word := m.chunk(key, c) & (^uint64(0) >> (ChunkSize - 1 - b)); word != 0 {
			found := int32(c)*ChunkSize + int32(bits.Len64(word)) - 1
			if found < to {
				return 0, false
			}
			return decompress(found, spacing), true
		}
		i = int32(c)*ChunkSize - 1
	}
	return 0, false
}

// CloserLimit returns where the next swap step must stop: the nearest
// initialized tick in the swap direction, the edge of the search window,
// or sqrtPriceLimit, whichever comes first. The boundary is nil when the
// price limit is the closer one.
func (m *Tickmap) CloserLimit(sqrtPriceLimit decimal.SqrtPrice, xToY bool, current int32, spacing uint16, key model.PoolKey) (decimal.SqrtPrice, *model.Boundary, error) {
	var (
		index       int32
		initialized bool
	)
	if xToY {
		index, initialized = m.PrevInitialized(current, spacing, key)
	} else {
		index, initialized = m.NextInitialized(current, spacing, key)
	}
	if !initialized {
		index = SearchLimit(current, spacing, !xToY)
		if index == current {
			return decimal.SqrtPrice{}, nil, fmt.Errorf("%w: tick %d", ErrTickLimitReached, current)
		}
	}

	price, err := tickmath.SqrtPriceAt(index)
	if err != nil {
		return decimal.SqrtPrice{}, nil, err
	}
	if (xToY && price.Gt(sqrtPriceLimit)) || (!xToY && price.Lt(sqrtPriceLimit)) {
		return price, &model.Boundary{Index: index, Initialized: initialized}, nil
	}
	return sqrtPriceLimit, nil, nil
}

// Reset forgets every tick of key.
func (m *Tickmap) Reset(key model.PoolKey) {
	delete(m.chunks, key)
}
