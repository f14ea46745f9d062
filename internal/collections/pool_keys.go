package collections

import (
	"fmt"
	"maps"

	"github.com/atmx/clamm-engine/internal/model"
)

// PoolKeys enumerates pool keys by a dense index in [0, Count()).
//
// Removing a key moves the last key into the freed index, so a key added
// after a removal takes index Count() like any other.
type PoolKeys struct {
	byKey   map[model.PoolKey]uint16
	byIndex map[uint16]model.PoolKey
	count   uint16
}

func NewPoolKeys() *PoolKeys {
	return &PoolKeys{
		byKey:   make(map[model.PoolKey]uint16),
		byIndex: make(map[uint16]model.PoolKey),
	}
}

func (p *PoolKeys) Contains(key model.PoolKey) bool {
	_, ok := p.byKey[key]
	return ok
}

// Index returns the enumeration index of key.
func (p *PoolKeys) Index(key model.PoolKey) (uint16, bool) {
	i, ok := p.byKey[key]
	return i, ok
}

func (p *PoolKeys) Count() uint16 { return p.count }

func (p *PoolKeys) Add(key model.PoolKey) error {
	if p.Contains(key) {
		return fmt.Errorf("%w: %s", ErrPoolKeyAlreadyExist, key)
	}
	p.byKey[key] = p.count
	p.byIndex[p.count] = key
	p.count++
	return nil
}

func (p *PoolKeys) Remove(key model.PoolKey) error {
	i, ok := p.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolKeyNotFound, key)
	}
	last := p.count - 1
	if i != last {
		moved := p.byIndex[last]
		p.byIndex[i] = moved
		p.byKey[moved] = i
	}
	delete(p.byIndex, last)
	delete(p.byKey, key)
	p.count--
	return nil
}

// Page returns up to size keys starting at index offset.
func (p *PoolKeys) Page(offset, size uint16) []model.PoolKey {
	if offset >= p.count {
		return []model.PoolKey{}
	}
	end := min(uint32(offset)+uint32(size), uint32(p.count))
	keys := make([]model.PoolKey, 0, end-uint32(offset))
	for i := uint32(offset); i < end; i++ {
		keys = append(keys, p.byIndex[uint16(i)])
	}
	return keys
}

// Clone returns an independent copy.
func (p *PoolKeys) Clone() *PoolKeys {
	return &PoolKeys{
		byKey:   maps.Clone(p.byKey),
		byIndex: maps.Clone(p.byIndex),
		count:   p.count,
	}
}
