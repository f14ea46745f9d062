package collections

import (
	"fmt"

	"github.com/atmx/clamm-engine/internal/model"
)

type tickKey struct {
	pool  model.PoolKey
	index int32
}

// Ticks stores initialized ticks by (pool key, index).
type Ticks struct {
	m map[tickKey]model.Tick
}

func NewTicks() *Ticks {
	return &Ticks{m: make(map[tickKey]model.Tick)}
}

func (t *Ticks) Add(key model.PoolKey, tick model.Tick) error {
	k := tickKey{key, tick.Index}
	if _, ok := t.m[k]; ok {
		return fmt.Errorf("%w: %s tick %d", ErrTickAlreadyExist, key, tick.Index)
	}
	t.m[k] = tick
	return nil
}

func (t *Ticks) Get(key model.PoolKey, index int32) (model.Tick, error) {
	tick, ok := t.m[tickKey{key, index}]
	if !ok {
		return model.Tick{}, fmt.Errorf("%w: %s tick %d", ErrTickNotFound, key, index)
	}
	return tick, nil
}

func (t *Ticks) Contains(key model.PoolKey, index int32) bool {
	_, ok := t.m[tickKey{key, index}]
	return ok
}

func (t *Ticks) Update(key model.PoolKey, tick model.Tick) error {
	k := tickKey{key, tick.Index}
	if _, ok := t.m[k]; !ok {
		return fmt.Errorf("%w: %s tick %d", ErrTickNotFound, key, tick.Index)
	}
	t.m[k] = tick
	return nil
}

func (t *Ticks) Remove(key model.PoolKey, index int32) error {
	k := tickKey{key, index}
	if _, ok := t.m[k]; !ok {
		return fmt.Errorf("%w: %s tick %d", ErrTickNotFound, key, index)
	}
	delete(t.m, k)
	return nil
}

// Each calls fn for every stored tick, in no particular order.
func (t *Ticks) Each(fn func(key model.PoolKey, tick model.Tick)) {
	for k, tick := range t.m {
		fn(k.pool, tick)
	}
}
