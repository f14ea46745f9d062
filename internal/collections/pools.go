package collections

import (
	"fmt"

	"github.com/atmx/clamm-engine/internal/model"
)

type Pools struct {
	m map[model.PoolKey]model.Pool
}

func NewPools() *Pools {
	return &Pools{m: make(map[model.PoolKey]model.Pool)}
}

func (p *Pools) Add(key model.PoolKey, pool model.Pool) error {
	if _, ok := p.m[key]; ok {
		return fmt.Errorf("%w: %s", ErrPoolAlreadyExist, key)
	}
	p.m[key] = pool
	return nil
}

func (p *Pools) Get(key model.PoolKey) (model.Pool, error) {
	pool, ok := p.m[key]
	if !ok {
		return model.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, key)
	}
	return pool, nil
}

func (p *Pools) Update(key model.PoolKey, pool model.Pool) error {
	if _, ok := p.m[key]; !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, key)
	}
	p.m[key] = pool
	return nil
}

func (p *Pools) Remove(key model.PoolKey) error {
	if _, ok := p.m[key]; !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, key)
	}
	delete(p.m, key)
	return nil
}

func (p *Pools) Len() int { return len(p.m) }
