package collections

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/model"
)

// Positions keeps each owner's positions densely indexed from zero.
type Positions struct {
	m map[common.Address][]model.Position
}

func NewPositions() *Positions {
	return &Positions{m: make(map[common.Address][]model.Position)}
}

func (p *Positions) Len(owner common.Address) uint32 {
	return uint32(len(p.m[owner]))
}

// Add appends pos at index Len(owner).
func (p *Positions) Add(owner common.Address, pos model.Position) {
	p.m[owner] = append(p.m[owner], pos)
}

func (p *Positions) Get(owner common.Address, index uint32) (model.Position, error) {
	list := p.m[owner]
	if index >= uint32(len(list)) {
		return model.Position{}, fmt.Errorf("%w: %s #%d", ErrPositionNotFound, owner.Hex(), index)
	}
	return list[index], nil
}

func (p *Positions) Update(owner common.Address, index uint32, pos model.Position) error {
	list := p.m[owner]
	if index >= uint32(len(list)) {
		return fmt.Errorf("%w: %s #%d", ErrPositionNotFound, owner.Hex(), index)
	}
	list[index] = pos
	return nil
}

// Remove deletes the position at index; the owner's last position takes
// its place.
func (p *Positions) Remove(owner common.Address, index uint32) (model.Position, error) {
	list := p.m[owner]
	n := uint32(len(list))
	if index >= n {
		return model.Position{}, fmt.Errorf("%w: %s #%d", ErrPositionNotFound, owner.Hex(), index)
	}
	removed := list[index]
	list[index] = list[n-1]
	list[n-1] = model.Position{}
	if n == 1 {
		delete(p.m, owner)
	} else {
		p.m[owner] = list[:n-1]
	}
	return removed, nil
}

// Transfer moves the position at index from owner to receiver, where it
// is appended.
func (p *Positions) Transfer(owner common.Address, index uint32, receiver common.Address) error {
	pos, err := p.Remove(owner, index)
	if err != nil {
		return err
	}
	p.Add(receiver, pos)
	return nil
}

// List returns a copy of the owner's positions in index order.
func (p *Positions) List(owner common.Address) []model.Position {
	return slices.Clone(p.m[owner])
}

// Replace sets the owner's whole list, as returned by List.
func (p *Positions) Replace(owner common.Address, list []model.Position) {
	if len(list) == 0 {
		delete(p.m, owner)
		return
	}
	p.m[owner] = slices.Clone(list)
}

// Owners returns every owner holding at least one position.
func (p *Positions) Owners() []common.Address {
	owners := make([]common.Address, 0, len(p.m))
	for o := range p.m {
		owners = append(owners, o)
	}
	return owners
}
