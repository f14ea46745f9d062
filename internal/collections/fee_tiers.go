package collections

import (
	"fmt"
	"slices"

	"github.com/atmx/clamm-engine/internal/model"
)

// FeeTiers is the ordered list of fee tiers pools may be created with.
type FeeTiers struct {
	tiers []model.FeeTier
}

func (f *FeeTiers) Contains(t model.FeeTier) bool {
	return slices.Contains(f.tiers, t)
}

// Add appends t; duplicates are rejected.
func (f *FeeTiers) Add(t model.FeeTier) error {
	if f.Contains(t) {
		return fmt.Errorf("%w: %s", ErrFeeTierAlreadyExist, t)
	}
	f.tiers = append(f.tiers, t)
	return nil
}

// Remove deletes t, keeping the order of the rest. Pools created with t
// are unaffected.
func (f *FeeTiers) Remove(t model.FeeTier) error {
	i := slices.Index(f.tiers, t)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFeeTierNotFound, t)
	}
	f.tiers = slices.Delete(f.tiers, i, i+1)
	return nil
}

// All returns a copy of the list.
func (f *FeeTiers) All() []model.FeeTier {
	return slices.Clone(f.tiers)
}

// Replace swaps in a whole list, as returned by All.
func (f *FeeTiers) Replace(tiers []model.FeeTier) {
	f.tiers = slices.Clone(tiers)
}
