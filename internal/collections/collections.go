// Package collections holds the keyed containers behind the engine state:
// fee tiers, pool keys, pools, ticks and positions. Containers store
// values, so callers never alias stored state.
package collections

import "errors"

var (
	ErrFeeTierAlreadyExist = errors.New("collections: fee tier already exists")
	ErrFeeTierNotFound     = errors.New("collections: fee tier not found")
	ErrPoolKeyAlreadyExist = errors.New("collections: pool key already exists")
	ErrPoolKeyNotFound     = errors.New("collections: pool key not found")
	ErrPoolAlreadyExist    = errors.New("collections: pool already exists")
	ErrPoolNotFound        = errors.New("collections: pool not found")
	ErrTickAlreadyExist    = errors.New("collections: tick already exists")
	ErrTickNotFound        = errors.New("collections: tick not found")
	ErrPositionNotFound    = errors.New("collections: position not found")
)
