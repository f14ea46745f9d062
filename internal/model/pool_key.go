package model

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"

	"github.com/atmx/clamm-engine/internal/decimal"
)

// PoolKey identifies a pool. TokenX always sorts below TokenY.
type PoolKey struct {
	TokenX  common.Address `json:"token_x"`
	TokenY  common.Address `json:"token_y"`
	FeeTier FeeTier        `json:"fee_tier"`
}

// poolKeyRegex matches: {tokenX}-{tokenY}-{fee raw}-{spacing}
// Example: 0x00..01-0x00..02-6000000000-10
var poolKeyRegex = regexp.MustCompile(
	`^(0x[0-9a-fA-F]{40})-(0x[0-9a-fA-F]{40})-([0-9]{1,20})-([0-9]{1,5})$`,
)

// NewPoolKey orders the two tokens canonically.
func NewPoolKey(a, b common.Address, tier FeeTier) (PoolKey, error) {
	switch a.Cmp(b) {
	case 0:
		return PoolKey{}, fmt.Errorf("%w: %s", ErrTokensAreSame, a.Hex())
	case 1:
		a, b = b, a
	}
	return PoolKey{TokenX: a, TokenY: b, FeeTier: tier}, nil
}

// ID is the BLAKE3 digest of the key, used as a storage key.
func (k PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(k.TokenX.Bytes())
	h.Write(k.TokenY.Bytes())

	var fee [8]byte
	binary.BigEndian.PutUint64(fee[:], k.FeeTier.Fee.Uint64())
	h.Write(fee[:])

	var spacing [2]byte
	binary.BigEndian.PutUint16(spacing[:], k.FeeTier.TickSpacing)
	h.Write(spacing[:])

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Hex returns ID() hex encoded.
func (k PoolKey) Hex() string {
	id := k.ID()
	return hex.EncodeToString(id[:])
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s-%s-%s-%d", k.TokenX.Hex(), k.TokenY.Hex(), k.FeeTier.Fee.RawString(), k.FeeTier.TickSpacing)
}

// ParsePoolKey parses the String form of a pool key and validates it.
func ParsePoolKey(s string) (PoolKey, error) {
	m := poolKeyRegex.FindStringSubmatch(s)
	if m == nil {
		return PoolKey{}, fmt.Errorf("%w: %s (expected {tokenX}-{tokenY}-{fee}-{spacing})", ErrInvalidPoolKey, s)
	}
	fee, err := strconv.ParseUint(m[3], 10, 64)
	if err != nil {
		return PoolKey{}, fmt.Errorf("%w: fee %s", ErrInvalidPoolKey, m[3])
	}
	spacing, err := strconv.ParseUint(m[4], 10, 16)
	if err != nil {
		return PoolKey{}, fmt.Errorf("%w: spacing %s", ErrInvalidPoolKey, m[4])
	}
	tier, err := NewFeeTier(decimal.NewPercentage(fee), uint16(spacing))
	if err != nil {
		return PoolKey{}, err
	}
	return NewPoolKey(common.HexToAddress(m[1]), common.HexToAddress(m[2]), tier)
}
