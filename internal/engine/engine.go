// Package engine is the concentrated-liquidity market: fee tiers, pools,
// positions and swaps over one explicit State.
//
// State is not safe for concurrent use. The host must run one entry point
// at a time against it. Every mutating entry point is all or nothing: on
// error, or on a panic raised by a broken arithmetic invariant, the state
// is rolled back to where it was before the call.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/collections"
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/tickmap"
)

var (
	ErrNotAdmin       = errors.New("engine: caller is not the admin")
	ErrNotFeeReceiver = errors.New("engine: caller is not the fee receiver")

	ErrAmountIsZero          = errors.New("engine: amount is zero")
	ErrZeroLiquidity         = errors.New("engine: liquidity delta is zero")
	ErrWrongLimit            = errors.New("engine: sqrt price limit on the wrong side of the price")
	ErrNoGainSwap            = errors.New("engine: swap produces no output")
	ErrInsufficientLiquidity = errors.New("engine: not enough liquidity to finish the swap")
	ErrMaxTickCrossReached   = errors.New("engine: swap crosses too many ticks")
	ErrInvalidTickRange      = errors.New("engine: lower tick must be below upper tick")
)

// Config is the engine's administrative configuration.
type Config struct {
	Admin       common.Address
	ProtocolFee decimal.Percentage
}

// Env supplies the time and block height operations are stamped with.
type Env interface {
	Now() uint64
	BlockNumber() uint64
}

// SystemEnv reads the wall clock in unix seconds and produces one block
// per second.
type SystemEnv struct{}

func (SystemEnv) Now() uint64         { return uint64(time.Now().Unix()) }
func (SystemEnv) BlockNumber() uint64 { return uint64(time.Now().Unix()) }

// FixedEnv is an Env the caller moves by hand.
type FixedEnv struct {
	Time  uint64
	Block uint64
}

func (e *FixedEnv) Now() uint64         { return e.Time }
func (e *FixedEnv) BlockNumber() uint64 { return e.Block }

// Transfer is an amount of one token.
type Transfer struct {
	Token  common.Address
	Amount decimal.TokenAmount
}

// Bank moves tokens between accounts and the engine vault. Settle takes
// debits from account into the vault and pays credits out of it, all or
// nothing.
type Bank interface {
	Settle(account common.Address, debits, credits []Transfer) error
}

// CommitHook observes every committed mutation.
type CommitHook func(ChangeSet)

type Option func(*State)

// WithEnv replaces SystemEnv.
func WithEnv(env Env) Option {
	return func(s *State) { s.env = env }
}

// WithBank settles every committed operation's token movements through b.
// Without a bank amounts are only reported.
func WithBank(b Bank) Option {
	return func(s *State) { s.bank = b }
}

// WithCommitHook registers h. Hooks run in registration order after a
// mutation commits.
func WithCommitHook(h CommitHook) Option {
	return func(s *State) { s.hooks = append(s.hooks, h) }
}

// State holds every pool, tick and position of the market.
type State struct {
	config    Config
	feeTiers  collections.FeeTiers
	poolKeys  *collections.PoolKeys
	pools     *collections.Pools
	ticks     *collections.Ticks
	positions *collections.Positions
	tickmap   *tickmap.Tickmap

	env   Env
	bank  Bank
	hooks []CommitHook

	tx *txn
}

// New returns an empty market administered by cfg.Admin.
func New(cfg Config, opts ...Option) (*State, error) {
	if cfg.ProtocolFee.Gt(model.MaxFee) {
		return nil, fmt.Errorf("%w: protocol fee %s", model.ErrInvalidFee, cfg.ProtocolFee)
	}
	s := &State{
		config:    cfg,
		poolKeys:  collections.NewPoolKeys(),
		pools:     collections.NewPools(),
		ticks:     collections.NewTicks(),
		positions: collections.NewPositions(),
		tickmap:   tickmap.New(),
		env:       SystemEnv{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OnCommit registers h after construction.
func (s *State) OnCommit(h CommitHook) {
	s.hooks = append(s.hooks, h)
}

func (s *State) Admin() common.Address { return s.config.Admin }

func (s *State) ProtocolFee() decimal.Percentage { return s.config.ProtocolFee }

func (s *State) requireAdmin(caller common.Address) error {
	if caller != s.config.Admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller.Hex())
	}
	return nil
}
