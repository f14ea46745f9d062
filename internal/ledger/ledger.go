// Package ledger keeps token balances for accounts and the engine vault.
// It is the bank the engine settles every operation through.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
)

var (
	// ErrInsufficientBalance is returned when an account or the vault
	// holds less of a token than it must pay.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrZeroAmount is returned for deposits and withdrawals of nothing.
	ErrZeroAmount = errors.New("ledger: amount is zero")
)

type balances map[common.Address]decimal.TokenAmount

// Book is an in-memory balance book. Safe for concurrent use.
type Book struct {
	mu       sync.RWMutex
	vault    common.Address
	accounts map[common.Address]balances
}

// New creates a book whose vault account is vault.
func New(vault common.Address) *Book {
	return &Book{
		vault:    vault,
		accounts: make(map[common.Address]balances),
	}
}

func (b *Book) Vault() common.Address { return b.vault }

func (b *Book) get(account, token common.Address) decimal.TokenAmount {
	return b.accounts[account][token]
}

func (b *Book) set(account, token common.Address, amount decimal.TokenAmount) {
	m, ok := b.accounts[account]
	if !ok {
		m = make(balances)
		b.accounts[account] = m
	}
	if amount.IsZero() {
		delete(m, token)
		return
	}
	m[token] = amount
}

// Deposit credits account with amount of token from outside the market.
func (b *Book) Deposit(account, token common.Address, amount decimal.TokenAmount) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := b.get(account, token).CheckedAdd(amount)
	if err != nil {
		return fmt.Errorf("deposit %s: %w", token.Hex(), err)
	}
	b.set(account, token, next)
	return nil
}

// Withdraw debits account with amount of token to outside the market.
func (b *Book) Withdraw(account, token common.Address, amount decimal.TokenAmount) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	have := b.get(account, token)
	if have.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, account.Hex(), have, token.Hex(), amount)
	}
	b.set(account, token, have.Sub(amount))
	return nil
}

func (b *Book) Balance(account, token common.Address) decimal.TokenAmount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.get(account, token)
}

// Balances returns a copy of every non-zero balance of account.
func (b *Book) Balances(account common.Address) map[common.Address]decimal.TokenAmount {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[common.Address]decimal.TokenAmount, len(b.accounts[account]))
	for token, amount := range b.accounts[account] {
		out[token] = amount
	}
	return out
}

// Settle moves debits from account into the vault and credits from the
// vault to account. Either every movement happens or none does.
func (b *Book) Settle(account common.Address, debits, credits []engine.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	type slot struct{ account, token common.Address }
	next := make(map[slot]decimal.TokenAmount)
	balance := func(s slot) decimal.TokenAmount {
		if v, ok := next[s]; ok {
			return v
		}
		return b.get(s.account, s.token)
	}
	move := func(from, to common.Address, t engine.Transfer) error {
		src, dst := slot{from, t.Token}, slot{to, t.Token}
		have := balance(src)
		if have.Lt(t.Amount) {
			return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), have, t.Token.Hex(), t.Amount)
		}
		next[src] = have.Sub(t.Amount)
		sum, err := balance(dst).CheckedAdd(t.Amount)
		if err != nil {
			return fmt.Errorf("settle %s: %w", t.Token.Hex(), err)
		}
		next[dst] = sum
		return nil
	}

	for _, t := range debits {
		if err := move(account, b.vault, t); err != nil {
			return err
		}
	}
	for _, t := range credits {
		if err := move(b.vault, account, t); err != nil {
			return err
		}
	}
	for s, v := range next {
		b.set(s.account, s.token, v)
	}
	return nil
}

// Load replaces the whole book with stored balances.
func (b *Book) Load(all map[common.Address]map[common.Address]decimal.TokenAmount) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.accounts = make(map[common.Address]balances, len(all))
	for account, tokens := range all {
		for token, amount := range tokens {
			b.set(account, token, amount)
		}
	}
}
