// Package bank keeps native-currency accounts for the registry chain:
// balances, per-account transaction nonces, and transfers between accounts.
// The registry's funds sit in an escrow account; payments into the registry
// and withdrawals out of it are ordinary transfers.
package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"pubreg.chain/pubreg/internal/types"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Account is a native-currency account.
type Account struct {
	Address types.Address `json:"address"`
	Balance *big.Int      `json:"balance"`
	Nonce   uint64        `json:"nonce"`
}

// Bank holds every account. The zero value is not usable; call New.
type Bank struct {
	mu       sync.RWMutex
	accounts map[types.Address]*Account
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{accounts: make(map[types.Address]*Account)}
}

// FromAccounts rebuilds a bank from persisted accounts.
func FromAccounts(accounts []Account) *Bank {
	b := New()
	for _, a := range accounts {
		b.accounts[a.Address] = &Account{Address: a.Address, Balance: types.CopyAmount(a.Balance), Nonce: a.Nonce}
	}
	return b
}

func (b *Bank) account(a types.Address) *Account {
	acc, ok := b.accounts[a]
	if !ok {
		acc = &Account{Address: a, Balance: new(big.Int)}
		b.accounts[a] = acc
	}
	return acc
}

// Get returns a copy of the account; unknown addresses are empty accounts.
func (b *Bank) Get(a types.Address) Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if acc, ok := b.accounts[a]; ok {
		return Account{Address: a, Balance: types.CopyAmount(acc.Balance), Nonce: acc.Nonce}
	}
	return Account{Address: a, Balance: new(big.Int)}
}

// Balance returns a's native balance.
func (b *Bank) Balance(a types.Address) *big.Int {
	return b.Get(a).Balance
}

// Nonce returns the next nonce a must use.
func (b *Bank) Nonce(a types.Address) uint64 {
	return b.Get(a).Nonce
}

// IncrementNonce consumes a's current nonce.
func (b *Bank) IncrementNonce(a types.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account(a).Nonce++
}

// Credit mints amt into a. It is used for genesis allocations only.
func (b *Bank) Credit(a types.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amt)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.account(a)
	acc.Balance = new(big.Int).Add(acc.Balance, amt)
	return nil
}

// Transfer moves amt from one account to another. Either both balances
// change or neither does.
func (b *Bank) Transfer(from, to types.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amt)
	}
	if to.IsZero() {
		return fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if amt.Sign() == 0 {
		return nil
	}
	src := b.account(from)
	if src.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, from, src.Balance, amt)
	}
	dst := b.account(to)
	src.Balance = new(big.Int).Sub(src.Balance, amt)
	dst.Balance = new(big.Int).Add(dst.Balance, amt)
	return nil
}

// Clone returns an independent copy of the bank.
func (b *Bank) Clone() *Bank {
	return FromAccounts(b.Accounts())
}

// Accounts lists every known account ordered by address.
func (b *Bank) Accounts() []Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Account, 0, len(b.accounts))
	for _, acc := range b.accounts {
		out = append(out, Account{Address: acc.Address, Balance: types.CopyAmount(acc.Balance), Nonce: acc.Nonce})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Hex() < out[j].Address.Hex() })
	return out
}

// Payout pays out of a fixed source account, typically the registry escrow.
type Payout struct {
	bank   *Bank
	source types.Address
}

// Payout returns a ledger payout drawing on source.
func (b *Bank) Payout(source types.Address) Payout {
	return Payout{bank: b, source: source}
}

// Pay transfers amount from the payout source to to.
func (p Payout) Pay(to types.Address, amount *big.Int) error {
	return p.bank.Transfer(p.source, to, amount)
}
