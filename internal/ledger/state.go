// Package ledger implements the publishing registry state machine: the book
// table, purchase records, author balances and the authorization policy,
// together with the access-control and settlement rules that every
// operation enforces. The ABCI application drives a Registry with verified
// caller identities and attached payments; tests drive it directly.
package ledger

import (
	"math/big"
	"sort"

	"pubreg.chain/pubreg/internal/types"
)

// Snapshot is a self-contained copy of the registry state. It is what the
// store persists and what the app hash is computed over, so every collection
// is kept in a deterministic order.
type Snapshot struct {
	Owner      types.Address   `json:"owner"`
	LastBookID uint64          `json:"last_book_id"`
	Books      []types.Book    `json:"books"`
	Purchases  []Purchase      `json:"purchases"`
	Authorized []types.Address `json:"authorized"`
	Balances   []Balance       `json:"balances"`
	Surplus    *big.Int        `json:"surplus"`
}

// Purchase is one (book, purchaser) record.
type Purchase struct {
	BookID    uint64        `json:"book_id"`
	Purchaser types.Address `json:"purchaser"`
}

// Balance is an author's withdrawable amount.
type Balance struct {
	Author types.Address `json:"author"`
	Amount *big.Int      `json:"amount"`
}

type purchaseKey struct {
	bookID    uint64
	purchaser types.Address
}

// state holds the mutable registry tables. It carries no locking; Registry
// serializes access to it.
type state struct {
	owner      types.Address
	lastBookID uint64
	books      map[uint64]*types.Book
	purchases  map[purchaseKey]bool
	balances   map[types.Address]*big.Int
	surplus    *big.Int
}

func newState(owner types.Address) *state {
	return &state{
		owner:     owner,
		books:     make(map[uint64]*types.Book),
		purchases: make(map[purchaseKey]bool),
		balances:  make(map[types.Address]*big.Int),
		surplus:   new(big.Int),
	}
}

func (s *state) clone() *state {
	c := &state{
		owner:      s.owner,
		lastBookID: s.lastBookID,
		books:      make(map[uint64]*types.Book, len(s.books)),
		purchases:  make(map[purchaseKey]bool, len(s.purchases)),
		balances:   make(map[types.Address]*big.Int, len(s.balances)),
		surplus:    types.CopyAmount(s.surplus),
	}
	for id, b := range s.books {
		bc := b.Clone()
		c.books[id] = &bc
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for a, v := range s.balances {
		c.balances[a] = types.CopyAmount(v)
	}
	return c
}

func (s *state) balance(a types.Address) *big.Int {
	if v, ok := s.balances[a]; ok {
		return v
	}
	return new(big.Int)
}

func (s *state) credit(a types.Address, amt *big.Int) {
	s.balances[a] = new(big.Int).Add(s.balance(a), amt)
}

func (s *state) setBalance(a types.Address, amt *big.Int) {
	if amt.Sign() == 0 {
		delete(s.balances, a)
		return
	}
	s.balances[a] = types.CopyAmount(amt)
}

func (s *state) snapshot(policy Policy) Snapshot {
	snap := Snapshot{
		Owner:      s.owner,
		LastBookID: s.lastBookID,
		Books:      make([]types.Book, 0, len(s.books)),
		Purchases:  make([]Purchase, 0, len(s.purchases)),
		Authorized: policy.Accounts(),
		Balances:   make([]Balance, 0, len(s.balances)),
		Surplus:    types.CopyAmount(s.surplus),
	}
	for _, b := range s.books {
		snap.Books = append(snap.Books, b.Clone())
	}
	sort.Slice(snap.Books, func(i, j int) bool { return snap.Books[i].ID < snap.Books[j].ID })

	for k, ok := range s.purchases {
		if ok {
			snap.Purchases = append(snap.Purchases, Purchase{BookID: k.bookID, Purchaser: k.purchaser})
		}
	}
	sort.Slice(snap.Purchases, func(i, j int) bool {
		pi, pj := snap.Purchases[i], snap.Purchases[j]
		if pi.BookID != pj.BookID {
			return pi.BookID < pj.BookID
		}
		return pi.Purchaser.Hex() < pj.Purchaser.Hex()
	})

	for a, v := range s.balances {
		snap.Balances = append(snap.Balances, Balance{Author: a, Amount: types.CopyAmount(v)})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Author.Hex() < snap.Balances[j].Author.Hex()
	})
	return snap
}

func stateFromSnapshot(snap Snapshot) *state {
	s := newState(snap.Owner)
	s.lastBookID = snap.LastBookID
	s.surplus = types.CopyAmount(snap.Surplus)
	for _, b := range snap.Books {
		bc := b.Clone()
		s.books[b.ID] = &bc
	}
	for _, p := range snap.Purchases {
		s.purchases[purchaseKey{p.BookID, p.Purchaser}] = true
	}
	for _, bal := range snap.Balances {
		s.setBalance(bal.Author, types.CopyAmount(bal.Amount))
	}
	return s
}
