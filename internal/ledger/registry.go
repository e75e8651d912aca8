package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"pubreg.chain/pubreg/internal/types"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAuthorMismatch      = errors.New("author mismatch")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrBookNotFound        = errors.New("book not found")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Payout delivers native currency out of the registry. Implementations must
// not call back into the Registry.
type Payout interface {
	Pay(to types.Address, amount *big.Int) error
}

// EventSink receives notifications emitted by successful operations.
type EventSink interface {
	Publish(n types.Notification)
}

// Env binds a Registry to its external collaborators.
type Env struct {
	Payout Payout
	Events EventSink
}

// Registry is the publishing registry. All operations are serialized by an
// internal lock and either apply completely or leave the state untouched.
type Registry struct {
	mu     sync.RWMutex
	st     *state
	policy Policy
	env    Env
}

// New creates an empty registry owned by owner. A nil policy defaults to an
// AccountPolicy. The owner is authorized at genesis.
func New(owner types.Address, policy Policy, env Env) *Registry {
	if policy == nil {
		policy = NewAccountPolicy()
	}
	policy.Grant(owner)
	return &Registry{st: newState(owner), policy: policy, env: env}
}

// Restore rebuilds a registry from a snapshot. A nil policy is rebuilt from
// the snapshot's authorized accounts.
func Restore(snap Snapshot, policy Policy, env Env) *Registry {
	if policy == nil {
		policy = NewAccountPolicy(snap.Authorized...)
	}
	return &Registry{st: stateFromSnapshot(snap), policy: policy, env: env}
}

// Fork returns an independent deep copy bound to env. Changes to the fork
// never affect r.
func (r *Registry) Fork(env Env) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{st: r.st.clone(), policy: r.policy.Copy(), env: env}
}

// Snapshot returns a deterministic copy of the full state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.snapshot(r.policy)
}

func (r *Registry) emit(n types.Notification) {
	if r.env.Events != nil {
		r.env.Events.Publish(n)
	}
}

func (r *Registry) pay(to types.Address, amount *big.Int) error {
	if r.env.Payout == nil {
		return errors.New("no payout configured")
	}
	return r.env.Payout.Pay(to, amount)
}

func amountOrZero(v *big.Int) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, v)
	}
	return new(big.Int).Set(v), nil
}

func (r *Registry) requireAuthorized(caller types.Address) error {
	if !r.policy.IsAuthorized(caller) {
		return fmt.Errorf("%w: %s is not an authorized account", ErrUnauthorized, caller)
	}
	return nil
}

// PublishBook registers a book with the caller as author.
func (r *Registry) PublishBook(caller types.Address, title, authorName, ipfsHash string, price *big.Int) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publish(caller, title, authorName, ipfsHash, price)
}

// PublishBookFor registers a book on behalf of author. Only authorized
// accounts may call it.
func (r *Registry) PublishBookFor(caller types.Address, title, authorName, ipfsHash string, price *big.Int, author types.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAuthorized(caller); err != nil {
		return 0, err
	}
	return r.publish(author, title, authorName, ipfsHash, price)
}

func (r *Registry) publish(author types.Address, title, authorName, ipfsHash string, price *big.Int) (uint64, error) {
	p, err := amountOrZero(price)
	if err != nil {
		return 0, err
	}
	r.st.lastBookID++
	id := r.st.lastBookID
	r.st.books[id] = &types.Book{
		ID:            id,
		Title:         title,
		AuthorName:    authorName,
		AuthorAddress: author,
		IPFSHash:      ipfsHash,
		Price:         p,
		Earnings:      new(big.Int),
	}
	r.emit(types.Notification{Type: types.EventBookRegistered, BookID: id, Author: author})
	return id, nil
}

// GetBook returns the stored book, or the zero book (zero author) when id
// was never assigned. Deleted books come back with cleared content.
func (r *Registry) GetBook(id uint64) types.Book {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.st.books[id]
	if !ok {
		return types.Book{Price: new(big.Int), Earnings: new(big.Int)}
	}
	return b.Clone()
}

// book returns the stored record for id; nil when never assigned.
func (r *Registry) book(id uint64) *types.Book {
	return r.st.books[id]
}

func (r *Registry) authorOf(id uint64) types.Address {
	if b := r.book(id); b != nil {
		return b.AuthorAddress
	}
	return types.ZeroAddress
}

// requireAuthor passes when caller is the stored author of id. A missing or
// deleted book has the zero author, which no caller can match.
func (r *Registry) requireAuthor(caller types.Address, id uint64) error {
	if caller.IsZero() || r.authorOf(id) != caller {
		return fmt.Errorf("%w: %s is not the author of book %d", ErrUnauthorized, caller, id)
	}
	return nil
}

// requireDelegate passes when caller is authorized and author is the stored
// author of id.
func (r *Registry) requireDelegate(caller types.Address, id uint64, author types.Address) error {
	if err := r.requireAuthorized(caller); err != nil {
		return err
	}
	if stored := r.authorOf(id); stored != author {
		return fmt.Errorf("%w: book %d belongs to %s, not %s", ErrAuthorMismatch, id, stored, author)
	}
	return nil
}

// UpdateBookInfo overwrites title, content hash and price. Only the author
// may call it.
func (r *Registry) UpdateBookInfo(caller types.Address, id uint64, title, ipfsHash string, price *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAuthor(caller, id); err != nil {
		return err
	}
	return r.update(id, title, ipfsHash, price)
}

// UpdateBookInfoFor is UpdateBookInfo for an authorized delegate, who must
// name the book's current author.
func (r *Registry) UpdateBookInfoFor(caller types.Address, id uint64, title, ipfsHash string, price *big.Int, author types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireDelegate(caller, id, author); err != nil {
		return err
	}
	return r.update(id, title, ipfsHash, price)
}

func (r *Registry) update(id uint64, title, ipfsHash string, price *big.Int) error {
	p, err := amountOrZero(price)
	if err != nil {
		return err
	}
	b := r.book(id)
	if b == nil || !b.Exists() {
		// Unreachable through the guards, which require a live author.
		return fmt.Errorf("%w: %d", ErrBookNotFound, id)
	}
	b.Title = title
	b.IPFSHash = ipfsHash
	b.Price = p
	return nil
}

// DeleteBook clears the book's content and author. Deletion is permanent.
func (r *Registry) DeleteBook(caller types.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAuthor(caller, id); err != nil {
		return err
	}
	r.remove(id)
	return nil
}

// DeleteBookFor is DeleteBook for an authorized delegate.
func (r *Registry) DeleteBookFor(caller types.Address, id uint64, author types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireDelegate(caller, id, author); err != nil {
		return err
	}
	r.remove(id)
	return nil
}

func (r *Registry) remove(id uint64) {
	b := r.book(id)
	if b == nil {
		return
	}
	// Price and earnings are left as they were.
	b.Title = ""
	b.AuthorName = ""
	b.IPFSHash = ""
	b.AuthorAddress = types.ZeroAddress
}

// PurchaseBook records the caller as a purchaser of id. value is the amount
// attached to the call and must cover the price; the author is credited the
// price and any excess is kept as registry surplus.
func (r *Registry) PurchaseBook(caller types.Address, id uint64, value *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settle(id, caller, value)
}

// GiftBook is PurchaseBook with the purchase recorded for recipient. The
// paying caller gains nothing.
func (r *Registry) GiftBook(caller types.Address, id uint64, recipient types.Address, value *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settle(id, recipient, value)
}

func (r *Registry) settle(id uint64, purchaser types.Address, value *big.Int) error {
	paid, err := amountOrZero(value)
	if err != nil {
		return err
	}
	b := r.book(id)
	price := new(big.Int)
	if b != nil {
		price = b.Price
	}
	if paid.Cmp(price) < 0 {
		return fmt.Errorf("%w: book %d costs %s, got %s", ErrInsufficientPayment, id, price, paid)
	}
	if b == nil || !b.Exists() {
		return fmt.Errorf("%w: %d", ErrBookNotFound, id)
	}

	r.st.purchases[purchaseKey{id, purchaser}] = true
	b.Earnings = new(big.Int).Add(b.Earnings, price)
	r.st.credit(b.AuthorAddress, price)
	if excess := new(big.Int).Sub(paid, price); excess.Sign() > 0 {
		r.st.surplus = new(big.Int).Add(r.st.surplus, excess)
	}
	return nil
}

// CheckPurchaser reports whether addr holds a purchase record for id.
func (r *Registry) CheckPurchaser(id uint64, addr types.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.purchases[purchaseKey{id, addr}]
}

// GetBookEarnings returns the accumulated earnings counter of id.
func (r *Registry) GetBookEarnings(id uint64) *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b := r.book(id); b != nil {
		return types.CopyAmount(b.Earnings)
	}
	return new(big.Int)
}

// WithdrawFunds pays the caller's entire balance to the caller.
func (r *Registry) WithdrawFunds(caller types.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.withdraw(caller)
}

// WithdrawFundsFor pays author's entire balance to author. Only authorized
// accounts may call it.
func (r *Registry) WithdrawFundsFor(caller, author types.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireAuthorized(caller); err != nil {
		return nil, err
	}
	return r.withdraw(author)
}

// withdraw zeroes the balance before paying and restores it if the payment
// fails.
func (r *Registry) withdraw(to types.Address) (*big.Int, error) {
	amount := types.CopyAmount(r.st.balance(to))
	r.st.setBalance(to, new(big.Int))
	if err := r.pay(to, amount); err != nil {
		r.st.setBalance(to, amount)
		return nil, fmt.Errorf("%w: pay %s to %s: %w", ErrTransferFailed, amount, to, err)
	}
	return amount, nil
}

// AddAuthorizedAccount grants delegated-author rights. Owner only.
func (r *Registry) AddAuthorizedAccount(caller, account types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.st.owner {
		return fmt.Errorf("%w: only the owner may grant authorization", ErrUnauthorized)
	}
	r.policy.Grant(account)
	return nil
}

// RemoveAuthorizedAccount revokes delegated-author rights. Owner only.
func (r *Registry) RemoveAuthorizedAccount(caller, account types.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.st.owner {
		return fmt.Errorf("%w: only the owner may revoke authorization", ErrUnauthorized)
	}
	r.policy.Revoke(account)
	return nil
}

// IsAuthorized reports whether a may act for any author.
func (r *Registry) IsAuthorized(a types.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy.IsAuthorized(a)
}

// Owner returns the registry owner.
func (r *Registry) Owner() types.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.owner
}

// AuthorBalance returns a's withdrawable balance.
func (r *Registry) AuthorBalance(a types.Address) *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.CopyAmount(r.st.balance(a))
}

// BookCount returns the last assigned book ID.
func (r *Registry) BookCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.lastBookID
}

// Surplus returns overpayments retained by the registry.
func (r *Registry) Surplus() *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.CopyAmount(r.st.surplus)
}

// Liabilities is the total the registry owes: author balances plus surplus.
// The escrow account backing the registry must hold exactly this much.
func (r *Registry) Liabilities() *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := types.CopyAmount(r.st.surplus)
	for _, v := range r.st.balances {
		total.Add(total, v)
	}
	return total
}
