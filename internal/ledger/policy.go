package ledger

import (
	"sort"

	"pubreg.chain/pubreg/internal/types"
)

// Policy decides which identities may act on behalf of any author. The
// registry consults it for every *For operation; who may change it is the
// registry's concern (owner only), not the policy's.
type Policy interface {
	IsAuthorized(a types.Address) bool
	Grant(a types.Address)
	Revoke(a types.Address)
	// Accounts lists authorized identities in a stable order.
	Accounts() []types.Address
	// Copy returns an independent policy with the same grants.
	Copy() Policy
}

// AccountPolicy is the default Policy: an explicit set of authorized accounts.
type AccountPolicy struct {
	accounts map[types.Address]bool
}

// NewAccountPolicy returns a policy granting the given accounts.
func NewAccountPolicy(accounts ...types.Address) *AccountPolicy {
	p := &AccountPolicy{accounts: make(map[types.Address]bool, len(accounts))}
	for _, a := range accounts {
		p.accounts[a] = true
	}
	return p
}

func (p *AccountPolicy) IsAuthorized(a types.Address) bool { return p.accounts[a] }

func (p *AccountPolicy) Grant(a types.Address) { p.accounts[a] = true }

func (p *AccountPolicy) Revoke(a types.Address) { delete(p.accounts, a) }

func (p *AccountPolicy) Accounts() []types.Address {
	out := make([]types.Address, 0, len(p.accounts))
	for a := range p.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func (p *AccountPolicy) Copy() Policy {
	return NewAccountPolicy(p.Accounts()...)
}
