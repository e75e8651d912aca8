package abci

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"pubreg.chain/pubreg/internal/types"
)

// DefaultEscrow holds registry funds when genesis names no escrow account.
var DefaultEscrow = types.DeriveAddress("pubreg/escrow")

// Genesis is the decoded app_state of a Tendermint genesis file.
type Genesis struct {
	Owner    types.Address
	Escrow   types.Address
	Accounts map[types.Address]*big.Int
}

type genesisJSON struct {
	Owner    types.Address            `json:"owner"`
	Escrow   *types.Address           `json:"escrow,omitempty"`
	Accounts map[types.Address]string `json:"accounts"`
}

// ParseGenesis decodes {"owner": ..., "escrow": ..., "accounts": {addr: amount}}.
// Amounts are base-10 strings. The owner is required and the escrow account
// must not be pre-funded.
func ParseGenesis(raw []byte) (*Genesis, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty app state")
	}
	var gj genesisJSON
	if err := json.Unmarshal(raw, &gj); err != nil {
		return nil, fmt.Errorf("decode app state: %w", err)
	}
	if gj.Owner.IsZero() {
		return nil, errors.New("owner is required")
	}

	gen := &Genesis{
		Owner:    gj.Owner,
		Escrow:   DefaultEscrow,
		Accounts: make(map[types.Address]*big.Int, len(gj.Accounts)),
	}
	if gj.Escrow != nil && !gj.Escrow.IsZero() {
		gen.Escrow = *gj.Escrow
	}
	for addr, s := range gj.Accounts {
		amount, err := types.ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", addr, err)
		}
		if addr == gen.Escrow && amount.Sign() != 0 {
			return nil, fmt.Errorf("escrow %s must start empty", addr)
		}
		gen.Accounts[addr] = amount
	}
	return gen, nil
}

// MarshalGenesis encodes g in the form ParseGenesis reads.
func MarshalGenesis(g Genesis) ([]byte, error) {
	gj := genesisJSON{Owner: g.Owner, Accounts: make(map[types.Address]string, len(g.Accounts))}
	if !g.Escrow.IsZero() {
		escrow := g.Escrow
		gj.Escrow = &escrow
	}
	for addr, amount := range g.Accounts {
		gj.Accounts[addr] = types.FormatAmount(amount)
	}
	return json.Marshal(gj)
}
