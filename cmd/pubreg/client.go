package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/identity"
	"pubreg.chain/pubreg/internal/types"
)

// session is a loaded key plus a node connection.
type session struct {
	id    *identity.Identity
	chain chain
	async bool
}

func (o *options) session() (*session, error) {
	id, err := identity.LoadIdentity(o.keyFile)
	if err != nil {
		return nil, err
	}
	return &session{id: id, chain: o.dial(o.rpcAddr), async: o.async}, nil
}

func (s *session) query(ctx context.Context, path string, v interface{}) error {
	raw, err := s.chain.ABCIQuery(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// submit signs a transaction with the account's next nonce and broadcasts it.
func (s *session) submit(ctx context.Context, txType types.TransactionType, value *big.Int, payload interface{}) (json.RawMessage, error) {
	var acct bank.Account
	if err := s.query(ctx, "/account/"+s.id.Address().Hex(), &acct); err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	tx, err := types.NewTransaction(txType, acct.Nonce, value, payload)
	if err != nil {
		return nil, err
	}
	signedTx, err := tx.Sign(s.id)
	if err != nil {
		return nil, err
	}

	res, err := s.chain.BroadcastSignedTransaction(ctx, signedTx, !s.async)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// runTx wraps a transaction builder into a cobra RunE.
func runTx(opts *options, build func(args []string) (types.TransactionType, *big.Int, interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		txType, value, payload, err := build(args)
		if err != nil {
			return err
		}
		s, err := opts.session()
		if err != nil {
			return err
		}
		res, err := s.submit(cmd.Context(), txType, value, payload)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	}
}

// runQuery wraps a query path builder into a cobra RunE.
func runQuery(opts *options, path func(args []string) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, err := path(args)
		if err != nil {
			return err
		}
		raw, err := opts.dial(opts.rpcAddr).ABCIQuery(cmd.Context(), p)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), json.RawMessage(raw))
	}
}
