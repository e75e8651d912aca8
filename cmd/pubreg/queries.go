package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pubreg.chain/pubreg/internal/abci"
	"pubreg.chain/pubreg/internal/identity"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

func queryCommands(opts *options) []*cobra.Command {
	book := &cobra.Command{
		Use:   "book <book-id>",
		Short: "Show a book",
		Args:  cobra.ExactArgs(1),
		RunE: runQuery(opts, func(args []string) (string, error) {
			id, err := parseBookID(args[0])
			return fmt.Sprintf("/book/%d", id), err
		}),
	}

	earnings := &cobra.Command{
		Use:   "earnings <book-id>",
		Short: "Show the total credited for a book",
		Args:  cobra.ExactArgs(1),
		RunE: runQuery(opts, func(args []string) (string, error) {
			id, err := parseBookID(args[0])
			return fmt.Sprintf("/earnings/%d", id), err
		}),
	}

	purchaser := &cobra.Command{
		Use:   "purchaser <book-id> <address>",
		Short: "Check whether an address purchased a book",
		Args:  cobra.ExactArgs(2),
		RunE: runQuery(opts, func(args []string) (string, error) {
			id, err := parseBookID(args[0])
			if err != nil {
				return "", err
			}
			a, err := types.ParseAddress(args[1])
			return fmt.Sprintf("/purchaser/%d/%s", id, a.Hex()), err
		}),
	}

	balance := &cobra.Command{
		Use:   "balance [address]",
		Short: "Show an author's withdrawable balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: runQuery(opts, func(args []string) (string, error) {
			a, err := addressArg(opts, args)
			return "/balance/" + a.Hex(), err
		}),
	}

	account := &cobra.Command{
		Use:   "account [address]",
		Short: "Show native balance and next nonce",
		Args:  cobra.MaximumNArgs(1),
		RunE: runQuery(opts, func(args []string) (string, error) {
			a, err := addressArg(opts, args)
			return "/account/" + a.Hex(), err
		}),
	}

	authorized := &cobra.Command{
		Use:   "authorized <address>",
		Short: "Check whether an address holds delegated rights",
		Args:  cobra.ExactArgs(1),
		RunE: runQuery(opts, func(args []string) (string, error) {
			a, err := types.ParseAddress(args[0])
			return "/authorized/" + a.Hex(), err
		}),
	}

	registry := &cobra.Command{
		Use:   "registry",
		Short: "Show owner, escrow and book count",
		Args:  cobra.NoArgs,
		RunE: runQuery(opts, func(args []string) (string, error) {
			return "/registry", nil
		}),
	}

	return []*cobra.Command{book, earnings, purchaser, balance, account, authorized, registry}
}

// addressArg returns the explicit address argument or the key's own address.
func addressArg(opts *options, args []string) (types.Address, error) {
	if len(args) == 1 {
		return types.ParseAddress(args[0])
	}
	id, err := identity.LoadIdentity(opts.keyFile)
	if err != nil {
		return types.Address{}, err
	}
	return id.Address(), nil
}

func genesisCommand() *cobra.Command {
	var (
		owner    string
		escrow   string
		accounts []string
		tmHome   string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Build the registry genesis app state",
		Long: "Builds the app_state for a new chain. With --tm-home it is written into " +
			"Tendermint's genesis.json; otherwise it is printed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := abci.Genesis{Accounts: make(map[types.Address]*big.Int)}

			var err error
			if g.Owner, err = types.ParseAddress(owner); err != nil {
				return fmt.Errorf("--owner: %w", err)
			}
			if escrow != "" {
				if g.Escrow, err = types.ParseAddress(escrow); err != nil {
					return fmt.Errorf("--escrow: %w", err)
				}
			}
			for _, entry := range accounts {
				addr, amount, ok := strings.Cut(entry, "=")
				if !ok {
					return fmt.Errorf("--account %q: want address=amount", entry)
				}
				a, err := types.ParseAddress(addr)
				if err != nil {
					return fmt.Errorf("--account %q: %w", entry, err)
				}
				v, err := types.ParseAmount(amount)
				if err != nil {
					return fmt.Errorf("--account %q: %w", entry, err)
				}
				g.Accounts[a] = v
			}

			raw, err := abci.MarshalGenesis(g)
			if err != nil {
				return err
			}
			if _, err := abci.ParseGenesis(raw); err != nil {
				return err
			}

			if tmHome == "" {
				return printJSON(cmd.OutOrStdout(), json.RawMessage(raw))
			}
			if err := tendermint.SetGenesisAppState(tmHome, raw, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote app_state to %s\n", tmHome)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "registry owner address")
	cmd.Flags().StringVar(&escrow, "escrow", "", "escrow account address (default derived)")
	cmd.Flags().StringArrayVar(&accounts, "account", nil, "prefunded account as address=amount; repeatable")
	cmd.Flags().StringVar(&tmHome, "tm-home", os.Getenv("TMHOME"), "Tendermint home to update")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing app_state")
	cmd.MarkFlagRequired("owner")
	return cmd
}
