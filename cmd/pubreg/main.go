// Command pubreg is the wallet-side client for the publishing registry: it
// manages a signing key, submits registry transactions to a Tendermint node
// and reads registry state through ABCI queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pubreg.chain/pubreg/internal/identity"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

// chain is the node surface the CLI needs. *tendermint.BroadcastClient
// implements it.
type chain interface {
	ABCIQuery(ctx context.Context, path string) ([]byte, error)
	BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*tendermint.BroadcastResult, error)
}

type options struct {
	keyFile string
	rpcAddr string
	async   bool

	dial func(rpcAddr string) chain
}

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A nil dial connects to the RPC address
// given by --rpc.
func newRootCmd(dial func(string) chain) *cobra.Command {
	opts := &options{dial: dial}
	if opts.dial == nil {
		opts.dial = func(rpcAddr string) chain { return tendermint.NewBroadcastClient(rpcAddr) }
	}

	root := &cobra.Command{
		Use:           "pubreg",
		Short:         "Publishing registry client",
		Version:       types.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.keyFile, "key", envOr("PUBREG_KEY_FILE", "pubreg_key.pem"), "signing key file")
	root.PersistentFlags().StringVar(&opts.rpcAddr, "rpc", envOr("PUBREG_RPC_ADDRESS", "http://localhost:26657"), "Tendermint RPC address")
	root.PersistentFlags().BoolVar(&opts.async, "async", false, "return after CheckTx instead of waiting for the block")

	root.AddCommand(keyCommands(opts)...)
	root.AddCommand(bookCommands(opts)...)
	root.AddCommand(paymentCommands(opts)...)
	root.AddCommand(authorizationCommands(opts)...)
	root.AddCommand(queryCommands(opts)...)
	root.AddCommand(genesisCommand())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func keyCommands(opts *options) []*cobra.Command {
	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.CreateIdentity(opts.keyFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\nAddress: %s\n", opts.keyFile, id.Address())
			return nil
		},
	}

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the address of the signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.LoadIdentity(opts.keyFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Address())
			return nil
		},
	}
	return []*cobra.Command{keygen, address}
}
