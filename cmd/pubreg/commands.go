package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/spf13/cobra"

	"pubreg.chain/pubreg/internal/types"
)

func parseBookID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid book id %q", s)
	}
	return id, nil
}

func parsePrice(s string) (string, error) {
	p, err := types.ParseAmount(s)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", s, err)
	}
	return p.String(), nil
}

func bookCommands(opts *options) []*cobra.Command {
	publish := &cobra.Command{
		Use:   "publish <title> <author-name> <ipfs-hash> <price>",
		Short: "Publish a book with yourself as author",
		Args:  cobra.ExactArgs(4),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			p, err := publishPayload(args)
			return types.TxPublishBook, nil, p, err
		}),
	}

	publishFor := &cobra.Command{
		Use:   "publish-for <title> <author-name> <ipfs-hash> <price> <author>",
		Short: "Publish a book on behalf of an author",
		Args:  cobra.ExactArgs(5),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			p, err := publishPayload(args[:4])
			if err != nil {
				return "", nil, nil, err
			}
			author, err := types.ParseAddress(args[4])
			return types.TxPublishBookFor, nil, types.PublishBookForPayload{PublishBookPayload: p, Author: author}, err
		}),
	}

	update := &cobra.Command{
		Use:   "update <book-id> <title> <ipfs-hash> <price>",
		Short: "Replace a book's title, content hash and price",
		Args:  cobra.ExactArgs(4),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			p, err := updatePayload(args)
			return types.TxUpdateBook, nil, p, err
		}),
	}

	updateFor := &cobra.Command{
		Use:   "update-for <book-id> <title> <ipfs-hash> <price> <author>",
		Short: "Update a book on behalf of its author",
		Args:  cobra.ExactArgs(5),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			p, err := updatePayload(args[:4])
			if err != nil {
				return "", nil, nil, err
			}
			author, err := types.ParseAddress(args[4])
			return types.TxUpdateBookFor, nil, types.UpdateBookForPayload{UpdateBookPayload: p, Author: author}, err
		}),
	}

	del := &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete one of your books",
		Args:  cobra.ExactArgs(1),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			id, err := parseBookID(args[0])
			return types.TxDeleteBook, nil, types.DeleteBookPayload{BookID: id}, err
		}),
	}

	delFor := &cobra.Command{
		Use:   "delete-for <book-id> <author>",
		Short: "Delete a book on behalf of its author",
		Args:  cobra.ExactArgs(2),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			id, err := parseBookID(args[0])
			if err != nil {
				return "", nil, nil, err
			}
			author, err := types.ParseAddress(args[1])
			return types.TxDeleteBookFor, nil, types.DeleteBookForPayload{BookID: id, Author: author}, err
		}),
	}

	return []*cobra.Command{publish, publishFor, update, updateFor, del, delFor}
}

func publishPayload(args []string) (types.PublishBookPayload, error) {
	price, err := parsePrice(args[3])
	if err != nil {
		return types.PublishBookPayload{}, err
	}
	return types.PublishBookPayload{Title: args[0], AuthorName: args[1], IPFSHash: args[2], Price: price}, nil
}

func updatePayload(args []string) (types.UpdateBookPayload, error) {
	id, err := parseBookID(args[0])
	if err != nil {
		return types.UpdateBookPayload{}, err
	}
	price, err := parsePrice(args[3])
	if err != nil {
		return types.UpdateBookPayload{}, err
	}
	return types.UpdateBookPayload{BookID: id, Title: args[1], IPFSHash: args[2], Price: price}, nil
}

func paymentCommands(opts *options) []*cobra.Command {
	var purchaseValue, giftValue string

	purchase := &cobra.Command{
		Use:   "purchase <book-id>",
		Short: "Buy a book; pays the listed price unless --value is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			return payAndSubmit(cmd, opts, id, purchaseValue, types.TxPurchaseBook, types.PurchaseBookPayload{BookID: id})
		},
	}
	purchase.Flags().StringVar(&purchaseValue, "value", "", "amount to attach")

	gift := &cobra.Command{
		Use:   "gift <book-id> <recipient>",
		Short: "Buy a book for someone else",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			recipient, err := types.ParseAddress(args[1])
			if err != nil {
				return err
			}
			return payAndSubmit(cmd, opts, id, giftValue, types.TxGiftBook, types.GiftBookPayload{BookID: id, Recipient: recipient})
		},
	}
	gift.Flags().StringVar(&giftValue, "value", "", "amount to attach")

	withdraw := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw your author balance",
		Args:  cobra.NoArgs,
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			return types.TxWithdrawFunds, nil, types.WithdrawFundsPayload{}, nil
		}),
	}

	withdrawFor := &cobra.Command{
		Use:   "withdraw-for <author>",
		Short: "Pay out an author's balance to the author",
		Args:  cobra.ExactArgs(1),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			author, err := types.ParseAddress(args[0])
			return types.TxWithdrawFundsFor, nil, types.WithdrawFundsForPayload{Author: author}, err
		}),
	}

	return []*cobra.Command{purchase, gift, withdraw, withdrawFor}
}

func payAndSubmit(cmd *cobra.Command, opts *options, bookID uint64, rawValue string, txType types.TransactionType, payload interface{}) error {
	s, err := opts.session()
	if err != nil {
		return err
	}
	value, err := resolveValue(cmd.Context(), s, bookID, rawValue)
	if err != nil {
		return err
	}
	res, err := s.submit(cmd.Context(), txType, value, payload)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

// resolveValue parses an explicit --value or falls back to the book's price.
func resolveValue(ctx context.Context, s *session, bookID uint64, raw string) (*big.Int, error) {
	if raw != "" {
		v, err := types.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", raw, err)
		}
		return v, nil
	}
	var book types.Book
	if err := s.query(ctx, fmt.Sprintf("/book/%d", bookID), &book); err != nil {
		return nil, err
	}
	if !book.Exists() {
		return nil, fmt.Errorf("book %d not found", bookID)
	}
	return book.Price, nil
}

func authorizationCommands(opts *options) []*cobra.Command {
	authorize := &cobra.Command{
		Use:   "authorize <address>",
		Short: "Allow an address to act for any author (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			a, err := types.ParseAddress(args[0])
			return types.TxAddAuthorized, nil, types.AuthorizationPayload{Account: a}, err
		}),
	}

	revoke := &cobra.Command{
		Use:   "revoke <address>",
		Short: "Remove an address's delegated rights (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: runTx(opts, func(args []string) (types.TransactionType, *big.Int, interface{}, error) {
			a, err := types.ParseAddress(args[0])
			return types.TxRemoveAuthorized, nil, types.AuthorizationPayload{Account: a}, err
		}),
	}

	return []*cobra.Command{authorize, revoke}
}
