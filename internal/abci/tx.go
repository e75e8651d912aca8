package abci

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"

	abci "github.com/tendermint/tendermint/abci/types"

	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/ledger"
	"pubreg.chain/pubreg/internal/types"
)

const (
	CodeTypeOK                  uint32 = 0
	CodeTypeEncodingError       uint32 = 1
	CodeTypeAuthError           uint32 = 2
	CodeTypeInvalidTx           uint32 = 3
	CodeTypeUnauthorized        uint32 = 4
	CodeTypeAuthorMismatch      uint32 = 5
	CodeTypeInsufficientPayment uint32 = 6
	CodeTypeTransferFailed      uint32 = 7
	CodeTypeInsufficientFunds   uint32 = 8
	CodeTypeBadNonce            uint32 = 9
	CodeTypeBookNotFound        uint32 = 10
)

// ErrNotInitialized is returned by reads before InitChain or LoadState.
var ErrNotInitialized = errors.New("chain not initialized")

var errPayload = errors.New("invalid payload")

// ErrorCode maps an execution error to its ABCI result code.
func ErrorCode(err error) uint32 {
	switch {
	case err == nil:
		return CodeTypeOK
	case errors.Is(err, errPayload):
		return CodeTypeEncodingError
	case errors.Is(err, ledger.ErrUnauthorized):
		return CodeTypeUnauthorized
	case errors.Is(err, ledger.ErrAuthorMismatch):
		return CodeTypeAuthorMismatch
	case errors.Is(err, ledger.ErrInsufficientPayment):
		return CodeTypeInsufficientPayment
	case errors.Is(err, ledger.ErrTransferFailed):
		return CodeTypeTransferFailed
	case errors.Is(err, bank.ErrInsufficientFunds):
		return CodeTypeInsufficientFunds
	case errors.Is(err, ledger.ErrBookNotFound):
		return CodeTypeBookNotFound
	default:
		return CodeTypeInvalidTx
	}
}

// decodeTx unpacks and verifies a signed transaction. On failure the
// returned code says why.
func decodeTx(raw []byte) (*types.SignedTransaction, *types.Transaction, uint32, string) {
	var signedTx types.SignedTransaction
	if err := json.Unmarshal(raw, &signedTx); err != nil {
		return nil, nil, CodeTypeEncodingError, "failed to decode signed tx"
	}
	if !signedTx.Verify() {
		return nil, nil, CodeTypeAuthError, "invalid signature"
	}
	tx, err := signedTx.GetTransaction()
	if err != nil {
		return nil, nil, CodeTypeEncodingError, "failed to decode inner tx"
	}
	if !tx.Type.Known() {
		return nil, nil, CodeTypeInvalidTx, fmt.Sprintf("unknown transaction type %q", tx.Type)
	}
	return &signedTx, tx, CodeTypeOK, ""
}

// attachedValue parses the transaction value and rejects values on
// non-payable types.
func attachedValue(tx *types.Transaction) (*big.Int, uint32, string) {
	value, err := tx.Amount()
	if err != nil {
		return nil, CodeTypeEncodingError, fmt.Sprintf("invalid value: %v", err)
	}
	if value.Sign() != 0 && !tx.Type.Payable() {
		return nil, CodeTypeInvalidTx, fmt.Sprintf("%s does not accept a value", tx.Type)
	}
	return value, CodeTypeOK, ""
}

func (app *ABCIApplication) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	signedTx, tx, code, msg := decodeTx(req.Tx)
	if code != CodeTypeOK {
		return abci.ResponseCheckTx{Code: code, Log: msg}
	}
	value, code, msg := attachedValue(tx)
	if code != CodeTypeOK {
		return abci.ResponseCheckTx{Code: code, Log: msg}
	}

	app.mu.RLock()
	defer app.mu.RUnlock()

	if app.registry == nil {
		return abci.ResponseCheckTx{Code: CodeTypeInvalidTx, Log: ErrNotInitialized.Error()}
	}
	sender := signedTx.Sender()
	if expected := app.bank.Nonce(sender); tx.Nonce < expected {
		return abci.ResponseCheckTx{Code: CodeTypeBadNonce, Log: fmt.Sprintf("nonce %d already used, next is %d", tx.Nonce, expected)}
	}
	if balance := app.bank.Balance(sender); balance.Cmp(value) < 0 {
		return abci.ResponseCheckTx{Code: CodeTypeInsufficientFunds, Log: fmt.Sprintf("%s holds %s, value is %s", sender, balance, value)}
	}
	return abci.ResponseCheckTx{Code: CodeTypeOK, GasWanted: 1}
}

func (app *ABCIApplication) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	signedTx, tx, code, msg := decodeTx(req.Tx)
	if code != CodeTypeOK {
		return abci.ResponseDeliverTx{Code: code, Log: msg}
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.registry == nil {
		return abci.ResponseDeliverTx{Code: CodeTypeInvalidTx, Log: ErrNotInitialized.Error()}
	}

	sender := signedTx.Sender()
	if expected := app.bank.Nonce(sender); tx.Nonce != expected {
		return abci.ResponseDeliverTx{Code: CodeTypeBadNonce, Log: fmt.Sprintf("nonce %d, expected %d", tx.Nonce, expected)}
	}

	// Past this point the nonce is consumed whatever the outcome.
	value, code, msg := attachedValue(tx)
	if code != CodeTypeOK {
		app.bank.IncrementNonce(sender)
		return abci.ResponseDeliverTx{Code: code, Log: msg}
	}

	work := app.bank.Clone()
	sink := &txEvents{height: app.blockHeight, txID: tx.ID}
	reg := app.registry.Fork(ledger.Env{Payout: work.Payout(app.escrow), Events: sink})

	var data []byte
	err := work.Transfer(sender, app.escrow, value)
	if err == nil {
		data, err = execute(reg, sender, tx, value)
	}
	if err != nil {
		app.bank.IncrementNonce(sender)
		log.Printf("INFO: Rejected %s from %s: %v", tx.Type, sender, err)
		return abci.ResponseDeliverTx{Code: ErrorCode(err), Log: err.Error()}
	}

	work.IncrementNonce(sender)
	app.bank = work
	app.registry = reg
	app.pending = append(app.pending, sink.notes...)

	log.Printf("INFO: Executed %s from %s (tx %s)", tx.Type, sender, tx.ID)
	app.logInfo(fmt.Sprintf("%s by %s", tx.Type, sender))

	return abci.ResponseDeliverTx{Code: CodeTypeOK, Data: data, Events: sink.abciEvents()}
}

// txEvents collects notifications raised while executing one transaction.
type txEvents struct {
	height int64
	txID   string
	notes  []types.Notification
}

func (e *txEvents) Publish(n types.Notification) {
	n.Height = e.height
	n.TxID = e.txID
	e.notes = append(e.notes, n)
}

func (e *txEvents) abciEvents() []abci.Event {
	events := make([]abci.Event, 0, len(e.notes))
	for _, n := range e.notes {
		events = append(events, abci.Event{
			Type: n.Type,
			Attributes: []abci.EventAttribute{
				{Key: []byte("book_id"), Value: []byte(strconv.FormatUint(n.BookID, 10)), Index: true},
				{Key: []byte("author"), Value: []byte(n.Author.Hex()), Index: true},
			},
		})
	}
	return events
}

// TxResult is the JSON Data of a successful DeliverTx.
type TxResult struct {
	BookID uint64   `json:"book_id,omitempty"`
	Amount *big.Int `json:"amount,omitempty"`
}

func decodePayload(tx *types.Transaction, v interface{}) error {
	if err := tx.DecodePayload(v); err != nil {
		return fmt.Errorf("%w: %s: %v", errPayload, tx.Type, err)
	}
	return nil
}

func parsePrice(s string) (*big.Int, error) {
	price, err := types.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("%w: price: %v", errPayload, err)
	}
	return price, nil
}

// execute dispatches tx to the registry. reg is a working copy; the caller
// discards it when an error is returned.
func execute(reg *ledger.Registry, sender types.Address, tx *types.Transaction, value *big.Int) ([]byte, error) {
	var res TxResult

	switch tx.Type {
	case types.TxPublishBook:
		var p types.PublishBookPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		price, err := parsePrice(p.Price)
		if err != nil {
			return nil, err
		}
		if res.BookID, err = reg.PublishBook(sender, p.Title, p.AuthorName, p.IPFSHash, price); err != nil {
			return nil, err
		}

	case types.TxPublishBookFor:
		var p types.PublishBookForPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		price, err := parsePrice(p.Price)
		if err != nil {
			return nil, err
		}
		if res.BookID, err = reg.PublishBookFor(sender, p.Title, p.AuthorName, p.IPFSHash, price, p.Author); err != nil {
			return nil, err
		}

	case types.TxUpdateBook:
		var p types.UpdateBookPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		price, err := parsePrice(p.Price)
		if err != nil {
			return nil, err
		}
		if err := reg.UpdateBookInfo(sender, p.BookID, p.Title, p.IPFSHash, price); err != nil {
			return nil, err
		}
		res.BookID = p.BookID

	case types.TxUpdateBookFor:
		var p types.UpdateBookForPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		price, err := parsePrice(p.Price)
		if err != nil {
			return nil, err
		}
		if err := reg.UpdateBookInfoFor(sender, p.BookID, p.Title, p.IPFSHash, price, p.Author); err != nil {
			return nil, err
		}
		res.BookID = p.BookID

	case types.TxDeleteBook:
		var p types.DeleteBookPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		if err := reg.DeleteBook(sender, p.BookID); err != nil {
			return nil, err
		}
		res.BookID = p.BookID

	case types.TxDeleteBookFor:
		var p types.DeleteBookForPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		if err := reg.DeleteBookFor(sender, p.BookID, p.Author); err != nil {
			return nil, err
		}
		res.BookID = p.BookID

	case types.TxPurchaseBook:
		var p types.PurchaseBookPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		if err := reg.PurchaseBook(sender, p.BookID, value); err != nil {
			return nil, err
		}
		res.BookID = p.BookID

	case types.TxGiftBook:
		var p types.GiftBookPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		if err := reg.GiftBook(sender, p.BookID, p.Recipient, value); err != nil {
			return nil, err
		}
		res.BookID = p.BookID

	case types.TxWithdrawFunds:
		amount, err := reg.WithdrawFunds(sender)
		if err != nil {
			return nil, err
		}
		res.Amount = amount

	case types.TxWithdrawFundsFor:
		var p types.WithdrawFundsForPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		amount, err := reg.WithdrawFundsFor(sender, p.Author)
		if err != nil {
			return nil, err
		}
		res.Amount = amount

	case types.TxAddAuthorized, types.TxRemoveAuthorized:
		var p types.AuthorizationPayload
		if err := decodePayload(tx, &p); err != nil {
			return nil, err
		}
		var err error
		if tx.Type == types.TxAddAuthorized {
			err = reg.AddAuthorizedAccount(sender, p.Account)
		} else {
			err = reg.RemoveAuthorizedAccount(sender, p.Account)
		}
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	return json.Marshal(res)
}
