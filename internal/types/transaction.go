package types

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// TransactionType names a registry operation carried by a transaction.
type TransactionType string

const (
	TxPublishBook      TransactionType = "publish_book"
	TxPublishBookFor   TransactionType = "publish_book_for"
	TxUpdateBook       TransactionType = "update_book"
	TxUpdateBookFor    TransactionType = "update_book_for"
	TxDeleteBook       TransactionType = "delete_book"
	TxDeleteBookFor    TransactionType = "delete_book_for"
	TxPurchaseBook     TransactionType = "purchase_book"
	TxGiftBook         TransactionType = "gift_book"
	TxWithdrawFunds    TransactionType = "withdraw_funds"
	TxWithdrawFundsFor TransactionType = "withdraw_funds_for"
	TxAddAuthorized    TransactionType = "add_authorized"
	TxRemoveAuthorized TransactionType = "remove_authorized"
)

// Payable reports whether the transaction type may carry a value.
func (t TransactionType) Payable() bool {
	return t == TxPurchaseBook || t == TxGiftBook
}

// Known reports whether t is a transaction type the registry understands.
func (t TransactionType) Known() bool {
	switch t {
	case TxPublishBook, TxPublishBookFor, TxUpdateBook, TxUpdateBookFor,
		TxDeleteBook, TxDeleteBookFor, TxPurchaseBook, TxGiftBook,
		TxWithdrawFunds, TxWithdrawFundsFor, TxAddAuthorized, TxRemoveAuthorized:
		return true
	}
	return false
}

// Transaction is the unsigned body of a registry call.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Nonce     uint64          `json:"nonce"`
	Value     string          `json:"value,omitempty"` // native amount attached, base 10
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewTransaction builds a transaction with a fresh ID and the payload
// marshalled to JSON.
func NewTransaction(txType TransactionType, nonce uint64, value *big.Int, payload interface{}) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", txType, err)
	}
	tx := &Transaction{
		ID:        uuid.New().String(),
		Type:      txType,
		Nonce:     nonce,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
	if value != nil && value.Sign() != 0 {
		tx.Value = value.String()
	}
	return tx, nil
}

// Amount returns the attached value.
func (tx *Transaction) Amount() (*big.Int, error) {
	return ParseAmount(tx.Value)
}

// DecodePayload unmarshals the payload into v.
func (tx *Transaction) DecodePayload(v interface{}) error {
	if len(tx.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(tx.Payload, v)
}

// Signer is anything that can sign on behalf of an ed25519 key.
type Signer interface {
	Sign(message []byte) []byte
	PublicKey() ed25519.PublicKey
}

// SignedTransaction carries the marshalled transaction with its signature.
type SignedTransaction struct {
	Tx        []byte            `json:"tx"`
	PublicKey ed25519.PublicKey `json:"public_key"`
	Signature []byte            `json:"signature"`
}

// Sign marshals the transaction and signs the bytes.
func (tx *Transaction) Sign(signer Signer) (*SignedTransaction, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	return &SignedTransaction{
		Tx:        body,
		PublicKey: signer.PublicKey(),
		Signature: signer.Sign(body),
	}, nil
}

// Verify checks the signature over the transaction bytes.
func (s *SignedTransaction) Verify() bool {
	if len(s.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(s.PublicKey, s.Tx, s.Signature)
}

// Sender is the address of the signing key.
func (s *SignedTransaction) Sender() Address {
	return AddressFromPublicKey(s.PublicKey)
}

// GetTransaction decodes the inner transaction.
func (s *SignedTransaction) GetTransaction() (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(s.Tx, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Payloads. Amount fields are base-10 strings.

type PublishBookPayload struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	IPFSHash   string `json:"ipfs_hash"`
	Price      string `json:"price"`
}

type PublishBookForPayload struct {
	PublishBookPayload
	Author Address `json:"author"`
}

type UpdateBookPayload struct {
	BookID   uint64 `json:"book_id"`
	Title    string `json:"title"`
	IPFSHash string `json:"ipfs_hash"`
	Price    string `json:"price"`
}

type UpdateBookForPayload struct {
	UpdateBookPayload
	Author Address `json:"author"`
}

type DeleteBookPayload struct {
	BookID uint64 `json:"book_id"`
}

type DeleteBookForPayload struct {
	BookID uint64  `json:"book_id"`
	Author Address `json:"author"`
}

type PurchaseBookPayload struct {
	BookID uint64 `json:"book_id"`
}

type GiftBookPayload struct {
	BookID    uint64  `json:"book_id"`
	Recipient Address `json:"recipient"`
}

// WithdrawFundsPayload is empty; withdraw_funds pays the signer.
type WithdrawFundsPayload struct{}

type WithdrawFundsForPayload struct {
	Author Address `json:"author"`
}

// AuthorizationPayload is shared by add_authorized and remove_authorized.
type AuthorizationPayload struct {
	Account Address `json:"account"`
}
