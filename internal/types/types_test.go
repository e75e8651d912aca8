// Package types tests exercise the transaction signing envelope, address
// derivation and parsing, and amount helpers defined in internal/types.
package types_test

import (
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"

	"pubreg.chain/pubreg/internal/identity"
	"pubreg.chain/pubreg/internal/types"
)

func TestTransactionSigning(t *testing.T) {
	id, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), "test_key.pem"))
	if err != nil {
		t.Fatalf("Failed to create test identity: %v", err)
	}

	tx, err := types.NewTransaction(types.TxPurchaseBook, 3, big.NewInt(1000), types.PurchaseBookPayload{BookID: 7})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}

	signedTx, err := tx.Sign(id)
	if err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}

	if !signedTx.Verify() {
		t.Error("Failed to verify transaction signature")
	}
	if signedTx.Sender() != id.Address() {
		t.Errorf("Sender = %s, want %s", signedTx.Sender(), id.Address())
	}

	extractedTx, err := signedTx.GetTransaction()
	if err != nil {
		t.Fatalf("Failed to extract transaction: %v", err)
	}
	if extractedTx.Type != tx.Type || extractedTx.ID != tx.ID || extractedTx.Nonce != 3 {
		t.Errorf("Transaction mismatch. Got %+v, want %+v", extractedTx, tx)
	}
	value, err := extractedTx.Amount()
	if err != nil || value.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("Amount = %v (%v), want 1000", value, err)
	}

	var p types.PurchaseBookPayload
	if err := extractedTx.DecodePayload(&p); err != nil || p.BookID != 7 {
		t.Errorf("payload = %+v (%v)", p, err)
	}
}

func TestTamperedTransactionFailsVerify(t *testing.T) {
	id, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), "k.pem"))
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	tx, _ := types.NewTransaction(types.TxWithdrawFunds, 0, nil, types.WithdrawFundsPayload{})
	stx, err := tx.Sign(id)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	stx.Tx[len(stx.Tx)-2] ^= 0xff
	if stx.Verify() {
		t.Fatal("tampered transaction verified")
	}
	stx.PublicKey = stx.PublicKey[:5]
	if stx.Verify() {
		t.Fatal("short public key verified")
	}
}

func TestAddressParsing(t *testing.T) {
	a, err := types.ParseAddress("0x00000000000000000000000000000000000000AB")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if a.Hex() != "0x00000000000000000000000000000000000000ab" {
		t.Errorf("Hex = %s", a.Hex())
	}
	if _, err := types.ParseAddress("0x1234"); err == nil {
		t.Error("expected error for short address")
	}
	if _, err := types.ParseAddress("0xzz000000000000000000000000000000000000ab"); err == nil {
		t.Error("expected error for non-hex address")
	}
	if !types.ZeroAddress.IsZero() || a.IsZero() {
		t.Error("IsZero mismatch")
	}

	// Addresses are usable as JSON map keys.
	m := map[types.Address]int{a: 1}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal map: %v", err)
	}
	var back map[types.Address]int
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if back[a] != 1 {
		t.Errorf("round trip lost key: %s", raw)
	}
}

func TestDeriveAddressIsStable(t *testing.T) {
	if types.DeriveAddress("pubreg/escrow") != types.DeriveAddress("pubreg/escrow") {
		t.Fatal("DeriveAddress is not deterministic")
	}
	if types.DeriveAddress("a") == types.DeriveAddress("b") {
		t.Fatal("distinct labels collided")
	}
}

func TestParseAmount(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "0", false},
		{"1000000000000000000", "1000000000000000000", false},
		{" 42 ", "42", false},
		{"-1", "", true},
		{"1e18", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := types.ParseAmount(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q): %v", tc.in, err)
			}
			if got.String() != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
	if types.FormatAmount(nil) != "0" {
		t.Error("FormatAmount(nil) should be 0")
	}
}

func TestTransactionTypeClassification(t *testing.T) {
	if !types.TxPurchaseBook.Payable() || !types.TxGiftBook.Payable() {
		t.Error("purchase and gift must be payable")
	}
	if types.TxPublishBook.Payable() || types.TxWithdrawFunds.Payable() {
		t.Error("publish and withdraw must not be payable")
	}
	if types.TransactionType("mint").Known() {
		t.Error("unknown type reported as known")
	}
}

func TestBookExistsAndClone(t *testing.T) {
	b := types.Book{ID: 1, AuthorAddress: types.DeriveAddress("author"), Price: big.NewInt(5)}
	if !b.Exists() {
		t.Fatal("book with author should exist")
	}
	c := b.Clone()
	c.Price.SetInt64(9)
	if b.Price.Int64() != 5 {
		t.Fatal("Clone shares price")
	}
	if c.Earnings == nil || c.Earnings.Sign() != 0 {
		t.Fatal("Clone should normalise nil earnings to zero")
	}
	if (types.Book{}).Exists() {
		t.Fatal("zero book should not exist")
	}
}
