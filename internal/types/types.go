// Package types defines the core domain models for the publishing registry.
// It contains the Address and Amount primitives, the Book record, and the
// notification shape emitted when a book is registered. Transaction
// envelopes and payloads live in transaction.go.
package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Version is the current version of pubreg
const Version = "0.1.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// AddressLength is the byte length of an account address.
const AddressLength = 20

// Address identifies a caller or account on the registry chain.
type Address [AddressLength]byte

// ZeroAddress is the "nobody" identity. A book whose author is the zero
// address does not exist.
var ZeroAddress Address

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// AddressFromPublicKey derives the account address of an ed25519 public key:
// the last 20 bytes of its Keccak-256 hash.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	var a Address
	copy(a[:], Keccak256(pub)[32-AddressLength:])
	return a
}

// DeriveAddress derives a well-known address from a label, used for module
// accounts such as the registry escrow.
func DeriveAddress(label string) Address {
	var a Address
	copy(a[:], Keccak256([]byte(label))[32-AddressLength:])
	return a
}

// ParseAddress parses a 0x-prefixed (or bare) 40 hex digit address.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != AddressLength*2 {
		return a, fmt.Errorf("invalid address length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address: %w", err)
	}
	copy(a[:], b)
	return a, nil
}

// Hex returns the 0x-prefixed lowercase hex form.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Amount helpers. Amounts are non-negative integers in the smallest native
// denomination and always handled as *big.Int; nil means zero.

// CopyAmount returns a copy of v that is never nil.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ParseAmount parses a base-10 amount. The empty string is zero.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// FormatAmount renders v in base 10; nil renders as "0".
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Book is a registered publication. It exists while AuthorAddress is not the
// zero address.
type Book struct {
	ID            uint64   `json:"id"`
	Title         string   `json:"title"`
	AuthorName    string   `json:"author_name"`
	AuthorAddress Address  `json:"author_address"`
	IPFSHash      string   `json:"ipfs_hash"`
	Price         *big.Int `json:"price"`
	Earnings      *big.Int `json:"earnings"`
}

// Exists reports whether the book is live.
func (b Book) Exists() bool { return !b.AuthorAddress.IsZero() }

// Clone returns a deep copy with non-nil amounts.
func (b Book) Clone() Book {
	b.Price = CopyAmount(b.Price)
	b.Earnings = CopyAmount(b.Earnings)
	return b
}

// EventBookRegistered is the only notification the registry emits.
const EventBookRegistered = "book_registered"

// Notification is an append-only record of a registry event.
type Notification struct {
	Type   string  `json:"type"`
	BookID uint64  `json:"book_id"`
	Author Address `json:"author"`
	Height int64   `json:"height,omitempty"`
	TxID   string  `json:"tx_id,omitempty"`
}
