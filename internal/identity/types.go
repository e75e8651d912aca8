// Package identity manages account keypairs and signing utilities. Every
// registry participant (node operator, author, buyer) holds a persistent
// ed25519 private key; the account address used throughout the ledger is
// derived from its public key. This package exposes an Identity abstraction
// for signing transactions and for reading the derived address.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"

	"pubreg.chain/pubreg/internal/types"
)

// Identity represents an account's cryptographic identity
type Identity struct {
	privateKey   ed25519.PrivateKey
	publicKey    ed25519.PublicKey
	publicKeyHex string
	address      types.Address
}

// NewIdentity creates a new Identity from a private key
func NewIdentity(privKey ed25519.PrivateKey) *Identity {
	pubKey := privKey.Public().(ed25519.PublicKey)
	return &Identity{
		privateKey:   privKey,
		publicKey:    pubKey,
		publicKeyHex: hex.EncodeToString(pubKey),
		address:      types.AddressFromPublicKey(pubKey),
	}
}

// Sign signs the provided message with the identity's private key
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.privateKey, message)
}

// Verify verifies a signature against a message using the identity's public key
func (i *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(i.publicKey, message, signature)
}

// PublicKey returns the raw public key
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.publicKey
}

// PrivateKey returns the raw private key
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.privateKey
}

// PublicKeyHex returns the hex-encoded public key string
func (i *Identity) PublicKeyHex() string {
	return i.publicKeyHex
}

// Address is the account address the registry knows this identity by.
func (i *Identity) Address() types.Address {
	return i.address
}
