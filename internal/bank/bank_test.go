package bank

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubreg.chain/pubreg/internal/types"
)

var (
	alice  = types.DeriveAddress("bank/alice")
	bob    = types.DeriveAddress("bank/bob")
	escrow = types.DeriveAddress("bank/escrow")
)

func TestTransfer(t *testing.T) {
	b := New()
	require.NoError(t, b.Credit(alice, big.NewInt(100)))

	require.NoError(t, b.Transfer(alice, bob, big.NewInt(40)))
	assert.Equal(t, int64(60), b.Balance(alice).Int64())
	assert.Equal(t, int64(40), b.Balance(bob).Int64())

	err := b.Transfer(alice, bob, big.NewInt(61))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(60), b.Balance(alice).Int64())
	assert.Equal(t, int64(40), b.Balance(bob).Int64())

	require.ErrorIs(t, b.Transfer(alice, types.ZeroAddress, big.NewInt(1)), ErrInvalidRecipient)
	require.ErrorIs(t, b.Transfer(alice, bob, big.NewInt(-1)), ErrInvalidAmount)
	require.NoError(t, b.Transfer(bob, alice, new(big.Int)))
}

func TestCreditRejectsNegative(t *testing.T) {
	b := New()
	require.ErrorIs(t, b.Credit(alice, big.NewInt(-5)), ErrInvalidAmount)
	require.ErrorIs(t, b.Credit(alice, nil), ErrInvalidAmount)
}

func TestNonces(t *testing.T) {
	b := New()
	assert.Equal(t, uint64(0), b.Nonce(alice))
	b.IncrementNonce(alice)
	b.IncrementNonce(alice)
	assert.Equal(t, uint64(2), b.Nonce(alice))
	assert.Equal(t, uint64(0), b.Nonce(bob))
}

func TestCloneIsIndependent(t *testing.T) {
	b := New()
	require.NoError(t, b.Credit(alice, big.NewInt(10)))
	c := b.Clone()
	require.NoError(t, c.Transfer(alice, bob, big.NewInt(10)))
	c.IncrementNonce(alice)

	assert.Equal(t, int64(10), b.Balance(alice).Int64())
	assert.Equal(t, uint64(0), b.Nonce(alice))
	assert.Equal(t, int64(10), c.Balance(bob).Int64())
}

func TestPayoutDrawsOnSource(t *testing.T) {
	b := New()
	require.NoError(t, b.Credit(escrow, big.NewInt(5)))
	p := b.Payout(escrow)

	require.NoError(t, p.Pay(alice, big.NewInt(5)))
	assert.Equal(t, int64(5), b.Balance(alice).Int64())
	require.ErrorIs(t, p.Pay(alice, big.NewInt(1)), ErrInsufficientFunds)
}

func TestFromAccountsRoundTrip(t *testing.T) {
	b := New()
	require.NoError(t, b.Credit(alice, big.NewInt(7)))
	b.IncrementNonce(bob)

	r := FromAccounts(b.Accounts())
	assert.Equal(t, b.Accounts(), r.Accounts())
	assert.Equal(t, uint64(1), r.Nonce(bob))
}
