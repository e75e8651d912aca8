package store

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/ledger"
	"pubreg.chain/pubreg/internal/types"
)

var (
	owner  = types.DeriveAddress("owner")
	author = types.DeriveAddress("author")
	reader = types.DeriveAddress("reader")
	escrow = types.DeriveAddress("escrow")
)

func sampleState(height int64) ChainState {
	return ChainState{
		Height:  height,
		AppHash: []byte{0xde, 0xad, 0xbe, 0xef},
		Escrow:  escrow,
		Registry: ledger.Snapshot{
			Owner:      owner,
			LastBookID: 2,
			Books: []types.Book{
				{ID: 1, Title: "Twilight", AuthorName: "Stephenie Meyer", AuthorAddress: author,
					IPFSHash: "Qm1", Price: big.NewInt(10), Earnings: big.NewInt(20)},
				{ID: 2, Title: "Drafts", AuthorAddress: author, Price: big.NewInt(0), Earnings: big.NewInt(0)},
			},
			Purchases:  []ledger.Purchase{{BookID: 1, Purchaser: reader}},
			Authorized: []types.Address{owner},
			Balances:   []ledger.Balance{{Author: author, Amount: big.NewInt(20)}},
			Surplus:    big.NewInt(3),
		},
		Accounts: []bank.Account{
			{Address: reader, Balance: big.NewInt(77), Nonce: 4},
		},
	}
}

func bookStrings(books []types.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s", b.ID, b.Title, b.AuthorName,
			b.AuthorAddress, b.IPFSHash, b.Price, b.Earnings)
	}
	return out
}

func TestLoadEmptyStore(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "pubreg.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load()
	assert.True(t, errors.Is(err, ErrNoState))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "pubreg.db"))
	require.NoError(t, err)
	defer s.Close()

	want := sampleState(7)
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want.Height, got.Height)
	assert.Equal(t, want.AppHash, got.AppHash)
	assert.Equal(t, want.Escrow, got.Escrow)
	assert.Equal(t, want.Registry.Owner, got.Registry.Owner)
	assert.Equal(t, want.Registry.LastBookID, got.Registry.LastBookID)
	assert.Equal(t, bookStrings(want.Registry.Books), bookStrings(got.Registry.Books))
	assert.Equal(t, want.Registry.Purchases, got.Registry.Purchases)
	assert.Equal(t, want.Registry.Authorized, got.Registry.Authorized)
	require.Len(t, got.Registry.Balances, 1)
	assert.Equal(t, author, got.Registry.Balances[0].Author)
	assert.Equal(t, "20", got.Registry.Balances[0].Amount.String())
	assert.Equal(t, 0, want.Registry.Surplus.Cmp(got.Registry.Surplus))
	require.Len(t, got.Accounts, 1)
	assert.Equal(t, reader, got.Accounts[0].Address)
	assert.Equal(t, uint64(4), got.Accounts[0].Nonce)
	assert.Equal(t, "77", got.Accounts[0].Balance.String())
}

func TestSaveReplacesPreviousState(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "pubreg.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(sampleState(1)))

	next := sampleState(2)
	next.Registry.Books = next.Registry.Books[:1]
	next.Registry.Purchases = nil
	require.NoError(t, s.Save(next))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Height)
	assert.Len(t, got.Registry.Books, 1)
	assert.Empty(t, got.Registry.Purchases)
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubreg.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(sampleState(9)))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Height)

	reg := ledger.Restore(got.Registry, ledger.NewAccountPolicy(got.Registry.Authorized...), ledger.Env{})
	assert.True(t, reg.CheckPurchaser(1, reader))
	assert.Equal(t, "20", reg.GetBookEarnings(1).String())
}

func TestBackupCurrentCreatesAndPrunesBackups(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pubreg.db")

	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(sampleState(1)))

	backupPath, err := s.BackupCurrent(10)
	require.NoError(t, err)
	assert.Equal(t, ".db", filepath.Ext(backupPath))
	assert.Equal(t, filepath.Join(dir, "backups"), filepath.Dir(backupPath))
	_, err = os.Stat(backupPath)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		_, err := s.BackupCurrent(10)
		require.NoError(t, err, "backup iteration %d", i)
		require.NoError(t, s.Save(sampleState(int64(i+2))))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	var count int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pubreg-") && strings.HasSuffix(e.Name(), ".db") {
			count++
		}
	}
	assert.LessOrEqual(t, count, 10)
}

func TestBackupWithoutDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pubreg.db")

	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.Remove(dbPath))
	path, err := s.BackupCurrent(5)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestNewStoreRecoversFromCorruptDBWithoutBackups(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pubreg.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("this is not sqlite"), 0o600))

	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load()
	assert.True(t, errors.Is(err, ErrNoState))
	require.NoError(t, s.Save(sampleState(1)))
}

func TestNewStoreRestoresLatestBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pubreg.db")

	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Save(sampleState(5)))
	_, err = s.BackupCurrent(20)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, os.WriteFile(dbPath, []byte("corrupt"), 0o600))

	s, err = NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Height)
	assert.Equal(t, "Twilight", got.Registry.Books[0].Title)
}
