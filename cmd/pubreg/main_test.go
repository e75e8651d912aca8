package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmabci "github.com/tendermint/tendermint/abci/types"

	"pubreg.chain/pubreg/internal/abci"
	"pubreg.chain/pubreg/internal/identity"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

// localChain runs transactions straight through an in-process application,
// one block per transaction.
type localChain struct {
	app *abci.ABCIApplication
}

func (c *localChain) ABCIQuery(ctx context.Context, path string) ([]byte, error) {
	res := c.app.Query(tmabci.RequestQuery{Path: path})
	if res.Code != abci.CodeTypeOK {
		return nil, &tendermint.TxError{Phase: "Query", Code: res.Code, Log: res.Log}
	}
	return res.Value, nil
}

func (c *localChain) BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*tendermint.BroadcastResult, error) {
	raw, err := json.Marshal(signedTx)
	if err != nil {
		return nil, err
	}
	if res := c.app.CheckTx(tmabci.RequestCheckTx{Tx: raw}); res.Code != abci.CodeTypeOK {
		return nil, &tendermint.TxError{Phase: "CheckTx", Code: res.Code, Log: res.Log}
	}
	res := c.app.DeliverTx(tmabci.RequestDeliverTx{Tx: raw})
	c.app.Commit()
	if res.Code != abci.CodeTypeOK {
		return nil, &tendermint.TxError{Phase: "DeliverTx", Code: res.Code, Log: res.Log}
	}
	return &tendermint.BroadcastResult{Hash: "local", Height: c.app.Height(), Data: res.Data}, nil
}

type cliEnv struct {
	chain  *localChain
	owner  string
	author string
	reader string
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	keys := map[string]*identity.Identity{}
	for _, name := range []string{"owner", "author", "reader"} {
		id, err := identity.CreateIdentity(filepath.Join(dir, name+".pem"))
		require.NoError(t, err)
		keys[name] = id
	}

	gen, err := abci.MarshalGenesis(abci.Genesis{
		Owner: keys["owner"].Address(),
		Accounts: map[types.Address]*big.Int{
			keys["reader"].Address(): big.NewInt(100),
		},
	})
	require.NoError(t, err)

	app := abci.NewABCIApplication()
	app.InitChain(tmabci.RequestInitChain{ChainId: "cli-test", AppStateBytes: gen})

	return &cliEnv{
		chain:  &localChain{app: app},
		owner:  filepath.Join(dir, "owner.pem"),
		author: filepath.Join(dir, "author.pem"),
		reader: filepath.Join(dir, "reader.pem"),
	}
}

func (e *cliEnv) run(t *testing.T, key string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(string) chain { return e.chain })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--key", key}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) address(t *testing.T, key string) string {
	t.Helper()
	id, err := identity.LoadIdentity(key)
	require.NoError(t, err)
	return id.Address().Hex()
}

func TestKeygenAndAddress(t *testing.T) {
	key := filepath.Join(t.TempDir(), "wallet.pem")
	cmd := newRootCmd(nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--key", key, "keygen"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Address: 0x")

	cmd = newRootCmd(nil)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--key", key, "keygen"})
	assert.ErrorIs(t, cmd.Execute(), identity.ErrKeyExists)

	id, err := identity.LoadIdentity(key)
	require.NoError(t, err)
	out.Reset()
	cmd = newRootCmd(nil)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--key", key, "address"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, id.Address().Hex()+"\n", out.String())
}

func TestPublishPurchaseWithdraw(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run(t, env.author, "publish", "Twilight", "Stephenie Meyers", "22r023r2", "10")
	require.NoError(t, err)
	assert.Contains(t, out, `"book_id": 1`)

	_, err = env.run(t, env.reader, "purchase", "1")
	require.NoError(t, err)

	out, err = env.run(t, env.reader, "purchaser", "1", env.address(t, env.reader))
	require.NoError(t, err)
	assert.Contains(t, out, `"purchased": true`)

	out, err = env.run(t, env.reader, "earnings", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"earnings": 10`)

	out, err = env.run(t, env.author, "withdraw")
	require.NoError(t, err)
	assert.Contains(t, out, `"amount": 10`)

	out, err = env.run(t, env.author, "account")
	require.NoError(t, err)
	assert.Contains(t, out, `"balance": 10`)
	assert.Contains(t, out, `"nonce": 2`)
}

func TestPurchaseWithExplicitValueBelowPrice(t *testing.T) {
	env := setupCLI(t)
	_, err := env.run(t, env.author, "publish", "Twilight", "Stephenie Meyers", "22r023r2", "10")
	require.NoError(t, err)

	_, err = env.run(t, env.reader, "purchase", "1", "--value", "5")
	var txErr *tendermint.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, abci.CodeTypeInsufficientPayment, txErr.Code)
}

func TestGiftRecordsRecipient(t *testing.T) {
	env := setupCLI(t)
	_, err := env.run(t, env.author, "publish", "Twilight", "Stephenie Meyers", "22r023r2", "10")
	require.NoError(t, err)

	friend := env.address(t, env.owner)
	_, err = env.run(t, env.reader, "gift", "1", friend)
	require.NoError(t, err)

	out, err := env.run(t, env.reader, "purchaser", "1", friend)
	require.NoError(t, err)
	assert.Contains(t, out, `"purchased": true`)

	out, err = env.run(t, env.reader, "purchaser", "1", env.address(t, env.reader))
	require.NoError(t, err)
	assert.Contains(t, out, `"purchased": false`)
}

func TestDelegatedCommands(t *testing.T) {
	env := setupCLI(t)
	author := env.address(t, env.author)
	delegate := env.address(t, env.reader)

	_, err := env.run(t, env.reader, "publish-for", "Dune", "Frank Herbert", "QmDune", "3", author)
	var txErr *tendermint.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, abci.CodeTypeUnauthorized, txErr.Code)

	_, err = env.run(t, env.owner, "authorize", delegate)
	require.NoError(t, err)

	out, err := env.run(t, env.reader, "authorized", delegate)
	require.NoError(t, err)
	assert.Contains(t, out, `"authorized": true`)

	_, err = env.run(t, env.reader, "publish-for", "Dune", "Frank Herbert", "QmDune", "3", author)
	require.NoError(t, err)

	_, err = env.run(t, env.reader, "update-for", "1", "Dune Messiah", "QmMessiah", "4", author)
	require.NoError(t, err)

	out, err = env.run(t, env.reader, "book", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Dune Messiah"`)

	_, err = env.run(t, env.reader, "delete-for", "1", author)
	require.NoError(t, err)

	_, err = env.run(t, env.owner, "revoke", delegate)
	require.NoError(t, err)

	_, err = env.run(t, env.reader, "withdraw-for", author)
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, abci.CodeTypeUnauthorized, txErr.Code)
}

func TestAuthorCommands(t *testing.T) {
	env := setupCLI(t)
	_, err := env.run(t, env.author, "publish", "Draft", "A. Writer", "QmDraft", "1")
	require.NoError(t, err)

	_, err = env.run(t, env.reader, "update", "1", "Stolen", "QmX", "0")
	var txErr *tendermint.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, abci.CodeTypeUnauthorized, txErr.Code)

	_, err = env.run(t, env.author, "update", "1", "Final", "QmFinal", "2")
	require.NoError(t, err)
	_, err = env.run(t, env.author, "delete", "1")
	require.NoError(t, err)

	_, err = env.run(t, env.reader, "purchase", "1")
	assert.ErrorContains(t, err, "book 1 not found")

	out, err := env.run(t, env.reader, "registry")
	require.NoError(t, err)
	assert.Contains(t, out, `"book_count": 1`)
}

func TestArgumentValidation(t *testing.T) {
	env := setupCLI(t)

	_, err := env.run(t, env.author, "publish", "T", "A", "H", "ten")
	assert.ErrorContains(t, err, "invalid price")

	_, err = env.run(t, env.author, "delete", "x")
	assert.ErrorContains(t, err, "invalid book id")

	_, err = env.run(t, env.author, "authorized", "not-an-address")
	assert.Error(t, err)

	_, err = env.run(t, env.author, "book")
	assert.Error(t, err)
}

func TestGenesisCommand(t *testing.T) {
	owner := types.DeriveAddress("owner")
	reader := types.DeriveAddress("reader")

	cmd := newRootCmd(nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"genesis", "--tm-home", "", "--owner", owner.Hex(), "--account", reader.Hex() + "=250"})
	require.NoError(t, cmd.Execute())

	g, err := abci.ParseGenesis(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, owner, g.Owner)
	assert.Equal(t, abci.DefaultEscrow, g.Escrow)
	assert.Equal(t, int64(250), g.Accounts[reader].Int64())

	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "genesis.json"),
		[]byte(`{"chain_id":"test","app_state":{}}`), 0644))

	cmd = newRootCmd(nil)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"genesis", "--tm-home", home, "--owner", owner.Hex()})
	require.NoError(t, cmd.Execute())

	raw, err := os.ReadFile(filepath.Join(home, "config", "genesis.json"))
	require.NoError(t, err)
	var doc struct {
		ChainID  string          `json:"chain_id"`
		AppState json.RawMessage `json:"app_state"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "test", doc.ChainID)
	g, err = abci.ParseGenesis(doc.AppState)
	require.NoError(t, err)
	assert.Equal(t, owner, g.Owner)

	cmd = newRootCmd(nil)
	cmd.SetArgs([]string{"genesis", "--owner", owner.Hex(), "--account", "bogus"})
	assert.ErrorContains(t, cmd.Execute(), "want address=amount")
}
