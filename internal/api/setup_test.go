package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tmabci "github.com/tendermint/tendermint/abci/types"

	"pubreg.chain/pubreg/internal/abci"
	"pubreg.chain/pubreg/internal/identity"
	"pubreg.chain/pubreg/internal/logger"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

// mockBroadcaster records relayed transactions.
type mockBroadcaster struct {
	sent   []*types.SignedTransaction
	commit bool
	result *tendermint.BroadcastResult
	err    error
}

func (m *mockBroadcaster) BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*tendermint.BroadcastResult, error) {
	m.sent = append(m.sent, signedTx)
	m.commit = commit
	return m.result, m.err
}

type mockBackups struct {
	path string
	data []byte
	err  error
}

func (m *mockBackups) BackupCurrent(maxBackups int) (string, error) { return m.path, m.err }
func (m *mockBackups) ExportSnapshot() ([]byte, error)             { return m.data, m.err }

type mockDocs struct {
	pages map[string]string
}

func (m *mockDocs) GetDoc(ctx context.Context, name string) (string, error) {
	html, ok := m.pages[name]
	if !ok {
		return "", errors.New("missing")
	}
	return html, nil
}

func (m *mockDocs) ListDocs() ([]string, error) {
	var names []string
	for name := range m.pages {
		names = append(names, name)
	}
	return names, nil
}

type testEnv struct {
	svc         *Service
	handler     http.Handler
	app         *abci.ABCIApplication
	broadcaster *mockBroadcaster
	author      *identity.Identity
	owner       *identity.Identity
}

// setupTest builds a service over a live ABCI application holding one
// published book.
func setupTest(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	owner, err := identity.CreateIdentity(filepath.Join(dir, "owner.pem"))
	require.NoError(t, err)
	author, err := identity.CreateIdentity(filepath.Join(dir, "author.pem"))
	require.NoError(t, err)

	gen, err := abci.MarshalGenesis(abci.Genesis{
		Owner:    owner.Address(),
		Accounts: map[types.Address]*big.Int{author.Address(): big.NewInt(50)},
	})
	require.NoError(t, err)

	app := abci.NewABCIApplication()
	app.InitChain(tmabci.RequestInitChain{ChainId: "api-test", AppStateBytes: gen})

	resp := app.DeliverTx(tmabci.RequestDeliverTx{Tx: signedBytes(t, author, types.TxPublishBook, 0,
		types.PublishBookPayload{Title: "Twilight", AuthorName: "Stephenie Meyers", IPFSHash: "22r023r2", Price: "10"})})
	require.Equal(t, abci.CodeTypeOK, resp.Code, resp.Log)

	b := &mockBroadcaster{result: &tendermint.BroadcastResult{Hash: "AB12"}}
	svc := NewService(app, b, logger.New(100)).
		WithBackups(&mockBackups{path: "backups/pubreg-1.db", data: []byte("SQLite format 3")}, 5).
		WithDocs(&mockDocs{pages: map[string]string{"api.adoc": "<h1>API</h1>"}})

	return &testEnv{
		svc:         svc,
		handler:     svc.Routes(context.Background(), RouterConfig{}),
		app:         app,
		broadcaster: b,
		author:      author,
		owner:       owner,
	}
}

func signedTx(t *testing.T, id *identity.Identity, txType types.TransactionType, nonce uint64, payload interface{}) *types.SignedTransaction {
	t.Helper()
	tx, err := types.NewTransaction(txType, nonce, nil, payload)
	require.NoError(t, err)
	stx, err := tx.Sign(id)
	require.NoError(t, err)
	return stx
}

func signedBytes(t *testing.T, id *identity.Identity, txType types.TransactionType, nonce uint64, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(signedTx(t, id, txType, nonce, payload))
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
