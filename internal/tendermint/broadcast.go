package tendermint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pubreg.chain/pubreg/internal/types"
)

const (
	defaultRPCAddr    = "http://localhost:26657"
	defaultMaxRetries = 3

	// Longer than Tendermint's default timeout_broadcast_tx_commit (10s) so
	// the node reports its own timeout first.
	defaultHTTPTimeout = 30 * time.Second
)

// ErrOutcomeUnknown wraps a transport failure during a broadcast. The node
// may or may not have accepted the transaction; query the account nonce
// before resubmitting.
var ErrOutcomeUnknown = errors.New("transaction outcome unknown")

// TxError is an application-level rejection: a non-zero CheckTx, DeliverTx
// or Query code. It is never retried.
type TxError struct {
	Phase string
	Code  uint32
	Log   string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s failed with code %d: %s", e.Phase, e.Code, e.Log)
}

// BroadcastResult is what Tendermint reports for an accepted transaction.
type BroadcastResult struct {
	Hash   string          `json:"hash"`
	Height int64           `json:"height,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// BroadcastClient talks JSON-RPC to a Tendermint node: it submits signed
// transactions and runs ABCI queries. Query transport failures are retried
// with exponential backoff; broadcasts are sent exactly once.
type BroadcastClient struct {
	rpcAddr    string
	client     *http.Client
	maxRetries uint64
}

// NewBroadcastClient creates a client for the RPC endpoint at rpcAddr
// (e.g. "http://localhost:26657").
func NewBroadcastClient(rpcAddr string) *BroadcastClient {
	if rpcAddr == "" {
		rpcAddr = defaultRPCAddr
	}
	return &BroadcastClient{
		rpcAddr:    rpcAddr,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
	}
}

// WithMaxRetries sets how many times a query transport failure is retried.
func (bc *BroadcastClient) WithMaxRetries(n uint64) *BroadcastClient {
	bc.maxRetries = n
	return bc
}

// BroadcastTxSync returns once CheckTx has passed.
func (bc *BroadcastClient) BroadcastTxSync(ctx context.Context, tx []byte) (*BroadcastResult, error) {
	var out struct {
		Code uint32 `json:"code"`
		Log  string `json:"log"`
		Hash string `json:"hash"`
	}
	if err := bc.call(ctx, "broadcast_tx_sync", map[string]interface{}{"tx": tx}, &out, false); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &TxError{Phase: "CheckTx", Code: out.Code, Log: out.Log}
	}
	return &BroadcastResult{Hash: out.Hash}, nil
}

// BroadcastTxCommit waits until the transaction is committed in a block.
func (bc *BroadcastClient) BroadcastTxCommit(ctx context.Context, tx []byte) (*BroadcastResult, error) {
	var out struct {
		CheckTx struct {
			Code uint32 `json:"code"`
			Log  string `json:"log"`
		} `json:"check_tx"`
		DeliverTx struct {
			Code uint32 `json:"code"`
			Log  string `json:"log"`
			Data []byte `json:"data"`
		} `json:"deliver_tx"`
		Hash   string `json:"hash"`
		Height int64  `json:"height,string"`
	}
	if err := bc.call(ctx, "broadcast_tx_commit", map[string]interface{}{"tx": tx}, &out, false); err != nil {
		return nil, err
	}
	if out.CheckTx.Code != 0 {
		return nil, &TxError{Phase: "CheckTx", Code: out.CheckTx.Code, Log: out.CheckTx.Log}
	}
	if out.DeliverTx.Code != 0 {
		return nil, &TxError{Phase: "DeliverTx", Code: out.DeliverTx.Code, Log: out.DeliverTx.Log}
	}
	res := &BroadcastResult{Hash: out.Hash, Height: out.Height}
	if len(out.DeliverTx.Data) > 0 {
		res.Data = out.DeliverTx.Data
	}
	return res, nil
}

// BroadcastSignedTransaction marshals signedTx and broadcasts it, waiting for
// the commit when commit is true.
func (bc *BroadcastClient) BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*BroadcastResult, error) {
	txBytes, err := json.Marshal(signedTx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if commit {
		return bc.BroadcastTxCommit(ctx, txBytes)
	}
	return bc.BroadcastTxSync(ctx, txBytes)
}

// ABCIQuery runs an application query and returns the raw response value.
func (bc *BroadcastClient) ABCIQuery(ctx context.Context, path string) ([]byte, error) {
	var out struct {
		Response struct {
			Code  uint32 `json:"code"`
			Log   string `json:"log"`
			Value []byte `json:"value"`
		} `json:"response"`
	}
	if err := bc.call(ctx, "abci_query", map[string]interface{}{"path": path}, &out, true); err != nil {
		return nil, err
	}
	if out.Response.Code != 0 {
		return nil, &TxError{Phase: "Query", Code: out.Response.Code, Log: out.Response.Log}
	}
	return out.Response.Value, nil
}

// call performs one JSON-RPC request. With retry set, transport failures are
// retried; otherwise they come back wrapped in ErrOutcomeUnknown. []byte
// params marshal as base64, which is what Tendermint expects for tx bytes.
func (bc *BroadcastClient) call(ctx context.Context, method string, params map[string]interface{}, result interface{}, retry bool) error {
	reqBytes, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	op := func() (json.RawMessage, error) {
		return bc.send(ctx, reqBytes)
	}

	var raw json.RawMessage
	if retry {
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), bc.maxRetries), ctx)
		raw, err = backoff.RetryWithData(op, policy)
	} else {
		raw, err = op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		} else if err != nil {
			err = fmt.Errorf("%s: %w: %v", method, ErrOutcomeUnknown, err)
		}
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// send posts one request. Errors the node answered with are permanent.
func (bc *BroadcastClient) send(ctx context.Context, reqBytes []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bc.rpcAddr, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := bc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send RPC request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPC response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("RPC status %d", resp.StatusCode)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    string `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to parse RPC response: %w (body: %s)", err, string(respBytes)))
	}
	if rpcResp.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("RPC error %d: %s (%s)", rpcResp.Error.Code, rpcResp.Error.Message, rpcResp.Error.Data))
	}
	return rpcResp.Result, nil
}
