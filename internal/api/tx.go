package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"pubreg.chain/pubreg/internal/abci"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

const maxTxBody = 64 << 10

// txStatus maps an ABCI result code to an HTTP status.
func txStatus(code uint32) int {
	switch code {
	case abci.CodeTypeUnauthorized, abci.CodeTypeAuthorMismatch:
		return http.StatusForbidden
	case abci.CodeTypeInsufficientPayment, abci.CodeTypeInsufficientFunds:
		return http.StatusPaymentRequired
	case abci.CodeTypeBookNotFound:
		return http.StatusNotFound
	case abci.CodeTypeBadNonce:
		return http.StatusConflict
	case abci.CodeTypeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// @Title: Submit Transaction
// @Route: POST /api/tx?commit=true
// @Description: Relays a signed transaction to consensus. With commit=true waits for the block and returns the execution result
// @Response: {"hash": "...", "height": 12, "data": {"book_id": 1}}
func (s *Service) HandleSubmitTx(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.writeError(w, http.StatusServiceUnavailable, "transaction relay not configured")
		return
	}

	var signedTx types.SignedTransaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBody)).Decode(&signedTx); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid signed transaction")
		return
	}
	if !signedTx.Verify() {
		s.writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}
	tx, err := signedTx.GetTransaction()
	if err != nil || !tx.Type.Known() {
		s.writeError(w, http.StatusBadRequest, "invalid transaction body")
		return
	}

	commit := r.URL.Query().Get("commit") == "true"
	res, err := s.broadcaster.BroadcastSignedTransaction(r.Context(), &signedTx, commit)
	if err != nil {
		var txErr *tendermint.TxError
		if errors.As(err, &txErr) {
			s.logger.Warning(fmt.Sprintf("API: %s from %s rejected: %s", tx.Type, signedTx.Sender(), txErr.Log))
			s.writeJSON(w, txStatus(txErr.Code), map[string]interface{}{
				"error": txErr.Log,
				"code":  txErr.Code,
				"phase": txErr.Phase,
			})
			return
		}
		if errors.Is(err, tendermint.ErrOutcomeUnknown) {
			s.logger.Warning(fmt.Sprintf("API: Lost contact while relaying %s from %s: %v", tx.Type, signedTx.Sender(), err))
			s.writeError(w, http.StatusGatewayTimeout, "transaction outcome unknown; check the account nonce before resubmitting")
			return
		}
		s.logger.Error(fmt.Sprintf("API: Failed to relay %s: %v", tx.Type, err))
		s.writeError(w, http.StatusBadGateway, "failed to reach consensus node")
		return
	}

	s.logger.Info(fmt.Sprintf("API: Relayed %s from %s", tx.Type, signedTx.Sender()))
	status := http.StatusAccepted
	if commit {
		status = http.StatusOK
	}
	s.writeJSON(w, status, res)
}

// @Title: Stream Notifications
// @Route: GET /api/events?author=0x...
// @Description: Websocket stream of committed registry notifications, optionally for one author
// @Response: {"type": "book_registered", "book_id": 1, "author": "0x...", "height": 3, "tx_id": "..."}
func (s *Service) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}
	s.events.ServeWS(w, r)
}
