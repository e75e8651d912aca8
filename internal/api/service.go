package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"pubreg.chain/pubreg/internal/abci"
	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/logger"
	"pubreg.chain/pubreg/internal/tendermint"
	"pubreg.chain/pubreg/internal/types"
)

// Reader answers registry reads. *abci.ABCIApplication implements it.
type Reader interface {
	Book(id uint64) (types.Book, error)
	Earnings(id uint64) (abci.EarningsResult, error)
	Purchaser(id uint64, addr types.Address) (abci.PurchaserResult, error)
	AuthorBalance(addr types.Address) (abci.BalanceResult, error)
	Account(addr types.Address) (bank.Account, error)
	Authorized(addr types.Address) (abci.AuthorizedResult, error)
	Registry() (abci.RegistryResult, error)
}

// Broadcaster relays signed transactions to consensus.
// *tendermint.BroadcastClient implements it.
type Broadcaster interface {
	BroadcastSignedTransaction(ctx context.Context, signedTx *types.SignedTransaction, commit bool) (*tendermint.BroadcastResult, error)
}

// Backupper snapshots the state database. *store.Store implements it.
type Backupper interface {
	BackupCurrent(maxBackups int) (string, error)
	ExportSnapshot() ([]byte, error)
}

// DocRenderer renders AsciiDoc pages. *docs.Service implements it.
type DocRenderer interface {
	GetDoc(ctx context.Context, filename string) (string, error)
	ListDocs() ([]string, error)
}

// EventStreamer serves live notifications. *events.Hub implements it.
type EventStreamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Service handles API requests
type Service struct {
	reader      Reader
	broadcaster Broadcaster
	logger      *logger.Logger

	backups    Backupper
	maxBackups int
	docs       DocRenderer
	events     EventStreamer
}

// NewService creates a new API service
func NewService(reader Reader, broadcaster Broadcaster, logger *logger.Logger) *Service {
	return &Service{
		reader:      reader,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// WithBackups enables the backup endpoints.
func (s *Service) WithBackups(b Backupper, maxBackups int) *Service {
	s.backups = b
	s.maxBackups = maxBackups
	return s
}

// WithDocs enables the documentation endpoints.
func (s *Service) WithDocs(d DocRenderer) *Service {
	s.docs = d
	return s
}

// WithEvents enables the notification stream.
func (s *Service) WithEvents(e EventStreamer) *Service {
	s.events = e
	return s
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeReadError maps a Reader failure to a response.
func (s *Service) writeReadError(w http.ResponseWriter, err error) {
	if errors.Is(err, abci.ErrNotInitialized) {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}
