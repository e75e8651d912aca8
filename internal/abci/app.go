// Package abci contains the ABCI application that connects the publishing
// registry to the Tendermint consensus engine. CheckTx validates signed
// transactions against the current state, DeliverTx executes them against
// per-transaction working copies of the ledger and native bank, and Commit
// hashes and persists the result.
package abci

import (
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"sync"

	abci "github.com/tendermint/tendermint/abci/types"

	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/ledger"
	"pubreg.chain/pubreg/internal/store"
	"pubreg.chain/pubreg/internal/types"
)

// Persister saves committed state. *store.Store implements it.
type Persister interface {
	Save(cs store.ChainState) error
}

// ActivityLog receives human-readable activity lines. *logger.Logger
// implements it.
type ActivityLog interface {
	Info(text string)
	Warning(text string)
	Error(text string)
}

// Option configures an ABCIApplication.
type Option func(*ABCIApplication)

// WithStore persists state on every Commit.
func WithStore(p Persister) Option {
	return func(app *ABCIApplication) { app.store = p }
}

// WithEvents publishes committed notifications to sink.
func WithEvents(sink ledger.EventSink) Option {
	return func(app *ABCIApplication) { app.events = sink }
}

// WithActivityLog records executed transactions to l.
func WithActivityLog(l ActivityLog) Option {
	return func(app *ABCIApplication) { app.activity = l }
}

// ABCIApplication implements the ABCI interface.
type ABCIApplication struct {
	abci.BaseApplication

	mu          sync.RWMutex
	registry    *ledger.Registry
	bank        *bank.Bank
	escrow      types.Address
	height      int64
	blockHeight int64
	appHash     []byte
	pending     []types.Notification

	store    Persister
	events   ledger.EventSink
	activity ActivityLog
}

// NewABCIApplication creates an application awaiting InitChain or
// LoadState.
func NewABCIApplication(opts ...Option) *ABCIApplication {
	app := &ABCIApplication{bank: bank.New()}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// LoadState resumes from previously committed state.
func (app *ABCIApplication) LoadState(cs *store.ChainState) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.registry = ledger.Restore(cs.Registry, nil, ledger.Env{})
	app.bank = bank.FromAccounts(cs.Accounts)
	app.escrow = cs.Escrow
	app.height = cs.Height
	app.blockHeight = cs.Height
	app.appHash = cs.AppHash
	log.Printf("INFO: Restored registry state at height %d (%d books)", cs.Height, cs.Registry.LastBookID)
}

// Height returns the last committed height.
func (app *ABCIApplication) Height() int64 {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.height
}

func (app *ABCIApplication) Info(req abci.RequestInfo) abci.ResponseInfo {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return abci.ResponseInfo{
		Data:             "pubreg",
		Version:          types.Version,
		LastBlockHeight:  app.height,
		LastBlockAppHash: app.appHash,
	}
}

func (app *ABCIApplication) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	gen, err := ParseGenesis(req.AppStateBytes)
	if err != nil {
		panic(fmt.Sprintf("invalid genesis app state: %v", err))
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	app.registry = ledger.New(gen.Owner, nil, ledger.Env{})
	app.escrow = gen.Escrow
	app.bank = bank.New()
	for addr, amount := range gen.Accounts {
		if err := app.bank.Credit(addr, amount); err != nil {
			panic(fmt.Sprintf("genesis allocation for %s: %v", addr, err))
		}
	}
	log.Printf("INFO: Initialized registry chain %s: owner %s, escrow %s, %d funded accounts",
		req.ChainId, gen.Owner, gen.Escrow, len(gen.Accounts))
	return abci.ResponseInitChain{}
}

func (app *ABCIApplication) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	app.mu.Lock()
	app.blockHeight = req.Header.Height
	app.mu.Unlock()
	return abci.ResponseBeginBlock{}
}

func (app *ABCIApplication) Commit() abci.ResponseCommit {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.registry == nil {
		return abci.ResponseCommit{}
	}

	if app.blockHeight > app.height {
		app.height = app.blockHeight
	} else {
		app.height++
	}

	snap := app.registry.Snapshot()
	accounts := app.bank.Accounts()
	hash, err := StateHash(app.escrow, snap, accounts)
	if err != nil {
		log.Printf("ERROR: Failed to hash state at height %d: %v", app.height, err)
	}
	app.appHash = hash

	if held, owed := app.bank.Balance(app.escrow), app.registry.Liabilities(); held.Cmp(owed) != 0 {
		log.Printf("WARN: Escrow %s holds %s but registry owes %s", app.escrow, held, owed)
	}

	if app.store != nil {
		cs := store.ChainState{
			Height:   app.height,
			AppHash:  hash,
			Escrow:   app.escrow,
			Registry: snap,
			Accounts: accounts,
		}
		if err := app.store.Save(cs); err != nil {
			log.Printf("ERROR: Failed to persist state at height %d: %v", app.height, err)
			app.logError(fmt.Sprintf("Failed to persist state at height %d: %v", app.height, err))
		}
	}

	if app.events != nil {
		for _, n := range app.pending {
			app.events.Publish(n)
		}
	}
	app.pending = nil

	return abci.ResponseCommit{Data: hash}
}

// StateHash is the Keccak-256 of the canonical JSON encoding of the escrow
// address, registry snapshot and native accounts.
func StateHash(escrow types.Address, snap ledger.Snapshot, accounts []bank.Account) ([]byte, error) {
	body, err := json.Marshal(struct {
		Escrow   types.Address   `json:"escrow"`
		Registry ledger.Snapshot `json:"registry"`
		Accounts []bank.Account  `json:"accounts"`
	}{escrow, snap, accounts})
	if err != nil {
		return nil, err
	}
	return types.Keccak256(body), nil
}

func (app *ABCIApplication) logInfo(text string) {
	if app.activity != nil {
		app.activity.Info(text)
	}
}

func (app *ABCIApplication) logError(text string) {
	if app.activity != nil {
		app.activity.Error(text)
	}
}

// escrowBalance is read under the caller's lock.
func (app *ABCIApplication) escrowBalance() *big.Int {
	return app.bank.Balance(app.escrow)
}
