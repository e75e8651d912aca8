package abci

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	abci "github.com/tendermint/tendermint/abci/types"

	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/types"
)

// Query results. Amounts encode as JSON numbers.

type EarningsResult struct {
	BookID   uint64   `json:"book_id"`
	Earnings *big.Int `json:"earnings"`
}

type PurchaserResult struct {
	BookID    uint64        `json:"book_id"`
	Address   types.Address `json:"address"`
	Purchased bool          `json:"purchased"`
}

type BalanceResult struct {
	Address types.Address `json:"address"`
	Balance *big.Int      `json:"balance"`
}

type AuthorizedResult struct {
	Address    types.Address `json:"address"`
	Authorized bool          `json:"authorized"`
}

type OwnerResult struct {
	Owner types.Address `json:"owner"`
}

// RegistryResult summarizes the registry and its escrow.
type RegistryResult struct {
	Owner         types.Address `json:"owner"`
	Escrow        types.Address `json:"escrow"`
	EscrowBalance *big.Int      `json:"escrow_balance"`
	Liabilities   *big.Int      `json:"liabilities"`
	Surplus       *big.Int      `json:"surplus"`
	BookCount     uint64        `json:"book_count"`
	Height        int64         `json:"height"`
}

// Book returns the stored book; unknown IDs yield the zero book.
func (app *ABCIApplication) Book(id uint64) (types.Book, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.registry == nil {
		return types.Book{}, ErrNotInitialized
	}
	return app.registry.GetBook(id), nil
}

func (app *ABCIApplication) Earnings(id uint64) (EarningsResult, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.registry == nil {
		return EarningsResult{}, ErrNotInitialized
	}
	return EarningsResult{BookID: id, Earnings: app.registry.GetBookEarnings(id)}, nil
}

func (app *ABCIApplication) Purchaser(id uint64, addr types.Address) (PurchaserResult, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.registry == nil {
		return PurchaserResult{}, ErrNotInitialized
	}
	return PurchaserResult{BookID: id, Address: addr, Purchased: app.registry.CheckPurchaser(id, addr)}, nil
}

// AuthorBalance returns addr's withdrawable registry balance.
func (app *ABCIApplication) AuthorBalance(addr types.Address) (BalanceResult, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.registry == nil {
		return BalanceResult{}, ErrNotInitialized
	}
	return BalanceResult{Address: addr, Balance: app.registry.AuthorBalance(addr)}, nil
}

// Account returns addr's native balance and next nonce.
func (app *ABCIApplication) Account(addr types.Address) (bank.Account, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.bank.Get(addr), nil
}

func (app *ABCIApplication) Authorized(addr types.Address) (AuthorizedResult, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.registry == nil {
		return AuthorizedResult{}, ErrNotInitialized
	}
	return AuthorizedResult{Address: addr, Authorized: app.registry.IsAuthorized(addr)}, nil
}

func (app *ABCIApplication) Registry() (RegistryResult, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.registry == nil {
		return RegistryResult{}, ErrNotInitialized
	}
	return RegistryResult{
		Owner:         app.registry.Owner(),
		Escrow:        app.escrow,
		EscrowBalance: app.escrowBalance(),
		Liabilities:   app.registry.Liabilities(),
		Surplus:       app.registry.Surplus(),
		BookCount:     app.registry.BookCount(),
		Height:        app.height,
	}, nil
}

func (app *ABCIApplication) Query(req abci.RequestQuery) abci.ResponseQuery {
	value, err := app.query(req.Path)
	if err != nil {
		return abci.ResponseQuery{Code: CodeTypeInvalidTx, Log: err.Error(), Height: app.Height()}
	}
	body, err := json.Marshal(value)
	if err != nil {
		return abci.ResponseQuery{Code: CodeTypeEncodingError, Log: err.Error(), Height: app.Height()}
	}
	return abci.ResponseQuery{Code: CodeTypeOK, Key: []byte(req.Path), Value: body, Height: app.Height()}
}

func (app *ABCIApplication) query(path string) (interface{}, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "book":
		id, err := parseBookID(parts[1])
		if err != nil {
			return nil, err
		}
		return app.Book(id)

	case len(parts) == 2 && parts[0] == "earnings":
		id, err := parseBookID(parts[1])
		if err != nil {
			return nil, err
		}
		return app.Earnings(id)

	case len(parts) == 3 && parts[0] == "purchaser":
		id, err := parseBookID(parts[1])
		if err != nil {
			return nil, err
		}
		addr, err := types.ParseAddress(parts[2])
		if err != nil {
			return nil, err
		}
		return app.Purchaser(id, addr)

	case len(parts) == 2 && parts[0] == "balance":
		addr, err := types.ParseAddress(parts[1])
		if err != nil {
			return nil, err
		}
		return app.AuthorBalance(addr)

	case len(parts) == 2 && parts[0] == "account":
		addr, err := types.ParseAddress(parts[1])
		if err != nil {
			return nil, err
		}
		return app.Account(addr)

	case len(parts) == 2 && parts[0] == "authorized":
		addr, err := types.ParseAddress(parts[1])
		if err != nil {
			return nil, err
		}
		return app.Authorized(addr)

	case len(parts) == 1 && parts[0] == "owner":
		reg, err := app.Registry()
		if err != nil {
			return nil, err
		}
		return OwnerResult{Owner: reg.Owner}, nil

	case len(parts) == 1 && parts[0] == "registry":
		return app.Registry()
	}
	return nil, fmt.Errorf("unknown query path %q", path)
}

func parseBookID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid book id %q", s)
	}
	return id, nil
}
