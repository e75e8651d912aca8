// Package store persists committed registry state to a SQLite database so a
// node can resume after restart. Each commit replaces the stored state in a
// single SQL transaction; timestamped copies of the database file are kept
// in a backups directory and used to recover from a corrupt database.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"pubreg.chain/pubreg/internal/bank"
	"pubreg.chain/pubreg/internal/ledger"
	"pubreg.chain/pubreg/internal/types"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile        = "pubreg.db"
	defaultBackupDirName = "backups"
	maxBusyTimeoutMs     = 5000
	defaultMaxBackups    = 20
)

// ErrNoState is returned by Load when nothing has been committed yet.
var ErrNoState = errors.New("no committed state")

var errNoBackups = errors.New("no state backups available")

// ChainState is everything needed to resume the chain at Height.
type ChainState struct {
	Height   int64
	AppHash  []byte
	Escrow   types.Address
	Registry ledger.Snapshot
	Accounts []bank.Account
}

// Store manages the SQLite database file holding committed state.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	file      string
	backupDir string
}

// NewStore opens (or creates) the database at filePath. A database that
// cannot be opened is replaced by the newest backup, or by a fresh file
// when there are no backups.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	s := &Store{
		file:      absPath,
		backupDir: filepath.Join(filepath.Dir(absPath), defaultBackupDirName),
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	if err := s.tryOpenOrRecover(); err != nil {
		return nil, err
	}

	// SQLite reads the file header lazily, so a corrupt file may only
	// surface once the schema is touched.
	if err := s.ensureSchema(); err != nil {
		if recErr := s.recoverDatabase(err); recErr != nil {
			_ = s.closeDB()
			return nil, recErr
		}
		if err := s.ensureSchema(); err != nil {
			_ = s.closeDB()
			return nil, err
		}
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.file
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

func (s *Store) tryOpenOrRecover() error {
	if err := s.openDB(); err != nil {
		if recErr := s.recoverDatabase(err); recErr != nil {
			return recErr
		}
	}
	return nil
}

func (s *Store) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(s.file)))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY,
			title TEXT,
			author_name TEXT,
			author_address TEXT NOT NULL,
			ipfs_hash TEXT,
			price TEXT NOT NULL,
			earnings TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			book_id INTEGER NOT NULL,
			purchaser TEXT NOT NULL,
			PRIMARY KEY (book_id, purchaser)
		)`,
		`CREATE TABLE IF NOT EXISTS authorized (
			address TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS author_balances (
			author TEXT PRIMARY KEY,
			amount TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			balance TEXT NOT NULL,
			nonce INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return nil
}

// Save replaces the stored state with cs.
func (s *Store) Save(cs ChainState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if err := saveTx(tx, cs); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func saveTx(tx *sql.Tx, cs ChainState) error {
	for _, table := range []string{"meta", "books", "purchases", "authorized", "author_balances", "accounts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	snap := cs.Registry
	meta := map[string]string{
		"height":       strconv.FormatInt(cs.Height, 10),
		"app_hash":     hex.EncodeToString(cs.AppHash),
		"escrow":       cs.Escrow.Hex(),
		"owner":        snap.Owner.Hex(),
		"last_book_id": strconv.FormatUint(snap.LastBookID, 10),
		"surplus":      types.FormatAmount(snap.Surplus),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	for _, b := range snap.Books {
		if _, err := tx.Exec(`INSERT INTO books (id, title, author_name, author_address, ipfs_hash, price, earnings)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			int64(b.ID), b.Title, b.AuthorName, b.AuthorAddress.Hex(), b.IPFSHash,
			types.FormatAmount(b.Price), types.FormatAmount(b.Earnings)); err != nil {
			return fmt.Errorf("insert book %d: %w", b.ID, err)
		}
	}
	for _, p := range snap.Purchases {
		if _, err := tx.Exec(`INSERT INTO purchases (book_id, purchaser) VALUES (?, ?)`,
			int64(p.BookID), p.Purchaser.Hex()); err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
	}
	for _, a := range snap.Authorized {
		if _, err := tx.Exec(`INSERT INTO authorized (address) VALUES (?)`, a.Hex()); err != nil {
			return fmt.Errorf("insert authorized: %w", err)
		}
	}
	for _, bal := range snap.Balances {
		if _, err := tx.Exec(`INSERT INTO author_balances (author, amount) VALUES (?, ?)`,
			bal.Author.Hex(), types.FormatAmount(bal.Amount)); err != nil {
			return fmt.Errorf("insert balance: %w", err)
		}
	}
	for _, acc := range cs.Accounts {
		if _, err := tx.Exec(`INSERT INTO accounts (address, balance, nonce) VALUES (?, ?, ?)`,
			acc.Address.Hex(), types.FormatAmount(acc.Balance), int64(acc.Nonce)); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
	}
	return nil
}

// Load returns the last saved state, or ErrNoState.
func (s *Store) Load() (*ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.loadMeta()
	if err != nil {
		return nil, err
	}
	if _, ok := meta["height"]; !ok {
		return nil, ErrNoState
	}

	cs := &ChainState{}
	if cs.Height, err = strconv.ParseInt(meta["height"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse height: %w", err)
	}
	if cs.AppHash, err = hex.DecodeString(meta["app_hash"]); err != nil {
		return nil, fmt.Errorf("parse app hash: %w", err)
	}
	if cs.Escrow, err = types.ParseAddress(meta["escrow"]); err != nil {
		return nil, fmt.Errorf("parse escrow: %w", err)
	}
	snap := &cs.Registry
	if snap.Owner, err = types.ParseAddress(meta["owner"]); err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if snap.LastBookID, err = strconv.ParseUint(meta["last_book_id"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse last book id: %w", err)
	}
	if snap.Surplus, err = types.ParseAmount(meta["surplus"]); err != nil {
		return nil, fmt.Errorf("parse surplus: %w", err)
	}

	if snap.Books, err = s.loadBooks(); err != nil {
		return nil, err
	}
	if snap.Purchases, err = s.loadPurchases(); err != nil {
		return nil, err
	}
	if snap.Authorized, err = s.loadAuthorized(); err != nil {
		return nil, err
	}
	if snap.Balances, err = s.loadBalances(); err != nil {
		return nil, err
	}
	if cs.Accounts, err = s.loadAccounts(); err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *Store) loadMeta() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *Store) loadBooks() ([]types.Book, error) {
	rows, err := s.db.Query(`SELECT id, title, author_name, author_address, ipfs_hash, price, earnings
		FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	books := []types.Book{}
	for rows.Next() {
		var (
			id                      int64
			title, name, hash       sql.NullString
			author, price, earnings string
		)
		if err := rows.Scan(&id, &title, &name, &author, &hash, &price, &earnings); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		b := types.Book{ID: uint64(id), Title: title.String, AuthorName: name.String, IPFSHash: hash.String}
		if b.AuthorAddress, err = types.ParseAddress(author); err != nil {
			return nil, fmt.Errorf("book %d author: %w", id, err)
		}
		if b.Price, err = parseAmount(price); err != nil {
			return nil, fmt.Errorf("book %d price: %w", id, err)
		}
		if b.Earnings, err = parseAmount(earnings); err != nil {
			return nil, fmt.Errorf("book %d earnings: %w", id, err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *Store) loadPurchases() ([]ledger.Purchase, error) {
	rows, err := s.db.Query(`SELECT book_id, purchaser FROM purchases ORDER BY book_id, purchaser`)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []ledger.Purchase{}
	for rows.Next() {
		var (
			id   int64
			addr string
		)
		if err := rows.Scan(&id, &addr); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchaser, err := types.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("purchase of %d: %w", id, err)
		}
		purchases = append(purchases, ledger.Purchase{BookID: uint64(id), Purchaser: purchaser})
	}
	return purchases, rows.Err()
}

func (s *Store) loadAuthorized() ([]types.Address, error) {
	rows, err := s.db.Query(`SELECT address FROM authorized ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query authorized: %w", err)
	}
	defer rows.Close()

	var out []types.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan authorized: %w", err)
		}
		a, err := types.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("authorized account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) loadBalances() ([]ledger.Balance, error) {
	rows, err := s.db.Query(`SELECT author, amount FROM author_balances ORDER BY author`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	balances := []ledger.Balance{}
	for rows.Next() {
		var addr, amount string
		if err := rows.Scan(&addr, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		a, err := types.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("balance owner: %w", err)
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", a, err)
		}
		balances = append(balances, ledger.Balance{Author: a, Amount: v})
	}
	return balances, rows.Err()
}

func (s *Store) loadAccounts() ([]bank.Account, error) {
	rows, err := s.db.Query(`SELECT address, balance, nonce FROM accounts ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []bank.Account
	for rows.Next() {
		var (
			addr, balance string
			nonce         int64
		)
		if err := rows.Scan(&addr, &balance, &nonce); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a, err := types.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("account address: %w", err)
		}
		v, err := parseAmount(balance)
		if err != nil {
			return nil, fmt.Errorf("account %s balance: %w", a, err)
		}
		accounts = append(accounts, bank.Account{Address: a, Balance: v, Nonce: uint64(nonce)})
	}
	return accounts, rows.Err()
}

// parseAmount normalises stored zero amounts so loaded state compares equal
// to the in-memory copies it was saved from.
func parseAmount(s string) (*big.Int, error) {
	v, err := types.ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return types.CopyAmount(v), nil
}
