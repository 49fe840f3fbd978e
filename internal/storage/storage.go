package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNoPendingTransaction = errors.New("no pending transaction")
	ErrHashAlreadyConfirmed = errors.New("transaction hash already confirmed")
	ErrInsufficientCredits  = errors.New("insufficient credits")
)

// Storage handles all database operations
type Storage struct {
	db             *sql.DB
	initialCredits int
}

// New creates a new Storage instance and initializes the database
func New(dbPath string, initialCredits int) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db, initialCredits: initialCredits}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			wallet_address TEXT NOT NULL DEFAULT '',
			credit_balance INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			CHECK (credit_balance >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username)`,

		`CREATE TABLE IF NOT EXISTS pending_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES accounts(user_id),
			wallet_address TEXT NOT NULL,
			txn_hash TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'Pending'
				CHECK (state IN ('Pending', 'Confirmed', 'Failed')),
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_txn_hash ON pending_transactions(txn_hash)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_confirmed_hash
			ON pending_transactions(txn_hash) WHERE state = 'Confirmed'`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Accounts ---

// CreateAccount creates an account with the initial credit grant. If an
// account for the user already exists its name and username are refreshed
// and the balance is left untouched.
func (s *Storage) CreateAccount(userID int64, name, username string) (*Account, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO accounts (user_id, name, username, credit_balance, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			username = excluded.username`,
		userID, name, username, s.initialCredits, now,
	)
	if err != nil {
		return nil, err
	}

	return s.GetAccount(userID)
}

// GetAccount returns the account for a Telegram user
func (s *Storage) GetAccount(userID int64) (*Account, error) {
	var a Account
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT id, user_id, name, username, wallet_address, credit_balance, created_at
		 FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Username, &a.WalletAddress, &a.CreditBalance, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// SetWalletAddress bonds a wallet address to an account, replacing any
// previous association
func (s *Storage) SetWalletAddress(userID int64, address string) error {
	result, err := s.db.Exec(
		"UPDATE accounts SET wallet_address = ? WHERE user_id = ?",
		address, userID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeductCredits spends credits from an account. The guard in the UPDATE
// keeps the balance from going negative.
func (s *Storage) DeductCredits(userID int64, credits int) error {
	result, err := s.db.Exec(
		`UPDATE accounts SET credit_balance = credit_balance - ?
		 WHERE user_id = ? AND credit_balance >= ?`,
		credits, userID, credits,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// --- Pending transactions ---

// RecordPendingTransaction records a new payment claim in Pending state
func (s *Storage) RecordPendingTransaction(userID int64, walletAddress, txnHash string) (*PendingTransaction, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`INSERT INTO pending_transactions (user_id, wallet_address, txn_hash, created_at)
		 VALUES (?, ?, ?, ?)`,
		userID, walletAddress, txnHash, now,
	)
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	return &PendingTransaction{
		ID:            id,
		UserID:        userID,
		WalletAddress: walletAddress,
		TxnHash:       txnHash,
		State:         TxnPending,
		CreatedAt:     time.Unix(now, 0),
	}, nil
}

// GetTransaction returns the most recent claim a user filed for a hash
func (s *Storage) GetTransaction(userID int64, txnHash string) (*PendingTransaction, error) {
	var t PendingTransaction
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT id, user_id, wallet_address, txn_hash, state, created_at
		 FROM pending_transactions
		 WHERE user_id = ? AND txn_hash = ?
		 ORDER BY id DESC LIMIT 1`,
		userID, txnHash,
	).Scan(&t.ID, &t.UserID, &t.WalletAddress, &t.TxnHash, &t.State, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// ApplyCreditGrant increments the account balance and transitions the user's
// Pending claim for the hash to Confirmed, as one transaction. If either
// write fails neither is applied. A hash that is already Confirmed for any
// account aborts with ErrHashAlreadyConfirmed, so the same on-chain transfer
// can never be credited twice.
func (s *Storage) ApplyCreditGrant(userID int64, credits int, txnHash string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback()

	var confirmed int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM pending_transactions WHERE txn_hash = ? AND state = 'Confirmed'",
		txnHash,
	).Scan(&confirmed)
	if err != nil {
		return fmt.Errorf("check confirmed hash: %w", err)
	}
	if confirmed > 0 {
		return ErrHashAlreadyConfirmed
	}

	// Confirm exactly one row. The user may have filed the same claim more
	// than once; confirming them all would trip the unique Confirmed-hash
	// index and abort a valid grant.
	result, err := tx.Exec(
		`UPDATE pending_transactions SET state = 'Confirmed'
		 WHERE id = (SELECT id FROM pending_transactions
			WHERE user_id = ? AND txn_hash = ? AND state = 'Pending'
			ORDER BY id DESC LIMIT 1)`,
		userID, txnHash,
	)
	if err != nil {
		return fmt.Errorf("confirm transaction: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNoPendingTransaction
	}

	// Collapse the user's duplicate claims for the hash; the payment is
	// settled and they must never be granted again.
	_, err = tx.Exec(
		`UPDATE pending_transactions SET state = 'Failed'
		 WHERE user_id = ? AND txn_hash = ? AND state = 'Pending'`,
		userID, txnHash,
	)
	if err != nil {
		return fmt.Errorf("collapse duplicate claims: %w", err)
	}

	result, err = tx.Exec(
		"UPDATE accounts SET credit_balance = credit_balance + ? WHERE user_id = ?",
		credits, userID,
	)
	if err != nil {
		return fmt.Errorf("apply credits: %w", err)
	}
	rows, _ = result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// MarkTransactionFailed transitions a user's Pending claim to Failed.
// Terminal states are left untouched.
func (s *Storage) MarkTransactionFailed(userID int64, txnHash string) error {
	result, err := s.db.Exec(
		`UPDATE pending_transactions SET state = 'Failed'
		 WHERE user_id = ? AND txn_hash = ? AND state = 'Pending'`,
		userID, txnHash,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNoPendingTransaction
	}
	return nil
}
