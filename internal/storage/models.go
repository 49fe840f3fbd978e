package storage

import "time"

// Account is a Telegram user with a credit balance
type Account struct {
	ID            int64
	UserID        int64
	Name          string
	Username      string
	WalletAddress string // empty until the user bonds one
	CreditBalance int
	CreatedAt     time.Time
}

// TxnState is the lifecycle state of a submitted payment claim.
// Transitions are monotonic: Pending -> Confirmed or Pending -> Failed.
type TxnState string

const (
	TxnPending   TxnState = "Pending"
	TxnConfirmed TxnState = "Confirmed"
	TxnFailed    TxnState = "Failed"
)

// PendingTransaction is one user-submitted claim "I sent tokens in
// transaction X from wallet W"
type PendingTransaction struct {
	ID            int64
	UserID        int64
	WalletAddress string
	TxnHash       string
	State         TxnState
	CreatedAt     time.Time
}
