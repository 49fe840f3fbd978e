package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"), 30)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestCreateAccountIdempotent(t *testing.T) {
	s := newTestStorage(t)

	a, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)
	assert.Equal(t, 30, a.CreditBalance)

	// Spend some credits, then "re-create" with a new name
	require.NoError(t, s.DeductCredits(100, 5))

	a, err = s.CreateAccount(100, "Alice Smith", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", a.Name)
	assert.Equal(t, 25, a.CreditBalance, "re-creation must not reset the balance")
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetAccount(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetWalletAddress(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	require.NoError(t, s.SetWalletAddress(100, "0xd91286B8421E6A46A845488579EF90Dfa313a65f"))

	a, err := s.GetAccount(100)
	require.NoError(t, err)
	assert.Equal(t, "0xd91286B8421E6A46A845488579EF90Dfa313a65f", a.WalletAddress)

	// Overwrite is allowed
	require.NoError(t, s.SetWalletAddress(100, "0x61c74fB5407F81835e4C14887b42DBC83C694eD7"))
	a, _ = s.GetAccount(100)
	assert.Equal(t, "0x61c74fB5407F81835e4C14887b42DBC83C694eD7", a.WalletAddress)

	assert.ErrorIs(t, s.SetWalletAddress(999, "0x0"), ErrNotFound)
}

func TestDeductCreditsGuardsBalance(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	require.NoError(t, s.DeductCredits(100, 30))

	err = s.DeductCredits(100, 1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	a, _ := s.GetAccount(100)
	assert.Equal(t, 0, a.CreditBalance)
}

func TestApplyCreditGrant(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	_, err = s.RecordPendingTransaction(100, "0xwallet", testHash)
	require.NoError(t, err)

	require.NoError(t, s.ApplyCreditGrant(100, 55, testHash))

	a, _ := s.GetAccount(100)
	assert.Equal(t, 85, a.CreditBalance)

	txn, err := s.GetTransaction(100, testHash)
	require.NoError(t, err)
	assert.Equal(t, TxnConfirmed, txn.State)
}

func TestApplyCreditGrantWithDuplicateClaims(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	// The same user files the same hash twice; the grant must still land
	// exactly once.
	_, err = s.RecordPendingTransaction(100, "0xwallet", testHash)
	require.NoError(t, err)
	_, err = s.RecordPendingTransaction(100, "0xwallet", testHash)
	require.NoError(t, err)

	require.NoError(t, s.ApplyCreditGrant(100, 55, testHash))

	a, _ := s.GetAccount(100)
	assert.Equal(t, 85, a.CreditBalance)

	txn, err := s.GetTransaction(100, testHash)
	require.NoError(t, err)
	assert.Equal(t, TxnConfirmed, txn.State)

	// The duplicate claim was settled too: nothing is left Pending, and the
	// hash can never be granted again.
	err = s.MarkTransactionFailed(100, testHash)
	assert.ErrorIs(t, err, ErrNoPendingTransaction)

	err = s.ApplyCreditGrant(100, 55, testHash)
	assert.ErrorIs(t, err, ErrHashAlreadyConfirmed)

	a, _ = s.GetAccount(100)
	assert.Equal(t, 85, a.CreditBalance)
}

func TestApplyCreditGrantRequiresPendingClaim(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	err = s.ApplyCreditGrant(100, 55, testHash)
	assert.ErrorIs(t, err, ErrNoPendingTransaction)

	a, _ := s.GetAccount(100)
	assert.Equal(t, 30, a.CreditBalance, "failed grant must not move the balance")
}

func TestApplyCreditGrantRejectsConfirmedHash(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)
	_, err = s.CreateAccount(200, "Bob", "bob")
	require.NoError(t, err)

	_, err = s.RecordPendingTransaction(100, "0xwallet", testHash)
	require.NoError(t, err)
	_, err = s.RecordPendingTransaction(200, "0xwallet", testHash)
	require.NoError(t, err)

	require.NoError(t, s.ApplyCreditGrant(100, 55, testHash))

	// Bob claims the same on-chain transfer; the store must refuse.
	err = s.ApplyCreditGrant(200, 55, testHash)
	assert.ErrorIs(t, err, ErrHashAlreadyConfirmed)

	b, _ := s.GetAccount(200)
	assert.Equal(t, 30, b.CreditBalance)

	// Re-granting the winner is also refused.
	err = s.ApplyCreditGrant(100, 55, testHash)
	assert.ErrorIs(t, err, ErrHashAlreadyConfirmed)

	a, _ := s.GetAccount(100)
	assert.Equal(t, 85, a.CreditBalance)
}

func TestMarkTransactionFailed(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	_, err = s.RecordPendingTransaction(100, "0xwallet", testHash)
	require.NoError(t, err)

	require.NoError(t, s.MarkTransactionFailed(100, testHash))

	txn, err := s.GetTransaction(100, testHash)
	require.NoError(t, err)
	assert.Equal(t, TxnFailed, txn.State)

	// Terminal states are not re-processed
	err = s.MarkTransactionFailed(100, testHash)
	assert.ErrorIs(t, err, ErrNoPendingTransaction)
}

func TestMarkTransactionFailedLeavesConfirmed(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateAccount(100, "Alice", "alice")
	require.NoError(t, err)

	_, err = s.RecordPendingTransaction(100, "0xwallet", testHash)
	require.NoError(t, err)
	require.NoError(t, s.ApplyCreditGrant(100, 55, testHash))

	err = s.MarkTransactionFailed(100, testHash)
	assert.ErrorIs(t, err, ErrNoPendingTransaction)

	txn, _ := s.GetTransaction(100, testHash)
	assert.Equal(t, TxnConfirmed, txn.State)
}
