package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soraai/credits-bot/internal/chain"
)

var (
	testToken      = common.HexToAddress("0xe281C0cEd3BE10189FD171287cd0Fe90E271eE01")
	testCollection = common.HexToAddress("0x61c74fB5407F81835e4C14887b42DBC83C694eD7")
	testSender     = common.HexToAddress("0xd91286B8421E6A46A845488579EF90Dfa313a65f")

	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	testHash = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeReader struct {
	receipt *chain.Receipt
	err     error
}

func (r *fakeReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error) {
	return r.receipt, r.err
}

func transferLog(from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: testToken,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

func newTestServer(reader *fakeReader) *Server {
	return NewServer(reader, chain.NewDecoder(testToken), testCollection,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func doNotify(t *testing.T, srv *Server, body any) (*httptest.ResponseRecorder, NotifyResponse) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	srv.handleNotify(rec, req)

	var resp NotifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestNotifyVerifiesMatchingTransfer(t *testing.T) {
	amount := big.NewInt(5_000_000_000_000) // 5000 tokens in base units
	reader := &fakeReader{receipt: &chain.Receipt{
		TxHash: common.HexToHash(testHash),
		Sender: testSender,
		Logs:   []*types.Log{transferLog(testSender, testCollection, amount)},
	}}

	rec, resp := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{testSender.Hex()},
		Amounts:      []string{amount.String()},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Verified)
}

func TestNotifySenderCaseInsensitive(t *testing.T) {
	amount := big.NewInt(1_000_000_000_000)
	reader := &fakeReader{receipt: &chain.Receipt{
		Sender: testSender,
		Logs:   []*types.Log{transferLog(testSender, testCollection, amount)},
	}}

	rec, resp := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{"0xD91286B8421E6A46A845488579EF90DFA313A65F"},
		Amounts:      []string{amount.String()},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestNotifyRejectsWrongAmount(t *testing.T) {
	reader := &fakeReader{receipt: &chain.Receipt{
		Sender: testSender,
		Logs:   []*types.Log{transferLog(testSender, testCollection, big.NewInt(1_000_000_000_000))},
	}}

	rec, resp := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{testSender.Hex()},
		Amounts:      []string{"2000000000000"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.False(t, resp.Results[0].Verified)
}

func TestNotifyMixedClaims(t *testing.T) {
	other := common.HexToAddress("0x1111111111111111111111111111111111111111")
	reader := &fakeReader{receipt: &chain.Receipt{
		Sender: testSender,
		Logs: []*types.Log{
			transferLog(testSender, testCollection, big.NewInt(1_000_000_000_000)),
		},
	}}

	rec, resp := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{testSender.Hex(), other.Hex()},
		Amounts:      []string{"1000000000000", "1000000000000"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Verified)
	assert.False(t, resp.Results[1].Verified)
}

func TestNotifyReceiptNotFound(t *testing.T) {
	reader := &fakeReader{err: chain.ErrReceiptNotFound}

	rec, resp := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{testSender.Hex()},
		Amounts:      []string{"1"},
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, resp.Message, "not found")
}

func TestNotifyNodeError(t *testing.T) {
	reader := &fakeReader{err: errors.New("connection refused")}

	rec, _ := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{testSender.Hex()},
		Amounts:      []string{"1"},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestNotifyNoTransferEvents(t *testing.T) {
	reader := &fakeReader{receipt: &chain.Receipt{Sender: testSender}}

	rec, resp := doNotify(t, newTestServer(reader), NotifyRequest{
		TxHash:       testHash,
		FromAccounts: []string{testSender.Hex()},
		Amounts:      []string{"1"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "no Transfer events")
}

func TestNotifyValidation(t *testing.T) {
	srv := newTestServer(&fakeReader{err: chain.ErrReceiptNotFound})

	cases := []struct {
		name string
		body NotifyRequest
	}{
		{"missing tx hash", NotifyRequest{FromAccounts: []string{"0xabc"}, Amounts: []string{"1"}}},
		{"empty from accounts", NotifyRequest{TxHash: testHash, FromAccounts: []string{}, Amounts: []string{"1"}}},
		{"length mismatch", NotifyRequest{TxHash: testHash, FromAccounts: []string{"0xabc"}, Amounts: []string{"1", "2"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := doNotify(t, srv, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestNotifyRejectsNonPost(t *testing.T) {
	srv := newTestServer(&fakeReader{})

	req := httptest.NewRequest(http.MethodGet, "/notify", nil)
	rec := httptest.NewRecorder()
	srv.handleNotify(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeReader{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
