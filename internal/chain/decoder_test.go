package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken = common.HexToAddress("0xe281C0cEd3BE10189FD171287cd0Fe90E271eE01")
	addrA     = common.HexToAddress("0xd91286B8421E6A46A845488579EF90Dfa313a65f")
	addrB     = common.HexToAddress("0x61c74fB5407F81835e4C14887b42DBC83C694eD7")
	addrC     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func transferLog(token common.Address, from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			transferEventID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

func TestTransferEventsEmptyReceipt(t *testing.T) {
	d := NewDecoder(testToken)
	events := d.TransferEvents(&Receipt{})
	assert.Empty(t, events)
}

func TestTransferEventsDecodesMatchingLogs(t *testing.T) {
	d := NewDecoder(testToken)

	value := new(big.Int).Mul(big.NewInt(5000), big.NewInt(1_000_000_000))
	receipt := &Receipt{
		Logs: []*types.Log{
			transferLog(testToken, addrA, addrB, value),
		},
	}

	events := d.TransferEvents(receipt)
	require.Len(t, events, 1)
	assert.Equal(t, addrA, events[0].From)
	assert.Equal(t, addrB, events[0].To)
	assert.Equal(t, value, events[0].Value)
}

func TestTransferEventsPreservesEmissionOrder(t *testing.T) {
	d := NewDecoder(testToken)

	receipt := &Receipt{
		Logs: []*types.Log{
			transferLog(testToken, addrA, addrB, big.NewInt(1)),
			transferLog(testToken, addrB, addrC, big.NewInt(2)),
			transferLog(testToken, addrC, addrA, big.NewInt(3)),
		},
	}

	events := d.TransferEvents(receipt)
	require.Len(t, events, 3)
	assert.Equal(t, big.NewInt(1), events[0].Value)
	assert.Equal(t, big.NewInt(2), events[1].Value)
	assert.Equal(t, big.NewInt(3), events[2].Value)
}

func TestTransferEventsSkipsForeignLogs(t *testing.T) {
	d := NewDecoder(testToken)

	otherToken := common.HexToAddress("0x2222222222222222222222222222222222222222")
	receipt := &Receipt{
		Logs: []*types.Log{
			// Different contract
			transferLog(otherToken, addrA, addrB, big.NewInt(10)),
			// Different event signature
			{
				Address: testToken,
				Topics:  []common.Hash{common.HexToHash("0xdead")},
			},
			// Malformed: missing indexed topics
			{
				Address: testToken,
				Topics:  []common.Hash{transferEventID},
			},
			transferLog(testToken, addrA, addrB, big.NewInt(42)),
		},
	}

	events := d.TransferEvents(receipt)
	require.Len(t, events, 1)
	assert.Equal(t, big.NewInt(42), events[0].Value)
}

func TestHumanAmount(t *testing.T) {
	base := new(big.Int).Mul(big.NewInt(5000), big.NewInt(1_000_000_000))
	amount := HumanAmount(base, 9)
	assert.True(t, amount.Equal(HumanAmount(base, 9)))
	assert.Equal(t, "5000", amount.String())

	fractional := big.NewInt(1_500_000_000)
	assert.Equal(t, "1.5", HumanAmount(fractional, 9).String())
}
