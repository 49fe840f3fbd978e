package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const transferABIJSON = `[{
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "from", "type": "address"},
		{"indexed": true, "name": "to", "type": "address"},
		{"indexed": false, "name": "value", "type": "uint256"}
	],
	"name": "Transfer",
	"type": "event"
}]`

var (
	transferABI     = mustABI(transferABIJSON)
	transferEventID = transferABI.Events["Transfer"].ID
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// TransferEvent is one decoded ERC20 Transfer(from, to, value) emission.
// Value is in the token's base unit.
type TransferEvent struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// Decoder extracts Transfer events emitted by a single token contract
type Decoder struct {
	token common.Address
}

// NewDecoder creates a decoder bound to the token contract address
func NewDecoder(token common.Address) *Decoder {
	return &Decoder{token: token}
}

// TransferEvents returns the Transfer events in a receipt, in emission
// order. Logs from other contracts, other event signatures, or with
// malformed payloads are skipped. An empty receipt yields an empty slice,
// not an error.
func (d *Decoder) TransferEvents(receipt *Receipt) []TransferEvent {
	var events []TransferEvent

	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != d.token {
			continue
		}
		if len(lg.Topics) != 3 || lg.Topics[0] != transferEventID {
			continue
		}

		values, err := transferABI.Unpack("Transfer", lg.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		value, ok := values[0].(*big.Int)
		if !ok {
			continue
		}

		events = append(events, TransferEvent{
			From:  common.BytesToAddress(lg.Topics[1].Bytes()),
			To:    common.BytesToAddress(lg.Topics[2].Bytes()),
			Value: value,
		})
	}

	return events
}

// HumanAmount converts a base-unit value to a human token amount
// (value / 10^decimals) without float rounding.
func HumanAmount(value *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(value, -decimals)
}
