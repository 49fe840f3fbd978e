package chain

import (
	"context"
	"errors"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrReceiptNotFound means the node has no mined receipt for the hash yet.
// Callers treat this as "not yet available" and poll again.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// Receipt is the slice of a mined transaction the confirmation protocol
// needs: who sent it and what the contract emitted.
type Receipt struct {
	TxHash common.Hash
	Sender common.Address
	Logs   []*types.Log
}

// Client is a read-only view over an Ethereum node
type Client struct {
	eth *ethclient.Client
}

// Dial connects to an Ethereum JSON-RPC endpoint
func Dial(rpcURL string) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to node: %w", err)
	}
	return &Client{eth: eth}, nil
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.eth.Close()
}

// TransactionReceipt fetches the receipt for a hash and resolves the sender
// address. Returns ErrReceiptNotFound while the transaction is unknown or
// still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}

	tx, pending, err := c.eth.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) || pending {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	sender, err := c.eth.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}

	return &Receipt{
		TxHash: txHash,
		Sender: sender,
		Logs:   receipt.Logs,
	}, nil
}
