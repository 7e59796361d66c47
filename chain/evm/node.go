// Package evm talks to an Ethereum node: balances, receipts and read-only contract calls.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartcontractkit/safe-wallet-framework/internal/neterr"
)

// OnchainClient is the subset of the go-ethereum client the node service needs.
// *ethclient.Client and *MultiClient implement it.
type OnchainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ReceiptStatus is the outcome of a mined transaction.
type ReceiptStatus int

const (
	ReceiptFailed ReceiptStatus = iota
	ReceiptSuccess
)

func (s ReceiptStatus) String() string {
	if s == ReceiptSuccess {
		return "success"
	}

	return "failed"
}

// Receipt is a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      ReceiptStatus
	BlockNumber *big.Int
}

// NodeService reads chain state. Transport failures are returned as neterr errors.
type NodeService interface {
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	// GetTransactionReceipt returns nil while the transaction is not mined.
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

var _ NodeService = (*Node)(nil)

// Node implements NodeService on top of an OnchainClient, reading at the latest block.
type Node struct {
	client OnchainClient
}

// NewNode returns a Node reading through client.
func NewNode(client OnchainClient) *Node {
	return &Node{client: client}
}

func (n *Node) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := n.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, neterr.Classify("eth_getBalance", fmt.Errorf("balance of %s: %w", address.Hex(), err))
	}

	return balance, nil
}

func (n *Node) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	receipt, err := n.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, neterr.Classify("eth_getTransactionReceipt", fmt.Errorf("receipt of %s: %w", hash.Hex(), err))
	}

	status := ReceiptFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = ReceiptSuccess
	}

	return &Receipt{TxHash: receipt.TxHash, Status: status, BlockNumber: receipt.BlockNumber}, nil
}

func (n *Node) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := n.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, neterr.Classify("eth_call", fmt.Errorf("call %s: %w", to.Hex(), err))
	}

	return out, nil
}
