// Package relay defines the transaction relay the wallet uses instead of direct node access:
// it creates and starts safe deployments, estimates Safe transactions and broadcasts them.
package relay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/encryption"
)

// SafeCreationRequest asks the relay for a pre-signed safe deployment transaction.
type SafeCreationRequest struct {
	Owners       []common.Address
	Threshold    int
	S            *big.Int
	PaymentToken common.Address
}

// SafeCreationResponse is the relay answer to a SafeCreationRequest.
type SafeCreationResponse struct {
	Signature    encryption.Signature
	Tx           encryption.UnsignedTransaction
	Safe         common.Address
	MasterCopy   common.Address
	Payment      *big.Int
	PaymentToken common.Address
}

// EstimateRequest asks the relay to estimate a Safe transaction.
type EstimateRequest struct {
	Safe      common.Address
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation contracts.Operation
	GasToken  common.Address
}

// Estimation is the gas estimation of a Safe transaction.
type Estimation struct {
	SafeTxGas      *big.Int
	DataGas        *big.Int
	OperationalGas *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	NextNonce      *big.Int
}

// SubmitRequest is a signed Safe transaction to broadcast.
type SubmitRequest struct {
	Safe       common.Address
	To         common.Address
	Value      *big.Int
	Data       []byte
	Operation  contracts.Operation
	SafeTxGas  *big.Int
	DataGas    *big.Int
	GasPrice   *big.Int
	GasToken   common.Address
	Nonce      *big.Int
	Signatures []encryption.Signature
}

// SubmitResponse carries the hash of the broadcast transaction.
type SubmitResponse struct {
	TransactionHash common.Hash
}

// Service is the transaction relay. Implementations report transport failures as
// neterr errors.
type Service interface {
	CreateSafeCreationTransaction(ctx context.Context, req SafeCreationRequest) (SafeCreationResponse, error)
	StartSafeCreation(ctx context.Context, safe common.Address) error
	// SafeCreationTransactionHash returns nil while the creation transaction is not known yet.
	SafeCreationTransactionHash(ctx context.Context, safe common.Address) (*common.Hash, error)
	EstimateTransaction(ctx context.Context, req EstimateRequest) (Estimation, error)
	SubmitTransaction(ctx context.Context, req SubmitRequest) (SubmitResponse, error)
}
