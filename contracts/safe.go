package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	sigSetup           = "setup(address[],uint256,address,bytes,address,address,uint256,address)"
	sigExecTransaction = "execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)"
	sigRequiredTxGas   = "requiredTxGas(address,uint256,bytes,uint8)"

	safeTxTypeSignature = "SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas," +
		"uint256 dataGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"
	domainTypeSignature = "EIP712Domain(address verifyingContract)"
)

var (
	setupArgs = arguments(
		addressSliceType, uint256Type, addressType, bytesType,
		addressType, addressType, uint256Type, addressType,
	)
	execTransactionArgs = arguments(
		addressType, uint256Type, bytesType, uint8Type, uint256Type,
		uint256Type, uint256Type, addressType, addressType, bytesType,
	)
	requiredTxGasArgs = arguments(addressType, uint256Type, bytesType, uint8Type)

	domainArgs = arguments(bytes32Type, addressType)
	safeTxArgs = arguments(
		bytes32Type, addressType, uint256Type, bytes32Type, uint8Type,
		uint256Type, uint256Type, uint256Type, addressType, addressType, uint256Type,
	)
)

// SetupArgs are the arguments of the Safe setup call executed when the proxy is created.
type SetupArgs struct {
	Owners          []common.Address
	Threshold       *big.Int
	To              common.Address
	Data            []byte
	FallbackHandler common.Address
	PaymentToken    common.Address
	Payment         *big.Int
	PaymentReceiver common.Address
}

// ExecTransactionArgs are the arguments of execTransaction. BaseGas is called dataGas by
// the 1.0 contracts.
type ExecTransactionArgs struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Signatures     []byte
}

// RequiredTxGasArgs are the arguments of requiredTxGas.
type RequiredTxGasArgs struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
}

// SafeTx is the typed data an owner signs to authorise a Safe transaction.
type SafeTx struct {
	Safe           common.Address
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	DataGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// SafeProxy builds and parses the calls of the Safe master copy.
type SafeProxy struct {
	codec
}

// NewSafeProxy returns a proxy computing selectors and transaction hashes with hasher. A nil
// hasher means Keccak256.
func NewSafeProxy(hasher Hasher) SafeProxy {
	return SafeProxy{codec: newCodec(hasher)}
}

// Setup encodes setup(address[],uint256,address,bytes,address,address,uint256,address).
func (p SafeProxy) Setup(args SetupArgs) []byte {
	owners := args.Owners
	if owners == nil {
		owners = []common.Address{}
	}

	return p.encodeCall(sigSetup, setupArgs,
		owners,
		orZero(args.Threshold),
		args.To,
		orEmpty(args.Data),
		args.FallbackHandler,
		args.PaymentToken,
		orZero(args.Payment),
		args.PaymentReceiver,
	)
}

// DecodeSetup decodes a setup call.
func (p SafeProxy) DecodeSetup(data []byte) (SetupArgs, error) {
	values, err := p.decodeCall(sigSetup, setupArgs, data)
	if err != nil {
		return SetupArgs{}, err
	}

	return SetupArgs{
		Owners:          values[0].([]common.Address),
		Threshold:       values[1].(*big.Int),
		To:              values[2].(common.Address),
		Data:            values[3].([]byte),
		FallbackHandler: values[4].(common.Address),
		PaymentToken:    values[5].(common.Address),
		Payment:         values[6].(*big.Int),
		PaymentReceiver: values[7].(common.Address),
	}, nil
}

// ExecTransaction encodes execTransaction with its ten arguments.
func (p SafeProxy) ExecTransaction(args ExecTransactionArgs) []byte {
	return p.encodeCall(sigExecTransaction, execTransactionArgs,
		args.To,
		orZero(args.Value),
		orEmpty(args.Data),
		uint8(args.Operation),
		orZero(args.SafeTxGas),
		orZero(args.BaseGas),
		orZero(args.GasPrice),
		args.GasToken,
		args.RefundReceiver,
		orEmpty(args.Signatures),
	)
}

// DecodeExecTransaction decodes an execTransaction call.
func (p SafeProxy) DecodeExecTransaction(data []byte) (ExecTransactionArgs, error) {
	values, err := p.decodeCall(sigExecTransaction, execTransactionArgs, data)
	if err != nil {
		return ExecTransactionArgs{}, err
	}

	return ExecTransactionArgs{
		To:             values[0].(common.Address),
		Value:          values[1].(*big.Int),
		Data:           values[2].([]byte),
		Operation:      Operation(values[3].(uint8)),
		SafeTxGas:      values[4].(*big.Int),
		BaseGas:        values[5].(*big.Int),
		GasPrice:       values[6].(*big.Int),
		GasToken:       values[7].(common.Address),
		RefundReceiver: values[8].(common.Address),
		Signatures:     values[9].([]byte),
	}, nil
}

// RequiredTxGas encodes requiredTxGas(address,uint256,bytes,uint8).
func (p SafeProxy) RequiredTxGas(args RequiredTxGasArgs) []byte {
	return p.encodeCall(sigRequiredTxGas, requiredTxGasArgs,
		args.To, orZero(args.Value), orEmpty(args.Data), uint8(args.Operation))
}

// DecodeRequiredTxGas decodes a requiredTxGas call.
func (p SafeProxy) DecodeRequiredTxGas(data []byte) (RequiredTxGasArgs, error) {
	values, err := p.decodeCall(sigRequiredTxGas, requiredTxGasArgs, data)
	if err != nil {
		return RequiredTxGasArgs{}, err
	}

	return RequiredTxGasArgs{
		To:        values[0].(common.Address),
		Value:     values[1].(*big.Int),
		Data:      values[2].([]byte),
		Operation: Operation(values[3].(uint8)),
	}, nil
}

// DecodeRequiredTxGasResult decodes the uint256 gas estimate returned by requiredTxGas.
func (p SafeProxy) DecodeRequiredTxGasResult(data []byte) (*big.Int, error) {
	return decodeUint256(data)
}

// TransactionHash returns the hash owners sign for tx, following the typed data layout of
// the 1.0 Safe contracts: a domain bound to the safe address only and a SafeTx struct with
// dataGas.
func (p SafeProxy) TransactionHash(tx SafeTx) common.Hash {
	domainSeparator := p.hash(p.pack(domainArgs, p.typeHash(domainTypeSignature), tx.Safe))

	structHash := p.hash(p.pack(safeTxArgs,
		p.typeHash(safeTxTypeSignature),
		tx.To,
		orZero(tx.Value),
		[32]byte(p.hash(tx.Data)),
		uint8(tx.Operation),
		orZero(tx.SafeTxGas),
		orZero(tx.DataGas),
		orZero(tx.GasPrice),
		tx.GasToken,
		tx.RefundReceiver,
		orZero(tx.Nonce),
	))

	message := make([]byte, 0, 2+2*common.HashLength)
	message = append(message, 0x19, 0x01)
	message = append(message, domainSeparator[:]...)
	message = append(message, structHash[:]...)

	return p.hash(message)
}

func (p SafeProxy) hash(data []byte) common.Hash {
	return common.BytesToHash(p.hasher.Hash(data))
}

func (p SafeProxy) typeHash(s string) [32]byte {
	return p.hash([]byte(s))
}

func (p SafeProxy) pack(args abi.Arguments, values ...any) []byte {
	packed, err := args.Pack(values...)
	if err != nil {
		panic("pack typed data: " + err.Error())
	}

	return packed
}
