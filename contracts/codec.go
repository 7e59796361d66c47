// Package contracts encodes and decodes the Safe contract calls the wallet emits and parses:
// owner management, multi-send batching, safe setup and transaction execution, and the two
// ERC-20 calls used for fee token balances. It also mirrors the on-chain owners linked list.
//
// Only the call shapes listed here are supported; this is not a general purpose ABI library.
package contracts

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrSelectorMismatch is returned when decoding data whose first 4 bytes are not the
	// selector of the expected function.
	ErrSelectorMismatch = errors.New("call selector does not match")
	// ErrMalformedData is returned when the call arguments cannot be decoded.
	ErrMalformedData = errors.New("malformed call data")
)

// Hasher hashes arbitrary bytes. Function selectors and Safe transaction hashes are computed
// through the configured Hasher.
type Hasher interface {
	Hash(data []byte) []byte
}

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(data []byte) []byte

func (f HasherFunc) Hash(data []byte) []byte { return f(data) }

// Keccak256 is the Ethereum hashing function.
var Keccak256 Hasher = HasherFunc(func(data []byte) []byte {
	return crypto.Keccak256(data)
})

// Operation is the Safe call type.
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

func (o Operation) String() string {
	switch o {
	case Call:
		return "call"
	case DelegateCall:
		return "delegateCall"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

var (
	addressType      = mustNewType("address")
	addressSliceType = mustNewType("address[]")
	uint256Type      = mustNewType("uint256")
	uint8Type        = mustNewType("uint8")
	boolType         = mustNewType("bool")
	bytesType        = mustNewType("bytes")
	bytes32Type      = mustNewType("bytes32")
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid abi type %q: %v", t, err))
	}

	return typ
}

func arguments(types ...abi.Type) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}

	return args
}

// codec is embedded by every contract proxy. It owns the hasher used for selectors.
type codec struct {
	hasher Hasher
}

func newCodec(hasher Hasher) codec {
	if hasher == nil {
		hasher = Keccak256
	}

	return codec{hasher: hasher}
}

// Selector returns the first 4 bytes of the hash of the canonical function signature.
func (c codec) Selector(signature string) []byte {
	return c.hasher.Hash([]byte(signature))[:4]
}

// encodeCall packs values with the head/tail layout of args behind the selector of
// signature. The argument lists are fixed per call, so a packing failure is a programming
// error.
func (c codec) encodeCall(signature string, args abi.Arguments, values ...any) []byte {
	packed, err := args.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("encode %s: %v", signature, err))
	}

	return append(c.Selector(signature), packed...)
}

// decodeCall checks the selector of signature and unpacks the remaining bytes with args.
func (c codec) decodeCall(signature string, args abi.Arguments, data []byte) ([]any, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %s: %d bytes", ErrMalformedData, signature, len(data))
	}
	if !bytes.Equal(data[:4], c.Selector(signature)) {
		return nil, fmt.Errorf("%w: expected %s", ErrSelectorMismatch, signature)
	}

	return decodeValues(signature, args, data[4:])
}

func decodeValues(name string, args abi.Arguments, data []byte) ([]any, error) {
	if len(args) > 0 && len(data) < 32*len(args) {
		return nil, fmt.Errorf("%w: %s: %d bytes", ErrMalformedData, name, len(data))
	}

	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedData, name, err)
	}
	if len(values) != len(args) {
		return nil, fmt.Errorf("%w: %s: got %d values", ErrMalformedData, name, len(values))
	}

	return values, nil
}

// orZero avoids packing nil integers.
func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return v
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
