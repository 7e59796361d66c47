package contracts

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const sigMultiSend = "multiSend(bytes)"

// Multi-send payload layouts.
const (
	// MultiSendV1 encodes every transaction as abi.encode(uint8,address,uint256,bytes).
	MultiSendV1 = 1
	// MultiSendV2 encodes every transaction packed, without padding.
	MultiSendV2 = 2
)

const (
	wordSize = 32
	// v1 head: operation, to, value, data offset, data length.
	v1HeadSize = 5 * wordSize
	// v2 head: operation(1), to(20), value(32), data length(32).
	v2HeadSize = 1 + common.AddressLength + 2*wordSize
)

// ErrUnknownMultiSendVersion is returned when no payload layout is known for a multi-send
// contract.
var ErrUnknownMultiSendVersion = errors.New("unknown multi-send version")

var (
	multiSendArgs   = arguments(bytesType)
	multiSendV1Args = arguments(uint8Type, addressType, uint256Type, bytesType)
)

// MultiSendTx is a single call batched in a multi-send.
type MultiSendTx struct {
	Operation Operation
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// MultiSendProxy builds and parses multiSend(bytes) calls in both payload layouts.
type MultiSendProxy struct {
	codec
}

// NewMultiSendProxy returns a proxy computing selectors with hasher. A nil hasher means
// Keccak256.
func NewMultiSendProxy(hasher Hasher) MultiSendProxy {
	return MultiSendProxy{codec: newCodec(hasher)}
}

// MultiSend encodes txs as a multiSend(bytes) call using the payload layout of version.
func (p MultiSendProxy) MultiSend(txs []MultiSendTx, version int) ([]byte, error) {
	var payload []byte
	switch version {
	case MultiSendV1:
		payload = packV1(txs)
	case MultiSendV2:
		payload = packV2(txs)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMultiSendVersion, version)
	}

	return p.encodeCall(sigMultiSend, multiSendArgs, payload), nil
}

// DecodeMultiSend decodes a multiSend(bytes) call and reports which payload layout matched.
// The v1 layout is tried first and must match exactly, including padding. An empty payload
// is an empty batch in either layout and is reported as MultiSendV1.
func (p MultiSendProxy) DecodeMultiSend(data []byte) ([]MultiSendTx, int, error) {
	values, err := p.decodeCall(sigMultiSend, multiSendArgs, data)
	if err != nil {
		return nil, 0, err
	}
	payload := values[0].([]byte)
	if len(payload) == 0 {
		return []MultiSendTx{}, MultiSendV1, nil
	}

	if txs, ok := unpackV1(payload); ok {
		return txs, MultiSendV1, nil
	}
	if txs, ok := unpackV2(payload); ok {
		return txs, MultiSendV2, nil
	}

	return nil, 0, fmt.Errorf("%w: %s: payload matches no known layout", ErrMalformedData, sigMultiSend)
}

func packV1(txs []MultiSendTx) []byte {
	var buf bytes.Buffer
	for _, tx := range txs {
		packed, err := multiSendV1Args.Pack(uint8(tx.Operation), tx.To, orZero(tx.Value), orEmpty(tx.Data))
		if err != nil {
			panic(fmt.Sprintf("encode multi-send transaction: %v", err))
		}
		buf.Write(packed)
	}

	return buf.Bytes()
}

func packV2(txs []MultiSendTx) []byte {
	var buf bytes.Buffer
	for _, tx := range txs {
		buf.WriteByte(byte(tx.Operation))
		buf.Write(tx.To.Bytes())
		buf.Write(common.LeftPadBytes(orZero(tx.Value).Bytes(), wordSize))
		buf.Write(common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), wordSize))
		buf.Write(tx.Data)
	}

	return buf.Bytes()
}

// unpackV1 accepts only payloads that re-encode to the same bytes.
func unpackV1(payload []byte) ([]MultiSendTx, bool) {
	var txs []MultiSendTx
	for pos := 0; pos < len(payload); {
		if len(payload)-pos < v1HeadSize {
			return nil, false
		}
		length, ok := wordToInt(payload[pos+4*wordSize : pos+v1HeadSize])
		if !ok {
			return nil, false
		}
		size := v1HeadSize + paddedSize(length)
		if size > len(payload)-pos {
			return nil, false
		}
		chunk := payload[pos : pos+size]

		values, err := multiSendV1Args.Unpack(chunk)
		if err != nil || len(values) != 4 {
			return nil, false
		}
		tx := MultiSendTx{
			Operation: Operation(values[0].(uint8)),
			To:        values[1].(common.Address),
			Value:     values[2].(*big.Int),
			Data:      values[3].([]byte),
		}
		if tx.Operation > DelegateCall || !bytes.Equal(packV1([]MultiSendTx{tx}), chunk) {
			return nil, false
		}

		txs = append(txs, tx)
		pos += size
	}

	return txs, len(txs) > 0
}

func unpackV2(payload []byte) ([]MultiSendTx, bool) {
	var txs []MultiSendTx
	for pos := 0; pos < len(payload); {
		if len(payload)-pos < v2HeadSize {
			return nil, false
		}
		op := Operation(payload[pos])
		if op > DelegateCall {
			return nil, false
		}
		pos++

		to := common.BytesToAddress(payload[pos : pos+common.AddressLength])
		pos += common.AddressLength

		value := new(big.Int).SetBytes(payload[pos : pos+wordSize])
		pos += wordSize

		length, ok := wordToInt(payload[pos : pos+wordSize])
		pos += wordSize
		if !ok || length > len(payload)-pos {
			return nil, false
		}

		data := make([]byte, length)
		copy(data, payload[pos:pos+length])
		pos += length

		txs = append(txs, MultiSendTx{Operation: op, To: to, Value: value, Data: data})
	}

	return txs, len(txs) > 0
}

// wordToInt reads a 32-byte big-endian word that must fit in an int32.
func wordToInt(word []byte) (int, bool) {
	v := new(big.Int).SetBytes(word)
	if !v.IsInt64() || v.Int64() > 1<<31-1 {
		return 0, false
	}

	return int(v.Int64()), true
}

func paddedSize(n int) int {
	return (n + wordSize - 1) / wordSize * wordSize
}

// MultiSendVersions resolves the multi-send contract and its payload layout.
type MultiSendVersions interface {
	MultiSendContractAddress() common.Address
	MultiSendVersion(address common.Address) (int, bool)
}

// MultiSendEncoder encodes batches for the configured multi-send contract, picking the
// payload layout the contract understands.
type MultiSendEncoder struct {
	proxy    MultiSendProxy
	versions MultiSendVersions
}

// NewMultiSendEncoder returns an encoder resolving layouts through versions.
func NewMultiSendEncoder(proxy MultiSendProxy, versions MultiSendVersions) *MultiSendEncoder {
	return &MultiSendEncoder{proxy: proxy, versions: versions}
}

// Encode returns the multi-send contract address and the call data batching txs.
func (e *MultiSendEncoder) Encode(txs []MultiSendTx) (common.Address, []byte, error) {
	address := e.versions.MultiSendContractAddress()
	version, ok := e.versions.MultiSendVersion(address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%w: %s", ErrUnknownMultiSendVersion, address.Hex())
	}

	data, err := e.proxy.MultiSend(txs, version)
	if err != nil {
		return common.Address{}, nil, err
	}

	return address, data, nil
}
