package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	sigBalanceOf = "balanceOf(address)"
	sigTransfer  = "transfer(address,uint256)"
)

var (
	balanceOfArgs = arguments(addressType)
	transferArgs  = arguments(addressType, uint256Type)
)

// ERC20Proxy builds and parses the ERC-20 calls used for fee payment tokens.
type ERC20Proxy struct {
	codec
}

// NewERC20Proxy returns a proxy computing selectors with hasher. A nil hasher means
// Keccak256.
func NewERC20Proxy(hasher Hasher) ERC20Proxy {
	return ERC20Proxy{codec: newCodec(hasher)}
}

// BalanceOf encodes balanceOf(address).
func (p ERC20Proxy) BalanceOf(owner common.Address) []byte {
	return p.encodeCall(sigBalanceOf, balanceOfArgs, owner)
}

// DecodeBalanceOf decodes a balanceOf call.
func (p ERC20Proxy) DecodeBalanceOf(data []byte) (common.Address, error) {
	values, err := p.decodeCall(sigBalanceOf, balanceOfArgs, data)
	if err != nil {
		return common.Address{}, err
	}

	return values[0].(common.Address), nil
}

// DecodeBalanceOfResult decodes the uint256 returned by balanceOf.
func (p ERC20Proxy) DecodeBalanceOfResult(data []byte) (*big.Int, error) {
	return decodeUint256(data)
}

// Transfer encodes transfer(address,uint256).
func (p ERC20Proxy) Transfer(to common.Address, amount *big.Int) []byte {
	return p.encodeCall(sigTransfer, transferArgs, to, orZero(amount))
}

// DecodeTransfer decodes a transfer call.
func (p ERC20Proxy) DecodeTransfer(data []byte) (to common.Address, amount *big.Int, err error) {
	values, err := p.decodeCall(sigTransfer, transferArgs, data)
	if err != nil {
		return common.Address{}, nil, err
	}

	return values[0].(common.Address), values[1].(*big.Int), nil
}
