package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	sigGetOwners             = "getOwners()"
	sigIsOwner               = "isOwner(address)"
	sigGetThreshold          = "getThreshold()"
	sigNonce                 = "nonce()"
	sigAddOwnerWithThreshold = "addOwnerWithThreshold(address,uint256)"
	sigSwapOwner             = "swapOwner(address,address,address)"
	sigRemoveOwner           = "removeOwner(address,address,uint256)"
	sigChangeThreshold       = "changeThreshold(uint256)"
)

var (
	addOwnerWithThresholdArgs = arguments(addressType, uint256Type)
	swapOwnerArgs             = arguments(addressType, addressType, addressType)
	removeOwnerArgs           = arguments(addressType, addressType, uint256Type)
	changeThresholdArgs       = arguments(uint256Type)
	isOwnerArgs               = arguments(addressType)

	addressSliceResult = arguments(addressSliceType)
	boolResult         = arguments(boolType)
	uint256Result      = arguments(uint256Type)
)

// OwnerManagerProxy builds and parses the calls of the Safe owner manager module.
type OwnerManagerProxy struct {
	codec
}

// NewOwnerManagerProxy returns a proxy computing selectors with hasher. A nil hasher means
// Keccak256.
func NewOwnerManagerProxy(hasher Hasher) OwnerManagerProxy {
	return OwnerManagerProxy{codec: newCodec(hasher)}
}

// GetOwners encodes getOwners().
func (p OwnerManagerProxy) GetOwners() []byte {
	return p.encodeCall(sigGetOwners, nil)
}

// DecodeGetOwnersResult decodes the address[] returned by getOwners().
func (p OwnerManagerProxy) DecodeGetOwnersResult(data []byte) ([]common.Address, error) {
	values, err := decodeValues(sigGetOwners, addressSliceResult, data)
	if err != nil {
		return nil, err
	}

	return values[0].([]common.Address), nil
}

// IsOwner encodes isOwner(address).
func (p OwnerManagerProxy) IsOwner(address common.Address) []byte {
	return p.encodeCall(sigIsOwner, isOwnerArgs, address)
}

// DecodeIsOwner decodes the argument of isOwner(address).
func (p OwnerManagerProxy) DecodeIsOwner(data []byte) (common.Address, error) {
	values, err := p.decodeCall(sigIsOwner, isOwnerArgs, data)
	if err != nil {
		return common.Address{}, err
	}

	return values[0].(common.Address), nil
}

// DecodeBoolResult decodes a bool return value, as returned by isOwner(address).
func (p OwnerManagerProxy) DecodeBoolResult(data []byte) (bool, error) {
	values, err := decodeValues("bool", boolResult, data)
	if err != nil {
		return false, err
	}

	return values[0].(bool), nil
}

// GetThreshold encodes getThreshold().
func (p OwnerManagerProxy) GetThreshold() []byte {
	return p.encodeCall(sigGetThreshold, nil)
}

// Nonce encodes nonce().
func (p OwnerManagerProxy) Nonce() []byte {
	return p.encodeCall(sigNonce, nil)
}

// DecodeUint256Result decodes a uint256 return value, as returned by getThreshold() and
// nonce().
func (p OwnerManagerProxy) DecodeUint256Result(data []byte) (*big.Int, error) {
	return decodeUint256(data)
}

// AddOwnerWithThreshold encodes addOwnerWithThreshold(address,uint256).
func (p OwnerManagerProxy) AddOwnerWithThreshold(owner common.Address, threshold *big.Int) []byte {
	return p.encodeCall(sigAddOwnerWithThreshold, addOwnerWithThresholdArgs, owner, orZero(threshold))
}

// DecodeAddOwnerWithThreshold decodes addOwnerWithThreshold(address,uint256).
func (p OwnerManagerProxy) DecodeAddOwnerWithThreshold(data []byte) (owner common.Address, threshold *big.Int, err error) {
	values, err := p.decodeCall(sigAddOwnerWithThreshold, addOwnerWithThresholdArgs, data)
	if err != nil {
		return common.Address{}, nil, err
	}

	return values[0].(common.Address), values[1].(*big.Int), nil
}

// SwapOwner encodes swapOwner(address,address,address). prevOwner is the owner pointing to
// oldOwner in the on-chain linked list, see OwnerLinkedList.AddressBefore.
func (p OwnerManagerProxy) SwapOwner(prevOwner, oldOwner, newOwner common.Address) []byte {
	return p.encodeCall(sigSwapOwner, swapOwnerArgs, prevOwner, oldOwner, newOwner)
}

// SwapOwnerArgs are the decoded arguments of swapOwner.
type SwapOwnerArgs struct {
	PrevOwner common.Address
	OldOwner  common.Address
	NewOwner  common.Address
}

// DecodeSwapOwner decodes swapOwner(address,address,address).
func (p OwnerManagerProxy) DecodeSwapOwner(data []byte) (SwapOwnerArgs, error) {
	values, err := p.decodeCall(sigSwapOwner, swapOwnerArgs, data)
	if err != nil {
		return SwapOwnerArgs{}, err
	}

	return SwapOwnerArgs{
		PrevOwner: values[0].(common.Address),
		OldOwner:  values[1].(common.Address),
		NewOwner:  values[2].(common.Address),
	}, nil
}

// RemoveOwner encodes removeOwner(address,address,uint256).
func (p OwnerManagerProxy) RemoveOwner(prevOwner, owner common.Address, threshold *big.Int) []byte {
	return p.encodeCall(sigRemoveOwner, removeOwnerArgs, prevOwner, owner, orZero(threshold))
}

// RemoveOwnerArgs are the decoded arguments of removeOwner.
type RemoveOwnerArgs struct {
	PrevOwner common.Address
	Owner     common.Address
	Threshold *big.Int
}

// DecodeRemoveOwner decodes removeOwner(address,address,uint256).
func (p OwnerManagerProxy) DecodeRemoveOwner(data []byte) (RemoveOwnerArgs, error) {
	values, err := p.decodeCall(sigRemoveOwner, removeOwnerArgs, data)
	if err != nil {
		return RemoveOwnerArgs{}, err
	}

	return RemoveOwnerArgs{
		PrevOwner: values[0].(common.Address),
		Owner:     values[1].(common.Address),
		Threshold: values[2].(*big.Int),
	}, nil
}

// ChangeThreshold encodes changeThreshold(uint256).
func (p OwnerManagerProxy) ChangeThreshold(threshold *big.Int) []byte {
	return p.encodeCall(sigChangeThreshold, changeThresholdArgs, orZero(threshold))
}

// DecodeChangeThreshold decodes changeThreshold(uint256).
func (p OwnerManagerProxy) DecodeChangeThreshold(data []byte) (*big.Int, error) {
	values, err := p.decodeCall(sigChangeThreshold, changeThresholdArgs, data)
	if err != nil {
		return nil, err
	}

	return values[0].(*big.Int), nil
}

func decodeUint256(data []byte) (*big.Int, error) {
	values, err := decodeValues("uint256", uint256Result, data)
	if err != nil {
		return nil, err
	}

	return values[0].(*big.Int), nil
}
