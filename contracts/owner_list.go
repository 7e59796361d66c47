package contracts

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// SentinelOwner anchors the owners linked list of the Safe owner manager.
var SentinelOwner = common.HexToAddress("0x0000000000000000000000000000000000000001")

// OwnerLinkedList mirrors the owners linked list stored by a Safe. The list reads in
// getOwners() order and always ends with SentinelOwner, which also points to the first
// owner. The predecessor of an owner is the prevOwner argument of swapOwner and removeOwner.
type OwnerLinkedList struct {
	addresses []common.Address
}

// NewOwnerLinkedList returns a list holding owners in the given order, usually the result
// of getOwners().
func NewOwnerLinkedList(owners ...common.Address) *OwnerLinkedList {
	l := &OwnerLinkedList{addresses: []common.Address{SentinelOwner}}
	for _, o := range owners {
		l.Add(o)
	}

	return l
}

// Add appends owner before the sentinel. Adding the sentinel or an address already present
// has no effect.
func (l *OwnerLinkedList) Add(owner common.Address) {
	if owner == SentinelOwner || l.Contains(owner) {
		return
	}
	l.addresses = slices.Insert(l.addresses, len(l.addresses)-1, owner)
}

// Remove deletes owner from the list and reports whether it was present.
func (l *OwnerLinkedList) Remove(owner common.Address) bool {
	i := l.index(owner)
	if i < 0 || owner == SentinelOwner {
		return false
	}
	l.addresses = slices.Delete(l.addresses, i, i+1)

	return true
}

// Replace puts newOwner at the position of oldOwner and reports whether oldOwner was
// present. Nothing changes when newOwner is already in the list.
func (l *OwnerLinkedList) Replace(oldOwner, newOwner common.Address) bool {
	i := l.index(oldOwner)
	if i < 0 || oldOwner == SentinelOwner || newOwner == SentinelOwner || l.Contains(newOwner) {
		return false
	}
	l.addresses[i] = newOwner

	return true
}

// Contains reports whether owner is in the list. The sentinel is always contained.
func (l *OwnerLinkedList) Contains(owner common.Address) bool {
	return l.index(owner) >= 0
}

// AddressBefore returns the predecessor of owner. The first owner is preceded by the
// sentinel. The second result is false when owner is not in the list.
func (l *OwnerLinkedList) AddressBefore(owner common.Address) (common.Address, bool) {
	i := l.index(owner)
	switch {
	case i < 0:
		return common.Address{}, false
	case i == 0:
		return SentinelOwner, true
	default:
		return l.addresses[i-1], true
	}
}

// Addresses returns a copy of the list, sentinel included.
func (l *OwnerLinkedList) Addresses() []common.Address {
	return slices.Clone(l.addresses)
}

// Owners returns a copy of the list without the sentinel.
func (l *OwnerLinkedList) Owners() []common.Address {
	return slices.Clone(l.addresses[:len(l.addresses)-1])
}

// Len returns the number of owners, sentinel excluded.
func (l *OwnerLinkedList) Len() int {
	return len(l.addresses) - 1
}

func (l *OwnerLinkedList) index(owner common.Address) int {
	return slices.Index(l.addresses, owner)
}
