package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OwnerRole is what an owner key is used for.
type OwnerRole string

const (
	RoleThisDevice         OwnerRole = "thisDevice"
	RoleBrowserExtension   OwnerRole = "browserExtension"
	RolePaperWallet        OwnerRole = "paperWallet"
	RolePaperWalletDerived OwnerRole = "paperWalletDerived"
	RoleKeycard            OwnerRole = "keycard"
	RolePersonalSafe       OwnerRole = "personalSafe"
	// RoleUnknown is used for owners found on chain whose role cannot be inferred. It is
	// the only role several owners may share.
	RoleUnknown OwnerRole = "unknown"
)

var roles = []OwnerRole{
	RoleThisDevice,
	RoleBrowserExtension,
	RolePaperWallet,
	RolePaperWalletDerived,
	RoleKeycard,
	RolePersonalSafe,
	RoleUnknown,
}

// ParseOwnerRole returns the role named s.
func ParseOwnerRole(s string) (OwnerRole, error) {
	for _, r := range roles {
		if string(r) == s {
			return r, nil
		}
	}

	return "", fmt.Errorf("unknown owner role %q", s)
}

// IsTwoFactor reports whether the role is a second factor device.
func (r OwnerRole) IsTwoFactor() bool {
	return r == RoleBrowserExtension || r == RoleKeycard
}

// mandatoryRoles must all be present before a draft wallet can be deployed.
var mandatoryRoles = []OwnerRole{RoleThisDevice, RolePaperWallet, RolePaperWalletDerived}

// Owner is an address allowed to co-sign for the wallet.
type Owner struct {
	Address common.Address
	Role    OwnerRole
}

func (o Owner) String() string {
	return fmt.Sprintf("%s(%s)", o.Role, o.Address.Hex())
}

// InferRole returns the role of an owner discovered on chain. An address that is the
// address of another wallet known locally is that user's personal safe, anything else is
// unknown.
func InferRole(address common.Address, self ID, known []*Wallet) OwnerRole {
	for _, w := range known {
		if w.ID() == self {
			continue
		}
		if a, ok := w.Address(); ok && a == address {
			return RolePersonalSafe
		}
	}

	return RoleUnknown
}
