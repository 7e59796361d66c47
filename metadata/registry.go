// Package metadata knows the deployed Safe contracts: which master copies wallets may
// delegate to, which multi-send contract to batch through and the version of each.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
)

// ContractType names a Safe contract kind.
type ContractType string

const (
	MasterCopy   ContractType = "MasterCopy"
	MultiSend    ContractType = "MultiSend"
	ProxyFactory ContractType = "ProxyFactory"
)

var (
	Version1_0_0 = *semver.MustParse("1.0.0")
	Version1_1_0 = *semver.MustParse("1.1.0")
)

// packedMultiSend matches the multi-send releases that take the packed transaction encoding.
var packedMultiSend = mustConstraint(">= 1.1.0")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}

	return constraint
}

var ErrNoMultiSend = errors.New("no default multi-send contract configured")

// Repository answers questions about deployed Safe contracts.
type Repository interface {
	contracts.MultiSendVersions
	// Version returns the release of the contract at address.
	Version(address common.Address) (*semver.Version, bool)
	// IsValidMasterCopy reports whether address is a master copy wallets may use.
	IsValidMasterCopy(address common.Address) bool
}

var _ Repository = (*Registry)(nil)

// Contract is a deployed Safe contract.
type Contract struct {
	Type    ContractType
	Address common.Address
	Version *semver.Version
}

// Registry is an in-memory Repository.
type Registry struct {
	multiSend common.Address
	contracts map[common.Address]Contract
}

// NewRegistry returns a registry of cs. defaultMultiSend must be one of the MultiSend
// contracts.
func NewRegistry(defaultMultiSend common.Address, cs ...Contract) (*Registry, error) {
	r := &Registry{multiSend: defaultMultiSend, contracts: make(map[common.Address]Contract, len(cs))}
	for _, c := range cs {
		if c.Version == nil {
			return nil, fmt.Errorf("contract %s %s: missing version", c.Type, c.Address.Hex())
		}
		if _, ok := r.contracts[c.Address]; ok {
			return nil, fmt.Errorf("contract %s listed twice", c.Address.Hex())
		}
		r.contracts[c.Address] = c
	}

	if c, ok := r.contracts[defaultMultiSend]; !ok || c.Type != MultiSend {
		return nil, fmt.Errorf("%w: %s is not a known multi-send contract", ErrNoMultiSend, defaultMultiSend.Hex())
	}

	return r, nil
}

func (r *Registry) MultiSendContractAddress() common.Address {
	return r.multiSend
}

func (r *Registry) Version(address common.Address) (*semver.Version, bool) {
	c, ok := r.contracts[address]
	if !ok {
		return nil, false
	}

	return c.Version, true
}

// MultiSendVersion returns the transaction encoding of the multi-send contract at address:
// contracts.MultiSendV2 (packed) from release 1.1.0 on, contracts.MultiSendV1 before.
func (r *Registry) MultiSendVersion(address common.Address) (int, bool) {
	c, ok := r.contracts[address]
	if !ok || c.Type != MultiSend {
		return 0, false
	}
	if packedMultiSend.Check(c.Version) {
		return contracts.MultiSendV2, true
	}

	return contracts.MultiSendV1, true
}

func (r *Registry) IsValidMasterCopy(address common.Address) bool {
	c, ok := r.contracts[address]
	return ok && c.Type == MasterCopy
}

// Contracts returns the registered contracts of the given type.
func (r *Registry) Contracts(t ContractType) []Contract {
	var out []Contract
	for _, c := range r.contracts {
		if c.Type == t {
			out = append(out, c)
		}
	}

	return out
}

type fileContract struct {
	Type    string `toml:"type"`
	Address string `toml:"address"`
	Version string `toml:"version"`
}

type file struct {
	MultiSend string         `toml:"multi_send"`
	Contracts []fileContract `toml:"contracts"`
}

// ParseRegistry reads a registry from TOML:
//
//	multi_send = "0x8D29bE29923b68abfDD21e541b9374737B49cdAD"
//
//	[[contracts]]
//	type = "MultiSend"
//	address = "0x8D29bE29923b68abfDD21e541b9374737B49cdAD"
//	version = "1.1.1"
func ParseRegistry(data []byte) (*Registry, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal toml: %w", err)
	}

	cs := make([]Contract, 0, len(f.Contracts))
	for i, fc := range f.Contracts {
		if !common.IsHexAddress(fc.Address) {
			return nil, fmt.Errorf("contracts[%d]: invalid address %q", i, fc.Address)
		}
		t, err := parseContractType(fc.Type)
		if err != nil {
			return nil, fmt.Errorf("contracts[%d]: %w", i, err)
		}
		v, err := semver.NewVersion(fc.Version)
		if err != nil {
			return nil, fmt.Errorf("contracts[%d]: invalid version %q: %w", i, fc.Version, err)
		}
		cs = append(cs, Contract{Type: t, Address: common.HexToAddress(fc.Address), Version: v})
	}
	if !common.IsHexAddress(f.MultiSend) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrNoMultiSend, f.MultiSend)
	}

	return NewRegistry(common.HexToAddress(f.MultiSend), cs...)
}

// LoadRegistry reads a TOML registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %w", err)
	}

	return ParseRegistry(data)
}

func parseContractType(s string) (ContractType, error) {
	for _, t := range []ContractType{MasterCopy, MultiSend, ProxyFactory} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}

	return "", fmt.Errorf("unknown contract type %q", s)
}
