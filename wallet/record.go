package wallet

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OwnerRecord is the persisted form of an Owner.
type OwnerRecord struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

// Record is the persisted form of a Wallet.
type Record struct {
	ID                      string        `json:"id"`
	State                   string        `json:"state"`
	Owners                  []OwnerRecord `json:"owners"`
	ConfirmationThreshold   int           `json:"confirmationThreshold"`
	Address                 string        `json:"address,omitempty"`
	FeePaymentToken         string        `json:"feePaymentToken,omitempty"`
	MasterCopyAddress       string        `json:"masterCopyAddress,omitempty"`
	ContractVersion         string        `json:"contractVersion,omitempty"`
	CreationTransactionHash string        `json:"creationTransactionHash,omitempty"`
	MinimumDeploymentAmount string        `json:"minimumDeploymentAmount,omitempty"`
}

// Record returns the persisted form of w.
func (w *Wallet) Record() Record {
	r := Record{
		ID:                    string(w.id),
		State:                 string(w.state),
		Owners:                make([]OwnerRecord, 0, len(w.owners)),
		ConfirmationThreshold: w.threshold,
		ContractVersion:       w.contractVersion,
	}
	for _, o := range w.owners {
		r.Owners = append(r.Owners, OwnerRecord{Address: o.Address.Hex(), Role: string(o.Role)})
	}
	if w.address != nil {
		r.Address = w.address.Hex()
	}
	if w.feePaymentToken != nil {
		r.FeePaymentToken = w.feePaymentToken.Hex()
	}
	if w.masterCopyAddress != nil {
		r.MasterCopyAddress = w.masterCopyAddress.Hex()
	}
	if w.creationTransactionHash != nil {
		r.CreationTransactionHash = w.creationTransactionHash.Hex()
	}
	if w.minimumDeploymentAmount != nil {
		r.MinimumDeploymentAmount = w.minimumDeploymentAmount.String()
	}

	return r
}

// FromRecord rebuilds a wallet from its persisted form. A record breaking the wallet
// invariants is rejected.
func FromRecord(r Record) (*Wallet, error) {
	state, err := ParseState(r.State)
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		id:              ID(r.ID),
		state:           state,
		threshold:       r.ConfirmationThreshold,
		contractVersion: r.ContractVersion,
	}
	for _, o := range r.Owners {
		role, err := ParseOwnerRole(o.Role)
		if err != nil {
			return nil, err
		}
		address, err := parseAddress(o.Address)
		if err != nil {
			return nil, err
		}
		if err := w.addOwner(Owner{Address: address, Role: role}); err != nil {
			return nil, fmt.Errorf("wallet %s: %w", r.ID, err)
		}
	}
	if w.threshold < 1 || w.threshold > len(w.owners) {
		return nil, fmt.Errorf("wallet %s: %w: %d of %d owners", r.ID, ErrInvalidThreshold, w.threshold, len(w.owners))
	}

	if w.address, err = parseOptionalAddress(r.Address); err != nil {
		return nil, err
	}
	if w.feePaymentToken, err = parseOptionalAddress(r.FeePaymentToken); err != nil {
		return nil, err
	}
	if w.masterCopyAddress, err = parseOptionalAddress(r.MasterCopyAddress); err != nil {
		return nil, err
	}
	if r.CreationTransactionHash != "" {
		h := common.HexToHash(r.CreationTransactionHash)
		w.creationTransactionHash = &h
	}
	if r.MinimumDeploymentAmount != "" {
		amount, ok := new(big.Int).SetString(r.MinimumDeploymentAmount, 10)
		if !ok {
			return nil, fmt.Errorf("wallet %s: invalid minimum deployment amount %q", r.ID, r.MinimumDeploymentAmount)
		}
		w.minimumDeploymentAmount = amount
	}

	return w, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidOwner, s)
	}

	return common.HexToAddress(s), nil
}

func parseOptionalAddress(s string) (*common.Address, error) {
	if s == "" {
		return nil, nil
	}
	if !common.IsHexAddress(s) {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	a := common.HexToAddress(s)

	return &a, nil
}
