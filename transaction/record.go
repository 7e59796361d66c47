package transaction

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// SignatureRecord is the persisted form of a Signature.
type SignatureRecord struct {
	Signer string        `json:"signer"`
	Data   hexutil.Bytes `json:"data"`
}

// FeeEstimateRecord is the persisted form of a FeeEstimate.
type FeeEstimateRecord struct {
	SafeTxGas      string `json:"safeTxGas"`
	DataGas        string `json:"dataGas"`
	OperationalGas string `json:"operationalGas"`
	GasPrice       string `json:"gasPrice"`
	GasToken       string `json:"gasToken"`
}

// Record is the persisted form of a Transaction.
type Record struct {
	ID          string             `json:"id"`
	WalletID    string             `json:"walletId"`
	Token       string             `json:"token"`
	Type        string             `json:"type"`
	Status      string             `json:"status"`
	Sender      string             `json:"sender,omitempty"`
	Recipient   string             `json:"recipient,omitempty"`
	Amount      string             `json:"amount,omitempty"`
	Operation   uint8              `json:"operation"`
	Data        hexutil.Bytes      `json:"data,omitempty"`
	Fee         string             `json:"fee,omitempty"`
	FeeEstimate *FeeEstimateRecord `json:"feeEstimate,omitempty"`
	Nonce       string             `json:"nonce,omitempty"`
	Signatures  []SignatureRecord  `json:"signatures,omitempty"`
	Hash        string             `json:"hash,omitempty"`
	Created     *time.Time         `json:"created,omitempty"`
	Submitted   *time.Time         `json:"submitted,omitempty"`
	Rejected    *time.Time         `json:"rejected,omitempty"`
	Processed   *time.Time         `json:"processed,omitempty"`
}

// Record returns the persisted form of t.
func (t *Transaction) Record() Record {
	r := Record{
		ID:        string(t.id),
		WalletID:  string(t.walletID),
		Token:     t.accountID.Token.Hex(),
		Type:      string(t.txType),
		Status:    string(t.status),
		Amount:    intString(t.amount),
		Operation: uint8(t.operation),
		Data:      t.Data(),
		Fee:       intString(t.fee),
		Nonce:     intString(t.nonce),
		Created:   t.timestamps.Created,
		Submitted: t.timestamps.Submitted,
		Rejected:  t.timestamps.Rejected,
		Processed: t.timestamps.Processed,
	}
	if t.sender != nil {
		r.Sender = t.sender.Hex()
	}
	if t.recipient != nil {
		r.Recipient = t.recipient.Hex()
	}
	if t.feeEstimate != nil {
		r.FeeEstimate = &FeeEstimateRecord{
			SafeTxGas:      intString(t.feeEstimate.SafeTxGas),
			DataGas:        intString(t.feeEstimate.DataGas),
			OperationalGas: intString(t.feeEstimate.OperationalGas),
			GasPrice:       intString(t.feeEstimate.GasPrice),
			GasToken:       t.feeEstimate.GasToken.Hex(),
		}
	}
	for _, s := range t.signatures {
		r.Signatures = append(r.Signatures, SignatureRecord{Signer: s.Signer.Hex(), Data: s.Data})
	}
	if t.hash != nil {
		r.Hash = t.hash.Hex()
	}

	return r
}

// FromRecord rebuilds a transaction from its persisted form.
func FromRecord(r Record) (*Transaction, error) {
	t := &Transaction{
		id:        ID(r.ID),
		walletID:  wallet.ID(r.WalletID),
		accountID: wallet.AccountID{WalletID: wallet.ID(r.WalletID), Token: common.HexToAddress(r.Token)},
		txType:    Type(r.Type),
		status:    Status(r.Status),
		operation: contracts.Operation(r.Operation),
		data:      []byte(r.Data),
		timestamps: Timestamps{
			Created:   r.Created,
			Submitted: r.Submitted,
			Rejected:  r.Rejected,
			Processed: r.Processed,
		},
		now: time.Now,
	}
	if !isStatus(t.status) {
		return nil, fmt.Errorf("transaction %s: unknown status %q", r.ID, r.Status)
	}
	if t.operation > contracts.DelegateCall {
		return nil, fmt.Errorf("transaction %s: unknown operation %d", r.ID, r.Operation)
	}

	var err error
	if t.amount, err = parseInt(r.Amount); err != nil {
		return nil, err
	}
	if t.fee, err = parseInt(r.Fee); err != nil {
		return nil, err
	}
	if t.nonce, err = parseInt(r.Nonce); err != nil {
		return nil, err
	}
	if r.Sender != "" {
		a := common.HexToAddress(r.Sender)
		t.sender = &a
	}
	if r.Recipient != "" {
		a := common.HexToAddress(r.Recipient)
		t.recipient = &a
	}
	if r.FeeEstimate != nil {
		e := FeeEstimate{GasToken: common.HexToAddress(r.FeeEstimate.GasToken)}
		for _, f := range []struct {
			dst **big.Int
			src string
		}{
			{&e.SafeTxGas, r.FeeEstimate.SafeTxGas},
			{&e.DataGas, r.FeeEstimate.DataGas},
			{&e.OperationalGas, r.FeeEstimate.OperationalGas},
			{&e.GasPrice, r.FeeEstimate.GasPrice},
		} {
			if *f.dst, err = parseInt(f.src); err != nil {
				return nil, err
			}
		}
		t.feeEstimate = &e
	}
	for _, s := range r.Signatures {
		t.signatures = append(t.signatures, Signature{Signer: common.HexToAddress(s.Signer), Data: []byte(s.Data)})
	}
	if r.Hash != "" {
		h := common.HexToHash(r.Hash)
		t.hash = &h
	}

	return t, nil
}

func isStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSigning, StatusPending, StatusSuccess, StatusFailed, StatusRejected, StatusDiscarded:
		return true
	default:
		return false
	}
}

func intString(v *big.Int) string {
	if v == nil {
		return ""
	}

	return v.String()
}

func parseInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}

	return v, nil
}
