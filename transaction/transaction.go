// Package transaction tracks a single Safe transaction from draft to its on-chain outcome,
// collecting owner signatures on the way.
//
// The fields describing what the transaction does are frozen once it leaves draft, and its
// hash can be assigned only once.
package transaction

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/ksuid"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

var (
	ErrNotFound          = errors.New("transaction not found")
	ErrFrozen            = errors.New("transaction can only be changed in draft")
	ErrMissingField      = errors.New("transaction field not set")
	ErrHashAlreadySet    = errors.New("transaction hash already set")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature does not belong to the owner")
)

// ID identifies a transaction.
type ID string

// NewID returns a new time-ordered transaction id.
func NewID() ID {
	return ID(ksuid.New().String())
}

// Type is what a transaction is used for.
type Type string

const (
	TypeTransfer                   Type = "transfer"
	TypeWalletRecovery             Type = "walletRecovery"
	TypeReplaceRecoveryPhrase      Type = "replaceRecoveryPhrase"
	TypeConnectBrowserExtension    Type = "connectBrowserExtension"
	TypeDisconnectBrowserExtension Type = "disconnectBrowserExtension"
)

// Status is the lifecycle position of a transaction.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSigning   Status = "signing"
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusDiscarded Status = "discarded"
)

// StatusError is returned for a status change the lifecycle does not allow.
type StatusError struct {
	From Status
	To   Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transaction: cannot move from %s to %s", e.From, e.To)
}

// FeeEstimate is the gas estimation returned by the relay.
type FeeEstimate struct {
	SafeTxGas      *big.Int
	DataGas        *big.Int
	OperationalGas *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
}

// Total returns (safeTxGas + dataGas + operationalGas) * gasPrice.
func (e FeeEstimate) Total() *big.Int {
	gas := new(big.Int)
	for _, g := range []*big.Int{e.SafeTxGas, e.DataGas, e.OperationalGas} {
		if g != nil {
			gas.Add(gas, g)
		}
	}
	if e.GasPrice == nil {
		return new(big.Int)
	}

	return gas.Mul(gas, e.GasPrice)
}

func (e FeeEstimate) clone() FeeEstimate {
	return FeeEstimate{
		SafeTxGas:      cloneInt(e.SafeTxGas),
		DataGas:        cloneInt(e.DataGas),
		OperationalGas: cloneInt(e.OperationalGas),
		GasPrice:       cloneInt(e.GasPrice),
		GasToken:       e.GasToken,
	}
}

// Timestamps records when the transaction reached its milestones.
type Timestamps struct {
	Created   *time.Time
	Submitted *time.Time
	Rejected  *time.Time
	Processed *time.Time
}

// Transaction is a Safe transaction of a wallet.
type Transaction struct {
	id        ID
	walletID  wallet.ID
	accountID wallet.AccountID
	txType    Type
	status    Status

	sender      *common.Address
	recipient   *common.Address
	amount      *big.Int
	operation   contracts.Operation
	data        []byte
	fee         *big.Int
	feeEstimate *FeeEstimate
	nonce       *big.Int

	signatures []Signature
	hash       *common.Hash
	timestamps Timestamps

	now func() time.Time
}

// New returns a draft transaction for account.
func New(id ID, txType Type, account wallet.AccountID) *Transaction {
	tx := &Transaction{
		id:        id,
		walletID:  account.WalletID,
		accountID: account,
		txType:    txType,
		status:    StatusDraft,
		now:       time.Now,
	}
	tx.timestamps.Created = tx.stamp()

	return tx
}

func (t *Transaction) ID() ID                         { return t.id }
func (t *Transaction) WalletID() wallet.ID            { return t.walletID }
func (t *Transaction) AccountID() wallet.AccountID    { return t.accountID }
func (t *Transaction) Type() Type                     { return t.txType }
func (t *Transaction) Status() Status                 { return t.status }
func (t *Transaction) Operation() contracts.Operation { return t.operation }
func (t *Transaction) Data() []byte                   { return slices.Clone(t.data) }
func (t *Transaction) Amount() *big.Int               { return cloneInt(t.amount) }
func (t *Transaction) Fee() *big.Int                  { return cloneInt(t.fee) }
func (t *Transaction) Nonce() *big.Int                { return cloneInt(t.nonce) }
func (t *Transaction) Timestamps() Timestamps         { return t.timestamps }
func (t *Transaction) Signatures() []Signature        { return cloneSignatures(t.signatures) }

func (t *Transaction) Sender() (common.Address, bool) {
	if t.sender == nil {
		return common.Address{}, false
	}

	return *t.sender, true
}

func (t *Transaction) Recipient() (common.Address, bool) {
	if t.recipient == nil {
		return common.Address{}, false
	}

	return *t.recipient, true
}

func (t *Transaction) FeeEstimate() (FeeEstimate, bool) {
	if t.feeEstimate == nil {
		return FeeEstimate{}, false
	}

	return t.feeEstimate.clone(), true
}

func (t *Transaction) Hash() (common.Hash, bool) {
	if t.hash == nil {
		return common.Hash{}, false
	}

	return *t.hash, true
}

func (t *Transaction) requireDraft() error {
	if t.status != StatusDraft {
		return fmt.Errorf("%w: status %s", ErrFrozen, t.status)
	}

	return nil
}

// ChangeSender sets the sender, usually the wallet address.
func (t *Transaction) ChangeSender(sender common.Address) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	t.sender = &sender

	return nil
}

// ChangeRecipient sets the recipient.
func (t *Transaction) ChangeRecipient(recipient common.Address) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	t.recipient = &recipient

	return nil
}

// ChangeAmount sets the transferred amount.
func (t *Transaction) ChangeAmount(amount *big.Int) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	t.amount = cloneInt(amount)

	return nil
}

// ChangeFee sets the fee the wallet pays.
func (t *Transaction) ChangeFee(fee *big.Int) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	t.fee = cloneInt(fee)

	return nil
}

// ChangeFeeEstimate sets the relay gas estimation.
func (t *Transaction) ChangeFeeEstimate(estimate FeeEstimate) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	e := estimate.clone()
	t.feeEstimate = &e

	return nil
}

// ChangeData sets the call data and operation.
func (t *Transaction) ChangeData(data []byte, operation contracts.Operation) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	t.data = slices.Clone(data)
	t.operation = operation

	return nil
}

// ChangeNonce sets the Safe nonce the transaction executes with.
func (t *Transaction) ChangeNonce(nonce *big.Int) error {
	if err := t.requireDraft(); err != nil {
		return err
	}
	t.nonce = cloneInt(nonce)

	return nil
}

// ProceedToSigning freezes the transaction. Sender, recipient, amount and fee must be set.
func (t *Transaction) ProceedToSigning() error {
	if t.status != StatusDraft {
		return &StatusError{From: t.status, To: StatusSigning}
	}

	switch {
	case t.sender == nil:
		return fmt.Errorf("%w: sender", ErrMissingField)
	case t.recipient == nil:
		return fmt.Errorf("%w: recipient", ErrMissingField)
	case t.amount == nil:
		return fmt.Errorf("%w: amount", ErrMissingField)
	case t.fee == nil:
		return fmt.Errorf("%w: fee", ErrMissingField)
	}
	t.status = StatusSigning

	return nil
}

// AddSignature attaches sig. A signature from a signer already present is ignored.
func (t *Transaction) AddSignature(sig Signature) error {
	if t.status != StatusDraft && t.status != StatusSigning {
		return fmt.Errorf("%w: status %s", ErrFrozen, t.status)
	}
	if len(sig.Data) != SignatureLength {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(sig.Data))
	}
	if t.IsSignedBy(sig.Signer) {
		return nil
	}
	t.signatures = append(t.signatures, sig.clone())

	return nil
}

// RemoveSignature drops the signature of signer, if any.
func (t *Transaction) RemoveSignature(signer common.Address) {
	t.signatures = slices.DeleteFunc(t.signatures, func(s Signature) bool { return s.Signer == signer })
}

// IsSignedBy reports whether signer has signed.
func (t *Transaction) IsSignedBy(signer common.Address) bool {
	return slices.ContainsFunc(t.signatures, func(s Signature) bool { return s.Signer == signer })
}

// SetHash records the hash of the transaction. It can be set only once.
func (t *Transaction) SetHash(hash common.Hash) error {
	if t.hash != nil {
		return ErrHashAlreadySet
	}
	t.hash = &hash

	return nil
}

// ProceedToPending marks the transaction as submitted.
func (t *Transaction) ProceedToPending() error {
	if t.status != StatusSigning {
		return &StatusError{From: t.status, To: StatusPending}
	}
	if t.hash == nil {
		return fmt.Errorf("%w: hash", ErrMissingField)
	}
	t.status = StatusPending
	t.timestamps.Submitted = t.stamp()

	return nil
}

// Succeed marks a pending transaction as executed.
func (t *Transaction) Succeed() error {
	return t.process(StatusSuccess)
}

// Fail marks a pending transaction as reverted.
func (t *Transaction) Fail() error {
	return t.process(StatusFailed)
}

func (t *Transaction) process(to Status) error {
	if t.status != StatusPending {
		return &StatusError{From: t.status, To: to}
	}
	t.status = to
	t.timestamps.Processed = t.stamp()

	return nil
}

// Reject marks a transaction being signed or pending as rejected.
func (t *Transaction) Reject() error {
	if t.status != StatusSigning && t.status != StatusPending {
		return &StatusError{From: t.status, To: StatusRejected}
	}
	t.status = StatusRejected
	t.timestamps.Rejected = t.stamp()

	return nil
}

// Discard abandons the transaction. It is allowed from any status.
func (t *Transaction) Discard() {
	t.status = StatusDiscarded
}

// ResetToDraft reopens a discarded transaction, clearing hash, signatures and timestamps.
func (t *Transaction) ResetToDraft() error {
	if t.status != StatusDiscarded {
		return &StatusError{From: t.status, To: StatusDraft}
	}
	t.status = StatusDraft
	t.hash = nil
	t.signatures = nil
	t.timestamps = Timestamps{}

	return nil
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.sender = cloneAddress(t.sender)
	c.recipient = cloneAddress(t.recipient)
	c.amount = cloneInt(t.amount)
	c.data = slices.Clone(t.data)
	c.fee = cloneInt(t.fee)
	c.nonce = cloneInt(t.nonce)
	if t.feeEstimate != nil {
		e := t.feeEstimate.clone()
		c.feeEstimate = &e
	}
	c.signatures = cloneSignatures(t.signatures)
	if t.hash != nil {
		h := *t.hash
		c.hash = &h
	}

	return &c
}

func (t *Transaction) stamp() *time.Time {
	now := t.now().UTC()
	return &now
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}

	return new(big.Int).Set(v)
}

func cloneAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a

	return &c
}
