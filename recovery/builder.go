package recovery

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
)

var (
	ErrUnsupportedScheme     = errors.New("unsupported owner scheme")
	ErrNotOwner              = errors.New("address is not an owner of the safe")
	ErrInvalidRecoveryPhrase = errors.New("invalid recovery phrase")
	ErrInvalidSecondFactor   = errors.New("owner is not a second factor device")
)

// ValidationError rejects a recovery before any transaction is built. It is never retried.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("recovery rejected: %s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Scheme is the number of confirmations required out of the number of owners of a safe.
type Scheme struct {
	Confirmations int
	Owners        int
}

var (
	// SingleFactor is the device and the two recovery keys, any one of them confirms.
	SingleFactor = Scheme{Confirmations: 1, Owners: 3}
	// TwoFactor adds a second factor device and requires two confirmations.
	TwoFactor = Scheme{Confirmations: 2, Owners: 4}
)

func (s Scheme) String() string {
	return fmt.Sprintf("%d of %d", s.Confirmations, s.Owners)
}

// Supported reports whether wallets with this scheme can be recovered.
func (s Scheme) Supported() bool {
	return s == SingleFactor || s == TwoFactor
}

// Plan describes the owners of a safe before and after its recovery.
type Plan struct {
	Safe common.Address
	// Owners are the current owners in getOwners() order.
	Owners []common.Address
	// Threshold is the current number of required confirmations.
	Threshold int
	// Replaced are the current owners that are not recovery keys, in getOwners() order.
	Replaced []common.Address
	// Device is the owner key of this device.
	Device common.Address
	// TwoFactor is the new second factor device, nil for a single factor wallet.
	TwoFactor *common.Address
}

// From returns the current scheme of the safe.
func (p Plan) From() Scheme {
	return Scheme{Confirmations: p.Threshold, Owners: len(p.Owners)}
}

// To returns the scheme of the safe once recovered.
func (p Plan) To() Scheme {
	if p.TwoFactor != nil {
		return TwoFactor
	}

	return SingleFactor
}

// Call is the Safe transaction performing a recovery.
type Call struct {
	To        common.Address
	Data      []byte
	Operation contracts.Operation
}

// TransactionBuilder builds the owner changes of a recovery. A single change is a direct
// call on the safe; several changes are batched through the multi-send contract.
type TransactionBuilder struct {
	owners    contracts.OwnerManagerProxy
	multiSend *contracts.MultiSendEncoder
}

// NewTransactionBuilder returns a builder encoding owner changes with owners and batches
// with multiSend.
func NewTransactionBuilder(owners contracts.OwnerManagerProxy, multiSend *contracts.MultiSendEncoder) *TransactionBuilder {
	return &TransactionBuilder{owners: owners, multiSend: multiSend}
}

// Build returns the transaction moving the safe from p.From() to p.To(). The device takes
// the place of the first replaced owner; the second replaced owner is swapped for the new
// second factor or removed.
func (b *TransactionBuilder) Build(p Plan) (Call, error) {
	from, to := p.From(), p.To()
	if !from.Supported() {
		return Call{}, &ValidationError{Reason: "current scheme " + from.String(), Err: ErrUnsupportedScheme}
	}
	if want := from.Owners - 2; len(p.Replaced) != want {
		return Call{}, &ValidationError{
			Reason: fmt.Sprintf("%d owners to replace, expected %d", len(p.Replaced), want),
			Err:    ErrUnsupportedScheme,
		}
	}

	e := &changes{safe: p.Safe, proxy: b.owners, list: contracts.NewOwnerLinkedList(p.Owners...)}
	switch {
	case from == SingleFactor && to == SingleFactor:
		e.swap(p.Replaced[0], p.Device)
	case from == SingleFactor && to == TwoFactor:
		e.swap(p.Replaced[0], p.Device)
		e.add(*p.TwoFactor, TwoFactor.Confirmations)
	case from == TwoFactor && to == TwoFactor:
		e.swap(p.Replaced[0], p.Device)
		e.swap(p.Replaced[1], *p.TwoFactor)
	case from == TwoFactor && to == SingleFactor:
		e.swap(p.Replaced[0], p.Device)
		e.remove(p.Replaced[1], SingleFactor.Confirmations)
	default:
		return Call{}, &ValidationError{Reason: fmt.Sprintf("%s to %s", from, to), Err: ErrUnsupportedScheme}
	}
	if e.err != nil {
		return Call{}, e.err
	}

	if len(e.txs) == 1 {
		return Call{To: p.Safe, Data: e.txs[0].Data, Operation: contracts.Call}, nil
	}
	if b.multiSend == nil {
		return Call{}, errors.New("no multi-send encoder configured")
	}
	address, data, err := b.multiSend.Encode(e.txs)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode multi-send: %w", err)
	}

	return Call{To: address, Data: data, Operation: contracts.DelegateCall}, nil
}

// changes accumulates owner manager calls against a local copy of the owners list, so each
// call uses the predecessor the safe will see once the previous calls have run.
type changes struct {
	safe  common.Address
	proxy contracts.OwnerManagerProxy
	list  *contracts.OwnerLinkedList
	txs   []contracts.MultiSendTx
	err   error
}

func (c *changes) append(data []byte) {
	c.txs = append(c.txs, contracts.MultiSendTx{
		Operation: contracts.Call,
		To:        c.safe,
		Value:     new(big.Int),
		Data:      data,
	})
}

func (c *changes) prev(owner common.Address) (common.Address, bool) {
	if c.err != nil {
		return common.Address{}, false
	}
	prev, ok := c.list.AddressBefore(owner)
	if !ok || owner == contracts.SentinelOwner {
		c.err = &ValidationError{Reason: owner.Hex(), Err: ErrNotOwner}
		return common.Address{}, false
	}

	return prev, true
}

func (c *changes) swap(oldOwner, newOwner common.Address) {
	prev, ok := c.prev(oldOwner)
	if !ok {
		return
	}
	if !c.list.Replace(oldOwner, newOwner) {
		c.err = &ValidationError{Reason: newOwner.Hex() + " is already an owner", Err: ErrUnsupportedScheme}
		return
	}
	c.append(c.proxy.SwapOwner(prev, oldOwner, newOwner))
}

func (c *changes) add(owner common.Address, threshold int) {
	if c.err != nil {
		return
	}
	if c.list.Contains(owner) {
		c.err = &ValidationError{Reason: owner.Hex() + " is already an owner", Err: ErrUnsupportedScheme}
		return
	}
	c.list.Add(owner)
	c.append(c.proxy.AddOwnerWithThreshold(owner, big.NewInt(int64(threshold))))
}

func (c *changes) remove(owner common.Address, threshold int) {
	prev, ok := c.prev(owner)
	if !ok {
		return
	}
	c.list.Remove(owner)
	c.append(c.proxy.RemoveOwner(prev, owner, big.NewInt(int64(threshold))))
}
