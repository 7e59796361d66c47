// Package wallet holds the wallet aggregate: its owners by role, its confirmation threshold
// and its deployment or recovery state.
//
// A wallet only changes state through Transition, driven by a Lifecycle which persists the
// wallet and publishes the resulting Event. The states form a closed set with a fixed
// transition table; every state declares what may be changed while the wallet is in it.
package wallet

import (
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("wallet not found")
	ErrOwnersLocked      = errors.New("owners cannot change in the current state")
	ErrAddressLocked     = errors.New("address cannot change in the current state")
	ErrHashLocked        = errors.New("creation transaction hash cannot change in the current state")
	ErrDuplicateRole     = errors.New("an owner with this role already exists")
	ErrDuplicateOwner    = errors.New("owner address already present")
	ErrMissingOwnerRole  = errors.New("mandatory owner role missing")
	ErrTooManyOwners     = errors.New("too many owners")
	ErrInvalidThreshold  = errors.New("invalid confirmation threshold")
	ErrAddressNotSet     = errors.New("wallet address not set")
	ErrInvalidOwner      = errors.New("invalid owner address")
	ErrNoSelectedWallet  = errors.New("no wallet selected")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidTransition = errors.New("transition not allowed")
)

// TransitionError is returned when an action is not defined for the current state, or when
// its precondition does not hold.
type TransitionError struct {
	From   State
	Action Action
	Err    error
}

func (e *TransitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wallet: cannot %s from state %s", e.Action, e.From)
	}

	return fmt.Sprintf("wallet: cannot %s from state %s: %v", e.Action, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidTransition
	}

	return e.Err
}

// ID identifies a wallet.
type ID string

// NewID returns a random wallet id.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }

// Wallet is a Safe controlled by this client.
type Wallet struct {
	id        ID
	state     State
	owners    []Owner
	threshold int

	address                 *common.Address
	feePaymentToken         *common.Address
	masterCopyAddress       *common.Address
	contractVersion         string
	creationTransactionHash *common.Hash
	minimumDeploymentAmount *big.Int
}

// New returns a draft wallet owned by device.
func New(id ID, device common.Address) (*Wallet, error) {
	return newWallet(id, StateDraft, device)
}

// NewRecoveryDraft returns a wallet waiting to be recovered, owned by device.
func NewRecoveryDraft(id ID, device common.Address) (*Wallet, error) {
	return newWallet(id, StateRecoveryDraft, device)
}

func newWallet(id ID, state State, device common.Address) (*Wallet, error) {
	if device == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero device address", ErrInvalidOwner)
	}

	return &Wallet{
		id:        id,
		state:     state,
		owners:    []Owner{{Address: device, Role: RoleThisDevice}},
		threshold: 1,
	}, nil
}

func (w *Wallet) ID() ID                          { return w.id }
func (w *Wallet) State() State                    { return w.state }
func (w *Wallet) ConfirmationThreshold() int      { return w.threshold }
func (w *Wallet) ContractVersion() string         { return w.contractVersion }
func (w *Wallet) Owners() []Owner                 { return slices.Clone(w.owners) }
func (w *Wallet) Address() (common.Address, bool) { return derefAddress(w.address) }

func (w *Wallet) FeePaymentToken() (common.Address, bool)   { return derefAddress(w.feePaymentToken) }
func (w *Wallet) MasterCopyAddress() (common.Address, bool) { return derefAddress(w.masterCopyAddress) }

func (w *Wallet) CreationTransactionHash() (common.Hash, bool) {
	if w.creationTransactionHash == nil {
		return common.Hash{}, false
	}

	return *w.creationTransactionHash, true
}

// MinimumDeploymentAmount returns a copy of the funding required before creation starts.
func (w *Wallet) MinimumDeploymentAmount() (*big.Int, bool) {
	if w.minimumDeploymentAmount == nil {
		return nil, false
	}

	return new(big.Int).Set(w.minimumDeploymentAmount), true
}

// Owner returns the owner holding role. For RoleUnknown the first one is returned.
func (w *Wallet) Owner(role OwnerRole) (Owner, bool) {
	for _, o := range w.owners {
		if o.Role == role {
			return o, true
		}
	}

	return Owner{}, false
}

// OwnerByAddress returns the owner with the given address.
func (w *Wallet) OwnerByAddress(address common.Address) (Owner, bool) {
	for _, o := range w.owners {
		if o.Address == address {
			return o, true
		}
	}

	return Owner{}, false
}

// TwoFactorOwner returns the browser extension or keycard owner.
func (w *Wallet) TwoFactorOwner() (Owner, bool) {
	for _, o := range w.owners {
		if o.Role.IsTwoFactor() {
			return o, true
		}
	}

	return Owner{}, false
}

// AddOwner adds owner to the wallet.
func (w *Wallet) AddOwner(owner Owner) error {
	if !w.state.CanChangeOwners() {
		return fmt.Errorf("%w: %s", ErrOwnersLocked, w.state)
	}

	return w.addOwner(owner)
}

func (w *Wallet) addOwner(owner Owner) error {
	if owner.Address == (common.Address{}) {
		return fmt.Errorf("%w: zero address for %s", ErrInvalidOwner, owner.Role)
	}
	if _, ok := w.OwnerByAddress(owner.Address); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOwner, owner.Address.Hex())
	}
	if owner.Role != RoleUnknown {
		if _, ok := w.Owner(owner.Role); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, owner.Role)
		}
	}
	w.owners = append(w.owners, owner)

	return nil
}

// RemoveOwner removes the owner holding role. Removing the device owner is not allowed.
func (w *Wallet) RemoveOwner(role OwnerRole) error {
	if !w.state.CanChangeOwners() {
		return fmt.Errorf("%w: %s", ErrOwnersLocked, w.state)
	}
	if role == RoleThisDevice {
		return fmt.Errorf("%w: the device owner cannot be removed", ErrInvalidOwner)
	}

	i := slices.IndexFunc(w.owners, func(o Owner) bool { return o.Role == role })
	if i < 0 {
		return nil
	}
	if w.threshold > len(w.owners)-1 {
		return fmt.Errorf("%w: threshold %d exceeds %d remaining owners", ErrInvalidThreshold, w.threshold, len(w.owners)-1)
	}
	w.owners = slices.Delete(w.owners, i, i+1)

	return nil
}

// ReplaceOwners sets the owners and threshold read from the deployed contract. The
// owners must hold distinct addresses and roles other than unknown at most once.
func (w *Wallet) ReplaceOwners(owners []Owner, threshold int) error {
	if !w.state.CanChangeOwners() {
		return fmt.Errorf("%w: %s", ErrOwnersLocked, w.state)
	}
	if threshold < 1 || threshold > len(owners) {
		return fmt.Errorf("%w: %d of %d owners", ErrInvalidThreshold, threshold, len(owners))
	}

	replaced := &Wallet{state: w.state}
	for _, o := range owners {
		if err := replaced.addOwner(o); err != nil {
			return err
		}
	}
	w.owners = replaced.owners
	w.threshold = threshold

	return nil
}

// AssignAddress sets the address of the safe contract.
func (w *Wallet) AssignAddress(address common.Address) error {
	if !w.state.CanChangeAddress() {
		return fmt.Errorf("%w: %s", ErrAddressLocked, w.state)
	}
	w.address = &address

	return nil
}

// AssignCreationTransactionHash records the hash of the transaction deploying the safe.
func (w *Wallet) AssignCreationTransactionHash(hash common.Hash) error {
	if !w.state.CanChangeTransactionHash() {
		return fmt.Errorf("%w: %s", ErrHashLocked, w.state)
	}
	w.creationTransactionHash = &hash

	return nil
}

// Configure records the creation parameters returned by the relay. It is only allowed
// while the address may change.
func (w *Wallet) Configure(minimumAmount *big.Int, paymentToken common.Address) error {
	if !w.state.CanChangeAddress() {
		return fmt.Errorf("%w: %s", ErrAddressLocked, w.state)
	}
	if minimumAmount == nil || minimumAmount.Sign() < 0 {
		return fmt.Errorf("invalid minimum deployment amount %v", minimumAmount)
	}
	w.minimumDeploymentAmount = new(big.Int).Set(minimumAmount)
	w.feePaymentToken = &paymentToken

	return nil
}

// SetMasterCopy records the implementation contract and its version.
func (w *Wallet) SetMasterCopy(address common.Address, version string) error {
	if !w.state.CanChangeAddress() && !w.state.IsRecoveryInProgress() {
		return fmt.Errorf("%w: %s", ErrAddressLocked, w.state)
	}
	w.masterCopyAddress = &address
	w.contractVersion = version

	return nil
}

// Transition applies action and returns the event describing it. The returned event is nil
// for transitions that are not announced. The wallet is left untouched on error.
func (w *Wallet) Transition(action Action) (*Event, error) {
	candidates, ok := transitions[transitionKey{w.state, action}]
	if !ok {
		return nil, &TransitionError{From: w.state, Action: action}
	}

	for _, t := range candidates {
		if t.guard != nil && !t.guard(w) {
			continue
		}

		next := w.clone()
		if t.apply != nil {
			if err := t.apply(next); err != nil {
				return nil, &TransitionError{From: w.state, Action: action, Err: err}
			}
		}
		from := w.state
		next.state = t.to
		*w = *next

		if t.event == "" {
			return nil, nil
		}

		return &Event{Type: t.event, WalletID: w.id, From: from, To: t.to}, nil
	}

	return nil, &TransitionError{From: w.state, Action: action}
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	return w.clone()
}

func (w *Wallet) clone() *Wallet {
	c := *w
	c.owners = slices.Clone(w.owners)
	c.address = cloneAddress(w.address)
	c.feePaymentToken = cloneAddress(w.feePaymentToken)
	c.masterCopyAddress = cloneAddress(w.masterCopyAddress)
	if w.creationTransactionHash != nil {
		h := *w.creationTransactionHash
		c.creationTransactionHash = &h
	}
	if w.minimumDeploymentAmount != nil {
		c.minimumDeploymentAmount = new(big.Int).Set(w.minimumDeploymentAmount)
	}

	return &c
}

func cloneAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a

	return &c
}

func derefAddress(a *common.Address) (common.Address, bool) {
	if a == nil {
		return common.Address{}, false
	}

	return *a, true
}
