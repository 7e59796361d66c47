package wallet

import (
	"fmt"
)

// State is the deployment or recovery status of a wallet.
type State string

const (
	StateDraft                  State = "draft"
	StateDeploying              State = "deploying"
	StateWaitingForFirstDeposit State = "waitingForFirstDeposit"
	StateNotEnoughFunds         State = "notEnoughFunds"
	StateCreationStarted        State = "creationStarted"
	StateFinalizingDeployment   State = "finalizingDeployment"
	StateReadyToUse             State = "readyToUse"
	StateRecoveryDraft          State = "recoveryDraft"
	StateRecoveryInProgress     State = "recoveryInProgress"
	StateRecoveryPostProcessing State = "recoveryPostProcessing"
)

// Capabilities lists what may change on a wallet while it is in a given state.
type Capabilities struct {
	CanChangeOwners          bool
	CanChangeAddress         bool
	CanChangeTransactionHash bool
	IsDeployable             bool
	IsCreationInProgress     bool
	IsRecoveryInProgress     bool
}

var capabilities = map[State]Capabilities{
	StateDraft:                  {CanChangeOwners: true, IsDeployable: true},
	StateDeploying:              {CanChangeAddress: true, IsCreationInProgress: true},
	StateWaitingForFirstDeposit: {IsCreationInProgress: true},
	StateNotEnoughFunds:         {IsCreationInProgress: true},
	StateCreationStarted:        {CanChangeTransactionHash: true, IsCreationInProgress: true},
	StateFinalizingDeployment:   {IsCreationInProgress: true},
	StateReadyToUse:             {CanChangeOwners: true},
	StateRecoveryDraft:          {CanChangeOwners: true, CanChangeAddress: true},
	StateRecoveryInProgress:     {IsRecoveryInProgress: true},
	StateRecoveryPostProcessing: {CanChangeOwners: true, IsRecoveryInProgress: true},
}

// ParseState returns the state named s.
func ParseState(s string) (State, error) {
	if _, ok := capabilities[State(s)]; !ok {
		return "", fmt.Errorf("unknown wallet state %q", s)
	}

	return State(s), nil
}

// Capabilities returns the capability flags of s.
func (s State) Capabilities() Capabilities {
	return capabilities[s]
}

func (s State) CanChangeOwners() bool          { return capabilities[s].CanChangeOwners }
func (s State) CanChangeAddress() bool         { return capabilities[s].CanChangeAddress }
func (s State) CanChangeTransactionHash() bool { return capabilities[s].CanChangeTransactionHash }
func (s State) IsDeployable() bool             { return capabilities[s].IsDeployable }
func (s State) IsCreationInProgress() bool     { return capabilities[s].IsCreationInProgress }
func (s State) IsRecoveryInProgress() bool     { return capabilities[s].IsRecoveryInProgress }

// Action drives a wallet from one state to the next.
type Action string

const (
	ActionResume  Action = "resume"
	ActionProceed Action = "proceed"
	ActionCancel  Action = "cancel"
	// ActionUnderfund records that a deposit was observed but is below the minimum.
	ActionUnderfund Action = "underfund"
)

type transitionKey struct {
	from   State
	action Action
}

// transition is one edge of the state graph. Edges sharing a key are tried in order and the
// first whose guard holds is taken.
type transition struct {
	to    State
	event EventType
	guard func(w *Wallet) bool
	apply func(w *Wallet) error
}

var transitions = map[transitionKey][]transition{
	{StateDraft, ActionResume}: {
		{to: StateDeploying, event: EventDeploymentStarted, apply: prepareDeployment},
	},
	{StateDeploying, ActionProceed}: {
		{to: StateWaitingForFirstDeposit, event: EventWalletConfigured, apply: requireAddress},
	},
	{StateDeploying, ActionCancel}: {
		{to: StateDraft, event: EventDeploymentAborted, apply: resetDeployment},
	},
	{StateWaitingForFirstDeposit, ActionUnderfund}: {
		{to: StateNotEnoughFunds},
	},
	{StateWaitingForFirstDeposit, ActionProceed}: {
		{to: StateCreationStarted, event: EventDeploymentFunded},
	},
	{StateWaitingForFirstDeposit, ActionCancel}: {
		{to: StateDraft, event: EventDeploymentAborted, apply: resetDeployment},
	},
	{StateNotEnoughFunds, ActionProceed}: {
		{to: StateCreationStarted, event: EventDeploymentFunded},
	},
	{StateNotEnoughFunds, ActionCancel}: {
		{to: StateDraft, event: EventDeploymentAborted, apply: resetDeployment},
	},
	{StateCreationStarted, ActionProceed}: {
		// The relay has been asked to create the safe but the hash is still unknown.
		{to: StateCreationStarted, event: EventCreationStarted, guard: hashUnknown},
		{to: StateFinalizingDeployment, event: EventWalletTransactionHashIsKnown},
	},
	{StateCreationStarted, ActionCancel}: {
		{to: StateDraft, event: EventDeploymentAborted, apply: resetDeployment},
	},
	{StateFinalizingDeployment, ActionProceed}: {
		{to: StateReadyToUse, event: EventWalletCreated},
	},
	{StateFinalizingDeployment, ActionCancel}: {
		{to: StateDraft, event: EventWalletCreationFailed, apply: resetDeployment},
	},
	{StateRecoveryDraft, ActionResume}: {
		{to: StateRecoveryInProgress, event: EventRecoveryStarted, apply: requireAddress},
	},
	{StateRecoveryDraft, ActionProceed}: {
		{to: StateRecoveryInProgress, event: EventRecoveryStarted, apply: requireAddress},
	},
	{StateRecoveryDraft, ActionCancel}: {
		{to: StateRecoveryDraft, event: EventRecoveryAborted},
	},
	{StateRecoveryInProgress, ActionProceed}: {
		{to: StateRecoveryPostProcessing, event: EventWalletRecovered},
	},
	{StateRecoveryInProgress, ActionCancel}: {
		{to: StateRecoveryDraft, event: EventRecoveryAborted},
	},
	{StateRecoveryPostProcessing, ActionProceed}: {
		{to: StateReadyToUse, event: EventRecoveryCompleted},
	},
	{StateRecoveryPostProcessing, ActionCancel}: {
		{to: StateRecoveryDraft, event: EventRecoveryAborted},
	},
}

// CanApply reports whether action is defined for state s.
func (s State) CanApply(action Action) bool {
	_, ok := transitions[transitionKey{s, action}]
	return ok
}

// maxDeploymentOwners bounds the owners of a wallet deployed by this client.
const maxDeploymentOwners = 4

func prepareDeployment(w *Wallet) error {
	for _, r := range mandatoryRoles {
		if _, ok := w.Owner(r); !ok {
			return fmt.Errorf("%w: %s", ErrMissingOwnerRole, r)
		}
	}
	if len(w.owners) > maxDeploymentOwners {
		return fmt.Errorf("%w: %d owners, at most %d", ErrTooManyOwners, len(w.owners), maxDeploymentOwners)
	}

	w.threshold = 1
	for _, o := range w.owners {
		if o.Role.IsTwoFactor() {
			w.threshold = 2
			break
		}
	}

	return nil
}

func requireAddress(w *Wallet) error {
	if w.address == nil {
		return ErrAddressNotSet
	}

	return nil
}

// resetDeployment reverts a cancelled deployment to a single device owner.
func resetDeployment(w *Wallet) error {
	device, ok := w.Owner(RoleThisDevice)
	w.owners = nil
	if ok {
		w.owners = []Owner{device}
	}
	w.threshold = 1
	w.address = nil
	w.creationTransactionHash = nil
	w.minimumDeploymentAmount = nil

	return nil
}

func hashUnknown(w *Wallet) bool {
	return w.creationTransactionHash == nil
}
