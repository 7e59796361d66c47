package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deviceAddr    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	extensionAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	keycardAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	paperAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	derivedAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	safeAddr      = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func draftWallet(t *testing.T, extra ...Owner) *Wallet {
	t.Helper()

	w, err := New("wallet-1", deviceAddr)
	require.NoError(t, err)
	require.NoError(t, w.AddOwner(Owner{Address: paperAddr, Role: RolePaperWallet}))
	require.NoError(t, w.AddOwner(Owner{Address: derivedAddr, Role: RolePaperWalletDerived}))
	for _, o := range extra {
		require.NoError(t, w.AddOwner(o))
	}

	return w
}

func TestWallet_ResumeDerivesThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		extra         []Owner
		wantThreshold int
	}{
		{
			name:          "no second factor",
			wantThreshold: 1,
		},
		{
			name:          "browser extension",
			extra:         []Owner{{Address: extensionAddr, Role: RoleBrowserExtension}},
			wantThreshold: 2,
		},
		{
			name:          "keycard",
			extra:         []Owner{{Address: keycardAddr, Role: RoleKeycard}},
			wantThreshold: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := draftWallet(t, tt.extra...)
			event, err := w.Transition(ActionResume)
			require.NoError(t, err)

			assert.Equal(t, StateDeploying, w.State())
			assert.Equal(t, tt.wantThreshold, w.ConfirmationThreshold())
			assert.LessOrEqual(t, w.ConfirmationThreshold(), len(w.Owners()))
			require.NotNil(t, event)
			assert.Equal(t, EventDeploymentStarted, event.Type)
			assert.Equal(t, w.ID(), event.WalletID)
		})
	}
}

func TestWallet_ResumePreconditions(t *testing.T) {
	t.Parallel()

	t.Run("missing paper wallet", func(t *testing.T) {
		t.Parallel()

		w, err := New("wallet-1", deviceAddr)
		require.NoError(t, err)
		require.NoError(t, w.AddOwner(Owner{Address: derivedAddr, Role: RolePaperWalletDerived}))

		_, err = w.Transition(ActionResume)
		require.ErrorIs(t, err, ErrMissingOwnerRole)

		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, StateDraft, terr.From)
		assert.Equal(t, StateDraft, w.State(), "wallet unchanged on failure")
	})

	t.Run("too many owners", func(t *testing.T) {
		t.Parallel()

		w := draftWallet(t,
			Owner{Address: extensionAddr, Role: RoleBrowserExtension},
			Owner{Address: keycardAddr, Role: RoleUnknown},
		)

		_, err := w.Transition(ActionResume)
		require.ErrorIs(t, err, ErrTooManyOwners)
		assert.Equal(t, 1, w.ConfirmationThreshold())
	})
}

func TestWallet_DeploymentPath(t *testing.T) {
	t.Parallel()

	w := draftWallet(t, Owner{Address: extensionAddr, Role: RoleBrowserExtension})

	steps := []struct {
		action    Action
		prepare   func(w *Wallet)
		wantState State
		wantEvent EventType
	}{
		{action: ActionResume, wantState: StateDeploying, wantEvent: EventDeploymentStarted},
		{
			action:    ActionProceed,
			prepare:   func(w *Wallet) { require.NoError(t, w.AssignAddress(safeAddr)) },
			wantState: StateWaitingForFirstDeposit,
			wantEvent: EventWalletConfigured,
		},
		{action: ActionUnderfund, wantState: StateNotEnoughFunds},
		{action: ActionProceed, wantState: StateCreationStarted, wantEvent: EventDeploymentFunded},
		{action: ActionProceed, wantState: StateCreationStarted, wantEvent: EventCreationStarted},
		{
			action: ActionProceed,
			prepare: func(w *Wallet) {
				require.NoError(t, w.AssignCreationTransactionHash(common.HexToHash("0x01")))
			},
			wantState: StateFinalizingDeployment,
			wantEvent: EventWalletTransactionHashIsKnown,
		},
		{action: ActionProceed, wantState: StateReadyToUse, wantEvent: EventWalletCreated},
	}

	for _, s := range steps {
		if s.prepare != nil {
			s.prepare(w)
		}
		event, err := w.Transition(s.action)
		require.NoError(t, err, "%s from %s", s.action, w.State())
		assert.Equal(t, s.wantState, w.State())
		if s.wantEvent == "" {
			assert.Nil(t, event)
			continue
		}
		require.NotNil(t, event)
		assert.Equal(t, s.wantEvent, event.Type)
	}

	assert.Equal(t, 2, w.ConfirmationThreshold())
	_, err := w.Transition(ActionProceed)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWallet_CancelDeployment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		advance   []Action
		wantEvent EventType
	}{
		{name: "from deploying", advance: []Action{ActionResume}, wantEvent: EventDeploymentAborted},
		{
			name:      "from waiting for deposit",
			advance:   []Action{ActionResume, ActionProceed},
			wantEvent: EventDeploymentAborted,
		},
		{
			name:      "from not enough funds",
			advance:   []Action{ActionResume, ActionProceed, ActionUnderfund},
			wantEvent: EventDeploymentAborted,
		},
		{
			name:      "from creation started",
			advance:   []Action{ActionResume, ActionProceed, ActionProceed},
			wantEvent: EventDeploymentAborted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := draftWallet(t, Owner{Address: keycardAddr, Role: RoleKeycard})
			for _, a := range tt.advance {
				if w.State() == StateDeploying {
					require.NoError(t, w.AssignAddress(safeAddr))
				}
				_, err := w.Transition(a)
				require.NoError(t, err)
			}

			event, err := w.Transition(ActionCancel)
			require.NoError(t, err)
			require.NotNil(t, event)
			assert.Equal(t, tt.wantEvent, event.Type)

			assert.Equal(t, StateDraft, w.State())
			assert.Equal(t, []Owner{{Address: deviceAddr, Role: RoleThisDevice}}, w.Owners())
			assert.Equal(t, 1, w.ConfirmationThreshold())
			_, ok := w.Address()
			assert.False(t, ok)
		})
	}
}

func TestWallet_CancelFinalizingDeploymentFails(t *testing.T) {
	t.Parallel()

	w := draftWallet(t)
	_, err := w.Transition(ActionResume)
	require.NoError(t, err)
	require.NoError(t, w.AssignAddress(safeAddr))
	for range 2 {
		_, err = w.Transition(ActionProceed)
		require.NoError(t, err)
	}
	require.NoError(t, w.AssignCreationTransactionHash(common.HexToHash("0xabc")))
	_, err = w.Transition(ActionProceed)
	require.NoError(t, err)
	require.Equal(t, StateFinalizingDeployment, w.State())

	event, err := w.Transition(ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, EventWalletCreationFailed, event.Type)
	assert.Equal(t, StateDraft, w.State())
	_, ok := w.CreationTransactionHash()
	assert.False(t, ok)
}

func TestWallet_RecoveryPath(t *testing.T) {
	t.Parallel()

	w, err := NewRecoveryDraft("wallet-2", deviceAddr)
	require.NoError(t, err)

	_, err = w.Transition(ActionResume)
	require.ErrorIs(t, err, ErrAddressNotSet)

	require.NoError(t, w.AssignAddress(safeAddr))

	event, err := w.Transition(ActionResume)
	require.NoError(t, err)
	assert.Equal(t, EventRecoveryStarted, event.Type)
	assert.Equal(t, StateRecoveryInProgress, w.State())
	assert.True(t, w.State().IsRecoveryInProgress())

	event, err = w.Transition(ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, EventRecoveryAborted, event.Type)
	assert.Equal(t, StateRecoveryDraft, w.State())
	addr, ok := w.Address()
	require.True(t, ok)
	assert.Equal(t, safeAddr, addr)

	for _, want := range []EventType{EventRecoveryStarted, EventWalletRecovered, EventRecoveryCompleted} {
		event, err = w.Transition(ActionProceed)
		require.NoError(t, err)
		assert.Equal(t, want, event.Type)
	}
	assert.Equal(t, StateReadyToUse, w.State())
}

func TestState_Capabilities(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Capabilities{CanChangeOwners: true, IsDeployable: true}, StateDraft.Capabilities())
	assert.True(t, StateDeploying.CanChangeAddress())
	assert.False(t, StateDeploying.CanChangeOwners())
	assert.True(t, StateCreationStarted.CanChangeTransactionHash())
	assert.True(t, StateFinalizingDeployment.IsCreationInProgress())
	assert.True(t, StateRecoveryDraft.CanChangeAddress())
	assert.True(t, StateRecoveryPostProcessing.CanChangeOwners())
	assert.False(t, StateReadyToUse.IsCreationInProgress())

	assert.True(t, StateDraft.CanApply(ActionResume))
	assert.False(t, StateDraft.CanApply(ActionCancel))

	_, err := ParseState("bogus")
	require.Error(t, err)
	s, err := ParseState("notEnoughFunds")
	require.NoError(t, err)
	assert.Equal(t, StateNotEnoughFunds, s)
}
