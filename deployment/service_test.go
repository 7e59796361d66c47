package deployment

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/datastore"
	"github.com/smartcontractkit/safe-wallet-framework/encryption"
	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/internal/neterr"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/internal/testing/mocks"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

const walletID wallet.ID = "wallet-1"

var (
	creationHash = common.HexToHash("0xc0ffee")
	tokenAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// fixedS is the deployment cryptography with a predetermined s value.
type fixedS struct {
	*encryption.Service
	s *big.Int
}

func (f fixedS) RandomS() (*big.Int, error) {
	return new(big.Int).Set(f.s), nil
}

type notification struct {
	wallet wallet.ID
	owner  wallet.Owner
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifySafeCreated(_ context.Context, w *wallet.Wallet, owner wallet.Owner) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, notification{wallet: w.ID(), owner: owner})

	return nil
}

// stateRecorder remembers every state a wallet was saved in.
type stateRecorder struct {
	*datastore.MemoryWalletStore

	mu     sync.Mutex
	states []wallet.State
}

func (r *stateRecorder) Save(ctx context.Context, w *wallet.Wallet) error {
	r.mu.Lock()
	r.states = append(r.states, w.State())
	r.mu.Unlock()

	return r.MemoryWalletStore.Save(ctx, w)
}

func (r *stateRecorder) Saved() []wallet.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]wallet.State(nil), r.states...)
}

type fixture struct {
	service  *Service
	clients  *mocks.MockClients
	wallets  *stateRecorder
	accounts *datastore.MemoryAccountStore
	keys     *keystore.MemoryStore
	bus      *events.Bus
	errs     *events.ErrorRecorder
	notifier *recordingNotifier

	device    common.Address
	paper     common.Address
	derived   common.Address
	extension common.Address

	mu        sync.Mutex
	published []wallet.EventType
}

func quickPoll(attempts uint) retry.Config {
	return retry.Config{Attempts: attempts, Delay: time.Millisecond}
}

func newFixture(t *testing.T, s *big.Int) *fixture {
	t.Helper()

	f := &fixture{
		clients:  mocks.NewMockClients(t),
		wallets:  &stateRecorder{MemoryWalletStore: datastore.NewMemoryWalletStore()},
		accounts: datastore.NewMemoryAccountStore(),
		keys:     keystore.NewMemoryStore(),
		bus:      events.NewBus(logger.Test(t)),
		errs:     events.NewErrorRecorder(nil),
		notifier: &recordingNotifier{},
	}

	f.device = f.saveKey(t)
	f.paper = f.saveKey(t)
	f.derived = f.saveKey(t)
	ext, err := crypto.GenerateKey()
	require.NoError(t, err)
	f.extension = crypto.PubkeyToAddress(ext.PublicKey)

	for _, e := range []wallet.EventType{
		wallet.EventDeploymentStarted,
		wallet.EventWalletConfigured,
		wallet.EventDeploymentFunded,
		wallet.EventCreationStarted,
		wallet.EventWalletTransactionHashIsKnown,
		wallet.EventWalletCreated,
		wallet.EventWalletCreationFailed,
		wallet.EventDeploymentAborted,
	} {
		f.bus.Subscribe(string(e), func(_ context.Context, event events.Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.published = append(f.published, event.(wallet.Event).Type)
		})
	}

	f.service = NewService(Deps{
		Wallets:  f.wallets,
		Accounts: f.accounts,
		Bus:      f.bus,
		Relay:    f.clients.Relay,
		Node:     f.clients.Node,
		Crypto:   fixedS{Service: encryption.New(), s: s},
		Keys:     f.keys,
		Notifier: f.notifier,
		Errors:   f.errs,
		Logger:   logger.Test(t),
	}, Options{
		Relay:       quickPoll(2),
		BalancePoll: quickPoll(5),
		HashPoll:    quickPoll(3),
		ReceiptPoll: quickPoll(3),
	})
	t.Cleanup(f.service.Stop)

	return f
}

func (f *fixture) saveKey(t *testing.T) common.Address {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr, err := f.keys.Save(t.Context(), key)
	require.NoError(t, err)

	return addr
}

func (f *fixture) events() []wallet.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]wallet.EventType(nil), f.published...)
}

// draft stores a draft wallet with the mandatory owners and, when twoFactor is set, a
// browser extension.
func (f *fixture) draft(t *testing.T, twoFactor bool) *wallet.Wallet {
	t.Helper()

	w, err := wallet.New(walletID, f.device)
	require.NoError(t, err)
	require.NoError(t, w.AddOwner(wallet.Owner{Address: f.paper, Role: wallet.RolePaperWallet}))
	require.NoError(t, w.AddOwner(wallet.Owner{Address: f.derived, Role: wallet.RolePaperWalletDerived}))
	if twoFactor {
		require.NoError(t, w.AddOwner(wallet.Owner{Address: f.extension, Role: wallet.RoleBrowserExtension}))
	}
	require.NoError(t, f.wallets.MemoryWalletStore.Save(t.Context(), w))

	return w
}

// advance stores the draft wallet moved to state without running any step.
func (f *fixture) advance(t *testing.T, safe common.Address, token common.Address, state wallet.State) {
	t.Helper()

	w := f.draft(t, false)
	_, err := w.Transition(wallet.ActionResume)
	require.NoError(t, err)
	require.NoError(t, w.AssignAddress(safe))
	require.NoError(t, w.Configure(big.NewInt(1000), token))

	for w.State() != state {
		if w.State() == wallet.StateCreationStarted {
			require.NoError(t, w.AssignCreationTransactionHash(creationHash))
		}
		_, err = w.Transition(wallet.ActionProceed)
		require.NoError(t, err)
	}
	require.NoError(t, f.wallets.MemoryWalletStore.Save(t.Context(), w))
}

func (f *fixture) wallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	w, err := f.wallets.Find(t.Context(), walletID)
	require.NoError(t, err)

	return w
}

// signedCreation returns the response of a relay that signed the creation transaction
// with a fresh key, and the s value of that signature.
func signedCreation(t *testing.T, token common.Address) (relay.SafeCreationResponse, *big.Int) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	unsigned := encryption.UnsignedTransaction{
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      500_000,
		Value:    big.NewInt(0),
		Data:     common.FromHex("0x6080604052"),
	}
	signed, err := types.SignTx(types.NewTx(&types.LegacyTx{
		GasPrice: unsigned.GasPrice,
		Gas:      unsigned.Gas,
		Value:    unsigned.Value,
		Data:     unsigned.Data,
	}), types.HomesteadSigner{}, key)
	require.NoError(t, err)
	v, r, s := signed.RawSignatureValues()

	return relay.SafeCreationResponse{
		Signature:    encryption.Signature{R: r, S: s, V: v.Uint64()},
		Tx:           unsigned,
		Safe:         crypto.CreateAddress(crypto.PubkeyToAddress(key.PublicKey), 0),
		MasterCopy:   common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Payment:      big.NewInt(1000),
		PaymentToken: token,
	}, new(big.Int).Set(s)
}

func ownersRequest(threshold int, owners int) any {
	return mock.MatchedBy(func(req relay.SafeCreationRequest) bool {
		return req.Threshold == threshold && len(req.Owners) == owners
	})
}

func TestService_Start_DeploysWallet(t *testing.T) {
	t.Parallel()

	resp, s := signedCreation(t, common.Address{})
	f := newFixture(t, s)
	f.draft(t, true)

	relayMock, node := f.clients.Relay, f.clients.Node
	relayMock.On("CreateSafeCreationTransaction", mock.Anything, ownersRequest(2, 4)).Return(resp, nil).Once()
	node.On("GetBalance", mock.Anything, resp.Safe).Return(big.NewInt(0), nil).Once()
	node.On("GetBalance", mock.Anything, resp.Safe).Return(big.NewInt(400), nil).Once()
	node.On("GetBalance", mock.Anything, resp.Safe).Return(big.NewInt(1000), nil).Once()
	relayMock.On("StartSafeCreation", mock.Anything, resp.Safe).Return(nil).Once()
	relayMock.On("SafeCreationTransactionHash", mock.Anything, resp.Safe).Return(nil, nil).Once()
	relayMock.On("SafeCreationTransactionHash", mock.Anything, resp.Safe).Return(&creationHash, nil).Once()
	node.On("GetTransactionReceipt", mock.Anything, creationHash).Return(nil, nil).Once()
	node.On("GetTransactionReceipt", mock.Anything, creationHash).
		Return(&evm.Receipt{TxHash: creationHash, Status: evm.ReceiptSuccess, BlockNumber: big.NewInt(7)}, nil).Once()

	require.NoError(t, f.service.Start(t.Context(), walletID))
	require.Empty(t, f.errs.Errors())

	w := f.wallet(t)
	assert.Equal(t, wallet.StateReadyToUse, w.State())
	addr, ok := w.Address()
	require.True(t, ok)
	assert.Equal(t, resp.Safe, addr)
	hash, ok := w.CreationTransactionHash()
	require.True(t, ok)
	assert.Equal(t, creationHash, hash)
	masterCopy, ok := w.MasterCopyAddress()
	require.True(t, ok)
	assert.Equal(t, resp.MasterCopy, masterCopy)

	assert.Equal(t, []wallet.EventType{
		wallet.EventDeploymentStarted,
		wallet.EventWalletConfigured,
		wallet.EventDeploymentFunded,
		wallet.EventCreationStarted,
		wallet.EventWalletTransactionHashIsKnown,
		wallet.EventWalletCreated,
	}, f.events())
	assert.Contains(t, f.wallets.Saved(), wallet.StateNotEnoughFunds)

	account, err := f.accounts.Find(t.Context(), wallet.EtherAccountID(walletID))
	require.NoError(t, err)
	assert.Equal(t, 0, account.Balance.Cmp(big.NewInt(1000)))

	for _, addr := range []common.Address{f.paper, f.derived} {
		_, err = f.keys.Find(t.Context(), addr)
		require.ErrorIs(t, err, keystore.ErrKeyNotFound)
	}
	_, err = f.keys.Find(t.Context(), f.device)
	require.NoError(t, err)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, f.extension, f.notifier.sent[0].owner.Address)
}

func TestService_Start_RejectedCreationCancels(t *testing.T) {
	t.Parallel()

	resp, s := signedCreation(t, common.Address{})
	resp.Safe = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	f := newFixture(t, s)
	f.draft(t, false)

	f.clients.Relay.On("CreateSafeCreationTransaction", mock.Anything, ownersRequest(1, 3)).Return(resp, nil).Once()

	require.NoError(t, f.service.Start(t.Context(), walletID))

	require.ErrorIs(t, f.errs.Last(), relay.ErrAddressMismatch)
	w := f.wallet(t)
	assert.Equal(t, wallet.StateDraft, w.State())
	assert.Len(t, w.Owners(), 1)
	_, ok := w.Address()
	assert.False(t, ok)
	assert.Equal(t, []wallet.EventType{wallet.EventDeploymentStarted, wallet.EventDeploymentAborted}, f.events())
}

func TestService_Start_NetworkErrorKeepsState(t *testing.T) {
	t.Parallel()

	_, s := signedCreation(t, common.Address{})
	f := newFixture(t, s)
	f.draft(t, false)

	f.clients.Relay.On("CreateSafeCreationTransaction", mock.Anything, mock.Anything).
		Return(relay.SafeCreationResponse{}, neterr.Server("create safe", assert.AnError)).Times(2)

	require.NoError(t, f.service.Start(t.Context(), walletID))

	require.Len(t, f.errs.Errors(), 1)
	assert.True(t, neterr.Is(f.errs.Last()))
	assert.Equal(t, wallet.StateDeploying, f.wallet(t).State())
	assert.Equal(t, []wallet.EventType{wallet.EventDeploymentStarted}, f.events())
}

func TestService_Start_ResumesFinalizingDeployment(t *testing.T) {
	t.Parallel()

	safe := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	tests := []struct {
		name       string
		give       evm.ReceiptStatus
		wantState  wallet.State
		wantEvents []wallet.EventType
		wantErr    error
	}{
		{
			name:       "mined",
			give:       evm.ReceiptSuccess,
			wantState:  wallet.StateReadyToUse,
			wantEvents: []wallet.EventType{wallet.EventWalletCreated},
		},
		{
			name:       "reverted",
			give:       evm.ReceiptFailed,
			wantState:  wallet.StateDraft,
			wantEvents: []wallet.EventType{wallet.EventWalletCreationFailed},
			wantErr:    ErrCreationTransactionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, big.NewInt(1))
			f.advance(t, safe, common.Address{}, wallet.StateFinalizingDeployment)
			f.clients.Node.On("GetTransactionReceipt", mock.Anything, creationHash).
				Return(&evm.Receipt{TxHash: creationHash, Status: tt.give}, nil).Once()

			require.NoError(t, f.service.Start(t.Context(), walletID))

			assert.Equal(t, tt.wantState, f.wallet(t).State())
			assert.Equal(t, tt.wantEvents, f.events())
			if tt.wantErr != nil {
				require.ErrorIs(t, f.errs.Last(), tt.wantErr)
			} else {
				require.Empty(t, f.errs.Errors())
			}
		})
	}
}

func TestService_Start_TokenDepositBelowMinimum(t *testing.T) {
	t.Parallel()

	safe := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	f := newFixture(t, big.NewInt(1))
	f.advance(t, safe, tokenAddr, wallet.StateWaitingForFirstDeposit)

	balanceCall := f.service.erc20.BalanceOf(safe)
	f.clients.Node.On("Call", mock.Anything, tokenAddr, balanceCall).
		Return(common.LeftPadBytes(big.NewInt(400).Bytes(), 32), nil).Times(5)

	require.NoError(t, f.service.Start(t.Context(), walletID))

	require.ErrorIs(t, f.errs.Last(), retry.ErrRepeatExhausted)
	assert.Equal(t, wallet.StateNotEnoughFunds, f.wallet(t).State())
	assert.Empty(t, f.events())

	account, err := f.accounts.Find(t.Context(), wallet.AccountID{WalletID: walletID, Token: tokenAddr})
	require.NoError(t, err)
	assert.Equal(t, 0, account.Balance.Cmp(big.NewInt(400)))
	f.clients.Node.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
}

func TestService_Start_BalanceNetworkErrorKeepsPolling(t *testing.T) {
	t.Parallel()

	safe := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	f := newFixture(t, big.NewInt(1))
	f.advance(t, safe, common.Address{}, wallet.StateWaitingForFirstDeposit)

	node, relayMock := f.clients.Node, f.clients.Relay
	node.On("GetBalance", mock.Anything, safe).Return(nil, neterr.Transport("balance", assert.AnError)).Once()
	node.On("GetBalance", mock.Anything, safe).Return(big.NewInt(5000), nil).Once()
	relayMock.On("StartSafeCreation", mock.Anything, safe).Return(assert.AnError).Once()

	require.NoError(t, f.service.Start(t.Context(), walletID))

	require.ErrorIs(t, f.errs.Last(), assert.AnError)
	assert.Equal(t, wallet.StateDraft, f.wallet(t).State())
	assert.Equal(t, []wallet.EventType{wallet.EventDeploymentFunded, wallet.EventDeploymentAborted}, f.events())
}

func TestService_Start_NotDeployable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, big.NewInt(1))
	w, err := wallet.NewRecoveryDraft(walletID, f.device)
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(t.Context(), w))

	err = f.service.Start(t.Context(), walletID)
	require.ErrorIs(t, err, ErrNotDeployable)

	err = f.service.Start(t.Context(), "missing")
	require.ErrorIs(t, err, wallet.ErrNotFound)
}

func TestService_Stop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, big.NewInt(1))
	before := f.bus.Len()

	f.advance(t, common.HexToAddress("0x00000000000000000000000000000000000000f1"), common.Address{}, wallet.StateReadyToUse)
	require.NoError(t, f.service.Start(t.Context(), walletID))
	assert.Equal(t, before+len(f.service.steps()), f.bus.Len())

	require.NoError(t, f.service.Start(t.Context(), walletID))
	assert.Equal(t, before+len(f.service.steps()), f.bus.Len(), "subscribes once")

	f.service.Stop()
	assert.Equal(t, before, f.bus.Len())
}
