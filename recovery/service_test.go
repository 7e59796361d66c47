package recovery

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/datastore"
	"github.com/smartcontractkit/safe-wallet-framework/encryption"
	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/internal/neterr"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/internal/testing/mocks"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/metadata"
	"github.com/smartcontractkit/safe-wallet-framework/multisig"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

var recoveryHash = common.HexToHash("0x7ec0")

// fakeChain answers the owner manager calls of a single safe and applies the owners
// configured in after once the recovery transaction is mined.
type fakeChain struct {
	mu        sync.Mutex
	owners    []common.Address
	threshold int64
	after     []common.Address
	status    evm.ReceiptStatus
	proxy     contracts.OwnerManagerProxy
}

var _ evm.NodeService = (*fakeChain)(nil)

func (c *fakeChain) GetBalance(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func (c *fakeChain) GetTransactionReceipt(_ context.Context, hash common.Hash) (*evm.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == evm.ReceiptSuccess && c.after != nil {
		c.owners = c.after
		c.threshold = int64(len(c.after) - 2)
		c.after = nil
	}

	return &evm.Receipt{TxHash: hash, Status: c.status, BlockNumber: big.NewInt(12)}, nil
}

func (c *fakeChain) Call(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if to != safeAddr {
		return nil, nil
	}
	switch {
	case bytes.Equal(data, c.proxy.GetOwners()):
		addressSlice, err := abi.NewType("address[]", "", nil)
		if err != nil {
			return nil, err
		}
		return abi.Arguments{{Type: addressSlice}}.Pack(c.owners)
	case bytes.Equal(data, c.proxy.GetThreshold()):
		return common.LeftPadBytes(big.NewInt(c.threshold).Bytes(), 32), nil
	}

	return nil, neterr.Server("call", assert.AnError)
}

type fixture struct {
	service *Service
	relay   *mocks.MockRelayService
	chain   *fakeChain
	wallets *datastore.MemoryWalletStore
	txs     *datastore.MemoryTransactionStore
	keys    *keystore.MemoryStore
	errs    *events.ErrorRecorder
	enc     *encryption.Service

	phrase  string
	paper   common.Address
	derived common.Address

	mu        sync.Mutex
	published []wallet.EventType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		relay:   mocks.NewMockRelayService(t),
		chain:   &fakeChain{proxy: contracts.NewOwnerManagerProxy(nil), status: evm.ReceiptSuccess},
		wallets: datastore.NewMemoryWalletStore(),
		txs:     datastore.NewMemoryTransactionStore(),
		keys:    keystore.NewMemoryStore(),
		errs:    events.NewErrorRecorder(nil),
		enc:     encryption.New(),
	}

	var err error
	f.phrase, err = f.enc.GenerateMnemonic()
	require.NoError(t, err)
	keys, err := f.enc.DeriveKeys(f.phrase, 2)
	require.NoError(t, err)
	f.paper = crypto.PubkeyToAddress(keys[0].PublicKey)
	f.derived = crypto.PubkeyToAddress(keys[1].PublicKey)

	registry, err := metadata.NewRegistry(multiSendAddr, metadata.Contract{
		Type:    metadata.MultiSend,
		Address: multiSendAddr,
		Version: semver.MustParse("1.1.0"),
	})
	require.NoError(t, err)

	bus := events.NewBus(logger.Test(t))
	for _, e := range []wallet.EventType{
		wallet.EventRecoveryStarted,
		wallet.EventWalletRecovered,
		wallet.EventRecoveryCompleted,
		wallet.EventRecoveryAborted,
	} {
		bus.Subscribe(string(e), func(_ context.Context, event events.Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.published = append(f.published, event.(wallet.Event).Type)
		})
	}

	poll := retry.Config{Attempts: 2, Delay: time.Millisecond}
	f.service = NewService(Deps{
		Wallets:      f.wallets,
		Transactions: f.txs,
		Bus:          bus,
		Relay:        f.relay,
		Node:         f.chain,
		Crypto:       f.enc,
		Keys:         f.keys,
		MultiSend:    registry,
		Errors:       f.errs,
		Logger:       logger.Test(t),
	}, Options{Network: poll, ReceiptPoll: poll})
	t.Cleanup(f.service.Stop)

	return f
}

func (f *fixture) events() []wallet.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]wallet.EventType(nil), f.published...)
}

func (f *fixture) setOwners(threshold int64, owners ...common.Address) {
	f.chain.mu.Lock()
	defer f.chain.mu.Unlock()

	f.chain.owners = owners
	f.chain.threshold = threshold
}

// prepare runs the recovery steps up to a signed recovery transaction.
func (f *fixture) prepare(t *testing.T, twoFactor *wallet.Owner) (*wallet.Wallet, *transaction.Transaction) {
	t.Helper()

	ctx := t.Context()
	w, err := f.service.PrepareForRecovery(ctx)
	require.NoError(t, err)
	require.NoError(t, f.service.ChangeWalletAddress(ctx, w.ID(), safeAddr))
	require.NoError(t, f.service.ProvideRecoveryPhrase(ctx, w.ID(), f.phrase))
	if twoFactor != nil {
		require.NoError(t, f.service.ProvideSecondFactor(ctx, w.ID(), *twoFactor))
	}

	f.relay.On("EstimateTransaction", mock.Anything, mock.MatchedBy(func(req relay.EstimateRequest) bool {
		return req.Safe == safeAddr
	})).Return(relay.Estimation{
		SafeTxGas:      big.NewInt(1000),
		DataGas:        big.NewInt(500),
		OperationalGas: big.NewInt(100),
		GasPrice:       big.NewInt(2),
		NextNonce:      big.NewInt(7),
	}, nil).Once()

	tx, err := f.service.CreateRecoveryTransaction(ctx, w.ID())
	require.NoError(t, err)

	w, err = f.wallets.Find(ctx, w.ID())
	require.NoError(t, err)

	return w, tx
}

func (f *fixture) signers(t *testing.T, tx *transaction.Transaction) []common.Address {
	t.Helper()

	hash := multisig.SafeTxHash(contracts.NewSafeProxy(nil), safeAddr, tx)
	var out []common.Address
	for _, sig := range tx.Signatures() {
		addr, err := f.enc.AddressRecover(hash.Bytes(), sig.Data)
		require.NoError(t, err)
		assert.Equal(t, sig.Signer, addr)
		out = append(out, addr)
	}

	return out
}

func device(t *testing.T, w *wallet.Wallet) common.Address {
	t.Helper()

	o, ok := w.Owner(wallet.RoleThisDevice)
	require.True(t, ok)

	return o.Address
}

func TestService_RecoversSingleFactorWallet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)

	w, tx := f.prepare(t, nil)
	dev := device(t, w)

	assert.Equal(t, transaction.StatusSigning, tx.Status())
	assert.Equal(t, transaction.TypeWalletRecovery, tx.Type())
	recipient, _ := tx.Recipient()
	assert.Equal(t, safeAddr, recipient)
	assert.Equal(t, contracts.Call, tx.Operation())
	assert.Equal(t, 0, tx.Fee().Cmp(big.NewInt(3200)))
	assert.Equal(t, 0, tx.Nonce().Cmp(big.NewInt(7)))
	assert.Equal(t, []common.Address{f.paper}, f.signers(t, tx))

	swap, err := contracts.NewOwnerManagerProxy(nil).DecodeSwapOwner(tx.Data())
	require.NoError(t, err)
	assert.Equal(t, contracts.SwapOwnerArgs{PrevOwner: contracts.SentinelOwner, OldOwner: lostDevice, NewOwner: dev}, swap)

	f.chain.after = []common.Address{dev, f.paper, f.derived}
	f.relay.On("SubmitTransaction", mock.Anything, mock.MatchedBy(func(req relay.SubmitRequest) bool {
		return req.Safe == safeAddr && len(req.Signatures) == 1 && req.Nonce.Cmp(big.NewInt(7)) == 0
	})).Return(relay.SubmitResponse{TransactionHash: recoveryHash}, nil).Once()

	require.NoError(t, f.service.Start(t.Context(), w.ID()))
	require.Empty(t, f.errs.Errors())

	w, err = f.wallets.Find(t.Context(), w.ID())
	require.NoError(t, err)
	assert.Equal(t, wallet.StateReadyToUse, w.State())
	assert.Equal(t, 1, w.ConfirmationThreshold())
	assert.Equal(t, []wallet.Owner{
		{Address: dev, Role: wallet.RoleThisDevice},
		{Address: f.paper, Role: wallet.RolePaperWallet},
		{Address: f.derived, Role: wallet.RolePaperWalletDerived},
	}, w.Owners())
	assert.Equal(t, []wallet.EventType{
		wallet.EventRecoveryStarted,
		wallet.EventWalletRecovered,
		wallet.EventRecoveryCompleted,
	}, f.events())

	stored, err := f.txs.Find(t.Context(), tx.ID())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status())
	hash, ok := stored.Hash()
	require.True(t, ok)
	assert.Equal(t, recoveryHash, hash)

	for _, addr := range []common.Address{f.paper, f.derived} {
		_, err = f.keys.Find(t.Context(), addr)
		require.ErrorIs(t, err, keystore.ErrKeyNotFound)
	}
	_, err = f.keys.Find(t.Context(), dev)
	require.NoError(t, err)
}

func TestService_CreateRecoveryTransaction_Schemes(t *testing.T) {
	t.Parallel()

	extension := wallet.Owner{Address: newExtension, Role: wallet.RoleBrowserExtension}

	tests := []struct {
		name          string
		giveThreshold int64
		giveOwners    func(f *fixture) []common.Address
		giveTwoFactor *wallet.Owner
		wantMultiSend bool
		wantSigners   func(f *fixture) []common.Address
	}{
		{
			name:          "single factor to two factor",
			giveThreshold: 1,
			giveOwners:    func(f *fixture) []common.Address { return []common.Address{lostDevice, f.paper, f.derived} },
			giveTwoFactor: &extension,
			wantMultiSend: true,
			wantSigners:   func(f *fixture) []common.Address { return []common.Address{f.paper} },
		},
		{
			name:          "two factor to two factor",
			giveThreshold: 2,
			giveOwners: func(f *fixture) []common.Address {
				return []common.Address{lostDevice, lostExtension, f.paper, f.derived}
			},
			giveTwoFactor: &extension,
			wantMultiSend: true,
			wantSigners:   func(f *fixture) []common.Address { return []common.Address{f.paper, f.derived} },
		},
		{
			name:          "two factor to single factor",
			giveThreshold: 2,
			giveOwners: func(f *fixture) []common.Address {
				return []common.Address{lostDevice, lostExtension, f.paper, f.derived}
			},
			wantMultiSend: true,
			wantSigners:   func(f *fixture) []common.Address { return []common.Address{f.paper, f.derived} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.setOwners(tt.giveThreshold, tt.giveOwners(f)...)

			w, tx := f.prepare(t, tt.giveTwoFactor)
			if tt.giveTwoFactor != nil {
				assert.Equal(t, 2, w.ConfirmationThreshold())
			}

			recipient, _ := tx.Recipient()
			if tt.wantMultiSend {
				assert.Equal(t, multiSendAddr, recipient)
				assert.Equal(t, contracts.DelegateCall, tx.Operation())
			}
			assert.Equal(t, tt.wantSigners(f), f.signers(t, tx))
		})
	}
}

func TestService_CreateRecoveryTransaction_ReplacesPrevious(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)
	w, first := f.prepare(t, nil)

	f.relay.On("EstimateTransaction", mock.Anything, mock.Anything).Return(relay.Estimation{
		SafeTxGas: big.NewInt(1000),
		GasPrice:  big.NewInt(1),
		NextNonce: big.NewInt(7),
	}, nil).Once()
	second, err := f.service.CreateRecoveryTransaction(t.Context(), w.ID())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	stored, err := f.txs.Find(t.Context(), first.ID())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusDiscarded, stored.Status())

	latest, err := f.txs.FindByWalletAndType(t.Context(), w.ID(), transaction.TypeWalletRecovery)
	require.NoError(t, err)
	assert.Equal(t, second.ID(), latest.ID())
}

func TestService_Validation(t *testing.T) {
	t.Parallel()

	t.Run("unsupported scheme", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.setOwners(2, lostDevice, f.paper, f.derived)
		w, err := f.service.PrepareForRecovery(t.Context())
		require.NoError(t, err)

		err = f.service.ChangeWalletAddress(t.Context(), w.ID(), safeAddr)
		require.ErrorIs(t, err, ErrUnsupportedScheme)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)

		w, err = f.wallets.Find(t.Context(), w.ID())
		require.NoError(t, err)
		_, ok := w.Address()
		assert.False(t, ok)
	})

	t.Run("invalid phrase", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.setOwners(1, lostDevice, f.paper, f.derived)
		w, err := f.service.PrepareForRecovery(t.Context())
		require.NoError(t, err)
		require.NoError(t, f.service.ChangeWalletAddress(t.Context(), w.ID(), safeAddr))

		err = f.service.ProvideRecoveryPhrase(t.Context(), w.ID(), "not a recovery phrase")
		require.ErrorIs(t, err, ErrInvalidRecoveryPhrase)
	})

	t.Run("phrase of another safe", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.setOwners(1, lostDevice, paperAddr, derivedAddr)
		w, err := f.service.PrepareForRecovery(t.Context())
		require.NoError(t, err)
		require.NoError(t, f.service.ChangeWalletAddress(t.Context(), w.ID(), safeAddr))

		err = f.service.ProvideRecoveryPhrase(t.Context(), w.ID(), f.phrase)
		require.ErrorIs(t, err, ErrNotOwner)
		_, err = f.keys.Find(t.Context(), f.paper)
		require.ErrorIs(t, err, keystore.ErrKeyNotFound)
	})

	t.Run("second factor role", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		w, err := f.service.PrepareForRecovery(t.Context())
		require.NoError(t, err)

		err = f.service.ProvideSecondFactor(t.Context(), w.ID(), wallet.Owner{Address: newExtension, Role: wallet.RolePaperWallet})
		require.ErrorIs(t, err, ErrInvalidSecondFactor)
	})

	t.Run("recovery transaction needs the phrase", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.setOwners(1, lostDevice, f.paper, f.derived)
		w, err := f.service.PrepareForRecovery(t.Context())
		require.NoError(t, err)
		require.NoError(t, f.service.ChangeWalletAddress(t.Context(), w.ID(), safeAddr))

		_, err = f.service.CreateRecoveryTransaction(t.Context(), w.ID())
		require.ErrorIs(t, err, wallet.ErrMissingOwnerRole)
	})

	t.Run("owners changed since the phrase was given", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.setOwners(1, lostDevice, f.paper, f.derived)
		w, err := f.service.PrepareForRecovery(t.Context())
		require.NoError(t, err)
		require.NoError(t, f.service.ChangeWalletAddress(t.Context(), w.ID(), safeAddr))
		require.NoError(t, f.service.ProvideRecoveryPhrase(t.Context(), w.ID(), f.phrase))
		f.setOwners(1, lostDevice, lostExtension, f.paper, f.derived)

		_, err = f.service.CreateRecoveryTransaction(t.Context(), w.ID())
		require.ErrorIs(t, err, ErrUnsupportedScheme)
		require.ErrorIs(t, f.errs.Last(), ErrUnsupportedScheme)
	})
}

func TestService_ChangeWalletAddress_RemovesRecoveryKeys(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)
	ctx := t.Context()
	w, err := f.service.PrepareForRecovery(ctx)
	require.NoError(t, err)
	require.NoError(t, f.service.ChangeWalletAddress(ctx, w.ID(), safeAddr))
	require.NoError(t, f.service.ProvideRecoveryPhrase(ctx, w.ID(), f.phrase))
	for _, addr := range []common.Address{f.paper, f.derived} {
		_, err = f.keys.Find(ctx, addr)
		require.NoError(t, err)
	}

	require.NoError(t, f.service.ChangeWalletAddress(ctx, w.ID(), safeAddr))

	for _, addr := range []common.Address{f.paper, f.derived} {
		_, err = f.keys.Find(ctx, addr)
		require.ErrorIs(t, err, keystore.ErrKeyNotFound)
	}
	w, err = f.wallets.Find(ctx, w.ID())
	require.NoError(t, err)
	_, ok := w.Owner(wallet.RolePaperWallet)
	assert.False(t, ok)

	// Giving the phrase again stores the keys anew.
	require.NoError(t, f.service.ProvideRecoveryPhrase(ctx, w.ID(), f.phrase))
	_, err = f.keys.Find(ctx, f.paper)
	require.NoError(t, err)
}

func TestService_Start_FailedRecoveryIsCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)
	w, tx := f.prepare(t, nil)
	f.chain.status = evm.ReceiptFailed
	f.relay.On("SubmitTransaction", mock.Anything, mock.Anything).
		Return(relay.SubmitResponse{TransactionHash: recoveryHash}, nil).Once()

	require.NoError(t, f.service.Start(t.Context(), w.ID()))

	require.ErrorIs(t, f.errs.Last(), ErrRecoveryTransactionFailed)
	w, err := f.wallets.Find(t.Context(), w.ID())
	require.NoError(t, err)
	assert.Equal(t, wallet.StateRecoveryDraft, w.State())
	assert.Equal(t, []wallet.EventType{wallet.EventRecoveryStarted, wallet.EventRecoveryAborted}, f.events())

	stored, err := f.txs.Find(t.Context(), tx.ID())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusDiscarded, stored.Status())

	err = f.service.Start(t.Context(), w.ID())
	require.ErrorIs(t, err, ErrNoRecoveryTransaction)
}

func TestService_Start_ResumesAfterNetworkError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)
	w, tx := f.prepare(t, nil)
	f.chain.after = []common.Address{device(t, w), f.paper, f.derived}

	f.relay.On("SubmitTransaction", mock.Anything, mock.Anything).
		Return(relay.SubmitResponse{}, neterr.Transport("submit", assert.AnError)).Times(2)

	require.NoError(t, f.service.Start(t.Context(), w.ID()))
	assert.True(t, neterr.Is(f.errs.Last()))

	w, err := f.wallets.Find(t.Context(), w.ID())
	require.NoError(t, err)
	assert.Equal(t, wallet.StateRecoveryInProgress, w.State())
	stored, err := f.txs.Find(t.Context(), tx.ID())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSigning, stored.Status())

	f.relay.On("SubmitTransaction", mock.Anything, mock.Anything).
		Return(relay.SubmitResponse{TransactionHash: recoveryHash}, nil).Once()
	require.NoError(t, f.service.Start(t.Context(), w.ID()))

	w, err = f.wallets.Find(t.Context(), w.ID())
	require.NoError(t, err)
	assert.Equal(t, wallet.StateReadyToUse, w.State())
}

func TestService_Start_ResumesAfterRecoveryMined(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mined     func(tx *transaction.Transaction) error
		wantState wallet.State
		wantTx    transaction.Status
		wantErr   error
	}{
		{
			name:      "succeeded",
			mined:     (*transaction.Transaction).Succeed,
			wantState: wallet.StateReadyToUse,
			wantTx:    transaction.StatusSuccess,
		},
		{
			name:      "reverted",
			mined:     (*transaction.Transaction).Fail,
			wantState: wallet.StateRecoveryDraft,
			wantTx:    transaction.StatusDiscarded,
			wantErr:   ErrRecoveryTransactionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			f := newFixture(t)
			f.setOwners(1, lostDevice, f.paper, f.derived)
			w, tx := f.prepare(t, nil)
			dev := device(t, w)

			// The process stopped after the receipt was stored but before the wallet moved on.
			require.NoError(t, tx.SetHash(recoveryHash))
			require.NoError(t, tx.ProceedToPending())
			require.NoError(t, tt.mined(tx))
			require.NoError(t, f.txs.Save(ctx, tx))
			w, err := f.wallets.Find(ctx, w.ID())
			require.NoError(t, err)
			_, err = w.Transition(wallet.ActionResume)
			require.NoError(t, err)
			require.NoError(t, f.wallets.Save(ctx, w))
			f.setOwners(1, dev, f.paper, f.derived)

			require.NoError(t, f.service.Start(ctx, w.ID()))

			if tt.wantErr != nil {
				require.ErrorIs(t, f.errs.Last(), tt.wantErr)
			} else {
				require.Empty(t, f.errs.Errors())
			}
			got, err := f.wallets.Find(ctx, w.ID())
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, got.State())
			stored, err := f.txs.Find(ctx, tx.ID())
			require.NoError(t, err)
			assert.Equal(t, tt.wantTx, stored.Status())
		})
	}
}

func TestService_CancelRecovery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)
	w, tx := f.prepare(t, nil)

	require.NoError(t, f.service.CancelRecovery(t.Context(), w.ID()))

	stored, err := f.txs.Find(t.Context(), tx.ID())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusDiscarded, stored.Status())
	assert.Equal(t, []wallet.EventType{wallet.EventRecoveryAborted}, f.events())

	draft, err := wallet.New("deploying", lostDevice)
	require.NoError(t, err)
	require.NoError(t, f.wallets.Save(t.Context(), draft))
	require.ErrorIs(t, f.service.CancelRecovery(t.Context(), draft.ID()), ErrNotRecovering)
	require.ErrorIs(t, f.service.Start(t.Context(), draft.ID()), ErrNotRecovering)
}

func TestService_SyncOwners_InfersRoles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setOwners(1, lostDevice, f.paper, f.derived)
	w, _ := f.prepare(t, nil)
	dev := device(t, w)

	personalSafe := common.HexToAddress("0x00000000000000000000000000000000000000c8")
	personal, err := wallet.NewRecoveryDraft("personal", common.HexToAddress("0x00000000000000000000000000000000000000c9"))
	require.NoError(t, err)
	require.NoError(t, personal.AssignAddress(personalSafe))
	require.NoError(t, f.wallets.Save(t.Context(), personal))

	f.chain.after = []common.Address{dev, personalSafe, f.paper, f.derived}
	f.relay.On("SubmitTransaction", mock.Anything, mock.Anything).
		Return(relay.SubmitResponse{TransactionHash: recoveryHash}, nil).Once()

	require.NoError(t, f.service.Start(t.Context(), w.ID()))
	require.Empty(t, f.errs.Errors())

	w, err = f.wallets.Find(t.Context(), w.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, w.ConfirmationThreshold())
	owner, ok := w.OwnerByAddress(personalSafe)
	require.True(t, ok)
	assert.Equal(t, wallet.RolePersonalSafe, owner.Role)
}
