// Package storetest holds the behaviour every wallet, account and transaction repository
// implementation must share. Implementations run these against a fresh store.
package storetest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

var (
	deviceAddr  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	paperAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	derivedAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	safeAddr    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

// NewWallet returns a deploying wallet with an address and three owners.
func NewWallet(t *testing.T, id wallet.ID) *wallet.Wallet {
	t.Helper()

	w, err := wallet.New(id, deviceAddr)
	require.NoError(t, err)
	require.NoError(t, w.AddOwner(wallet.Owner{Address: paperAddr, Role: wallet.RolePaperWallet}))
	require.NoError(t, w.AddOwner(wallet.Owner{Address: derivedAddr, Role: wallet.RolePaperWalletDerived}))
	_, err = w.Transition(wallet.ActionResume)
	require.NoError(t, err)
	require.NoError(t, w.AssignAddress(safeAddr))
	require.NoError(t, w.Configure(big.NewInt(1000), common.Address{}))

	return w
}

// RunWalletRepository checks Save, Find, FindAll, Remove and the wallet selection.
func RunWalletRepository(t *testing.T, newRepo func(t *testing.T) wallet.Repository) {
	t.Helper()

	t.Run("save and find", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		w := NewWallet(t, "wallet-1")
		require.NoError(t, repo.Save(ctx, w))

		got, err := repo.Find(ctx, "wallet-1")
		require.NoError(t, err)
		assert.Equal(t, w.Record(), got.Record())

		_, err = repo.Find(ctx, "missing")
		require.ErrorIs(t, err, wallet.ErrNotFound)
	})

	t.Run("save overwrites", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		w := NewWallet(t, "wallet-1")
		require.NoError(t, repo.Save(ctx, w))
		_, err := w.Transition(wallet.ActionProceed)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, w))

		got, err := repo.Find(ctx, "wallet-1")
		require.NoError(t, err)
		assert.Equal(t, wallet.StateWaitingForFirstDeposit, got.State())

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("returned wallets are copies", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		require.NoError(t, repo.Save(ctx, NewWallet(t, "wallet-1")))
		got, err := repo.Find(ctx, "wallet-1")
		require.NoError(t, err)
		_, err = got.Transition(wallet.ActionCancel)
		require.NoError(t, err)

		again, err := repo.Find(ctx, "wallet-1")
		require.NoError(t, err)
		assert.Equal(t, wallet.StateDeploying, again.State())
	})

	t.Run("find all is ordered by id", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		for _, id := range []wallet.ID{"c", "a", "b"} {
			require.NoError(t, repo.Save(ctx, NewWallet(t, id)))
		}

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []wallet.ID{"a", "b", "c"}, []wallet.ID{all[0].ID(), all[1].ID(), all[2].ID()})
	})

	t.Run("selection", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		_, err := repo.SelectedWallet(ctx)
		require.ErrorIs(t, err, wallet.ErrNoSelectedWallet)

		require.ErrorIs(t, repo.Select(ctx, "missing"), wallet.ErrNotFound)

		require.NoError(t, repo.Save(ctx, NewWallet(t, "wallet-1")))
		require.NoError(t, repo.Save(ctx, NewWallet(t, "wallet-2")))
		require.NoError(t, repo.Select(ctx, "wallet-1"))
		require.NoError(t, repo.Select(ctx, "wallet-2"))

		got, err := repo.SelectedWallet(ctx)
		require.NoError(t, err)
		assert.Equal(t, wallet.ID("wallet-2"), got.ID())

		require.NoError(t, repo.Remove(ctx, "wallet-1"))
		got, err = repo.SelectedWallet(ctx)
		require.NoError(t, err)
		assert.Equal(t, wallet.ID("wallet-2"), got.ID())

		require.NoError(t, repo.Remove(ctx, "wallet-2"))
		_, err = repo.SelectedWallet(ctx)
		require.ErrorIs(t, err, wallet.ErrNoSelectedWallet)
		_, err = repo.Find(ctx, "wallet-2")
		require.ErrorIs(t, err, wallet.ErrNotFound)
	})
}

// RunAccountRepository checks Find and Save.
func RunAccountRepository(t *testing.T, newRepo func(t *testing.T) wallet.AccountRepository) {
	t.Helper()

	t.Run("save and find", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		ether := wallet.NewAccount(wallet.EtherAccountID("wallet-1"))
		ether.Update(big.NewInt(42))
		require.NoError(t, repo.Save(ctx, ether))

		tokenID := wallet.AccountID{WalletID: "wallet-1", Token: tokenAddr}
		_, err := repo.Find(ctx, tokenID)
		require.ErrorIs(t, err, wallet.ErrAccountNotFound)

		got, err := repo.Find(ctx, ether.ID)
		require.NoError(t, err)
		assert.Equal(t, ether.ID, got.ID)
		assert.Equal(t, 0, got.Balance.Cmp(big.NewInt(42)))

		got.Update(big.NewInt(43))
		require.NoError(t, repo.Save(ctx, got))
		again, err := repo.Find(ctx, ether.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Balance.Cmp(big.NewInt(43)))
	})
}

func newTransfer(t *testing.T, id transaction.ID, walletID wallet.ID) *transaction.Transaction {
	t.Helper()

	tx := transaction.New(id, transaction.TypeTransfer, wallet.EtherAccountID(walletID))
	require.NoError(t, tx.ChangeSender(safeAddr))
	require.NoError(t, tx.ChangeRecipient(paperAddr))
	require.NoError(t, tx.ChangeAmount(big.NewInt(5)))
	require.NoError(t, tx.ChangeFee(big.NewInt(1)))

	return tx
}

// RunTransactionRepository checks the lookups of transaction.Repository.
func RunTransactionRepository(t *testing.T, newRepo func(t *testing.T) transaction.Repository) {
	t.Helper()

	t.Run("save and find", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		tx := newTransfer(t, "tx-1", "wallet-1")
		hash := common.HexToHash("0xABCDEF")
		require.NoError(t, tx.SetHash(hash))
		require.NoError(t, repo.Save(ctx, tx))

		got, err := repo.Find(ctx, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, tx.WalletID(), got.WalletID())
		assert.Equal(t, tx.Status(), got.Status())
		assert.Equal(t, 0, got.Amount().Cmp(big.NewInt(5)))

		byHash, err := repo.FindByHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, transaction.ID("tx-1"), byHash.ID())

		_, err = repo.Find(ctx, "missing")
		require.ErrorIs(t, err, transaction.ErrNotFound)
		_, err = repo.FindByHash(ctx, common.HexToHash("0x01"))
		require.ErrorIs(t, err, transaction.ErrNotFound)

		require.NoError(t, repo.Remove(ctx, "tx-1"))
		_, err = repo.Find(ctx, "tx-1")
		require.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("find by wallet and type", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		older := newTransfer(t, "tx-a", "wallet-1")
		newer := newTransfer(t, "tx-b", "wallet-1")
		discarded := newTransfer(t, "tx-c", "wallet-1")
		discarded.Discard()
		other := newTransfer(t, "tx-d", "wallet-2")
		for _, tx := range []*transaction.Transaction{older, newer, discarded, other} {
			require.NoError(t, repo.Save(ctx, tx))
		}

		got, err := repo.FindByWalletAndType(ctx, "wallet-1", transaction.TypeTransfer)
		require.NoError(t, err)
		assert.Equal(t, transaction.ID("tx-b"), got.ID())

		_, err = repo.FindByWalletAndType(ctx, "wallet-1", transaction.TypeWalletRecovery)
		require.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("next id", func(t *testing.T) {
		ctx := t.Context()
		repo := newRepo(t)

		a, err := repo.NextID(ctx)
		require.NoError(t, err)
		b, err := repo.NextID(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, a)
		assert.NotEqual(t, a, b)
	})
}
