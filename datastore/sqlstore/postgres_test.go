package sqlstore

import (
	"testing"

	"github.com/rubenv/pgtest"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/safe-wallet-framework/datastore/storetest"
	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// openPostgresForTest starts an in-process postgres and returns a Store over it. Tests are
// skipped on hosts without postgres binaries.
func openPostgresForTest(t *testing.T) *Store {
	t.Helper()

	pg, err := pgtest.Start()
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { require.NoError(t, pg.Stop()) })

	s, err := New(t.Context(), pg.DB)
	require.NoError(t, err)

	return s
}

// truncate empties every table so sequential subtests start from a clean store.
func truncate(t *testing.T, s *Store) {
	t.Helper()

	for _, table := range []string{"wallets", "selected_wallet", "accounts", "transactions"} {
		_, err := s.db.ExecContext(t.Context(), `DELETE FROM `+table)
		require.NoError(t, err)
	}
}

func TestPostgres_Repositories(t *testing.T) {
	t.Parallel()

	s := openPostgresForTest(t)

	t.Run("wallets", func(t *testing.T) {
		storetest.RunWalletRepository(t, func(t *testing.T) wallet.Repository {
			truncate(t, s)
			return s.Wallets()
		})
	})

	t.Run("accounts", func(t *testing.T) {
		storetest.RunAccountRepository(t, func(t *testing.T) wallet.AccountRepository {
			truncate(t, s)
			return s.Accounts()
		})
	})

	t.Run("transactions", func(t *testing.T) {
		storetest.RunTransactionRepository(t, func(t *testing.T) transaction.Repository {
			truncate(t, s)
			return s.Transactions()
		})
	})
}
