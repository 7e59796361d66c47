package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

const (
	query_WALLET_BY_ID = `
		SELECT payload FROM wallets
		WHERE id = $1`
	query_ALL_WALLETS = `
		SELECT payload FROM wallets
		ORDER BY id`
	query_ADD_WALLET = `
		INSERT INTO wallets (id, payload)
		VALUES ($1, $2)`
	query_DELETE_WALLET = `
		DELETE FROM wallets
		WHERE id = $1`
	query_SELECTED_WALLET_ID = `
		SELECT wallet_id FROM selected_wallet
		WHERE slot = $1`
	query_SELECT_WALLET = `
		INSERT INTO selected_wallet (slot, wallet_id)
		VALUES ($1, $2)`
	query_CLEAR_SELECTED_WALLET = `
		DELETE FROM selected_wallet
		WHERE slot = $1`

	query_ACCOUNT_BY_ID = `
		SELECT balance FROM accounts
		WHERE id = $1`
	query_ADD_ACCOUNT = `
		INSERT INTO accounts (id, wallet_id, token, balance)
		VALUES ($1, $2, $3, $4)`
)

// selectedSlot is the only row of the selected_wallet table.
const selectedSlot = 1

// WalletStore implements wallet.Repository.
type WalletStore struct {
	db *sql.DB
}

var _ wallet.Repository = &WalletStore{}

func (s *WalletStore) Save(ctx context.Context, w *wallet.Wallet) error {
	payload, err := json.Marshal(w.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal wallet %s: %w", w.ID(), err)
	}

	if err := replace(ctx, s.db, "wallets", string(w.ID()), query_ADD_WALLET, string(w.ID()), string(payload)); err != nil {
		return fmt.Errorf("failed to save wallet %s: %w", w.ID(), err)
	}

	return nil
}

// Remove deletes the wallet and clears the selection when it pointed to it. Both changes
// are made in one transaction.
func (s *WalletStore) Remove(ctx context.Context, id wallet.ID) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to remove wallet %s: %w", id, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, query_DELETE_WALLET, string(id)); err != nil {
		return fmt.Errorf("failed to remove wallet %s: %w", id, err)
	}

	selected, err := queryStrings(ctx, tx, query_SELECTED_WALLET_ID, selectedSlot)
	if err != nil {
		return fmt.Errorf("failed to read selected wallet: %w", err)
	}
	if len(selected) > 0 && wallet.ID(selected[0]) == id {
		if _, err = tx.ExecContext(ctx, query_CLEAR_SELECTED_WALLET, selectedSlot); err != nil {
			return fmt.Errorf("failed to clear selected wallet: %w", err)
		}
	}

	return tx.Commit()
}

func (s *WalletStore) Find(ctx context.Context, id wallet.ID) (*wallet.Wallet, error) {
	payloads, err := queryStrings(ctx, s.db, query_WALLET_BY_ID, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet %s: %w", id, err)
	}

	switch len(payloads) {
	case 0:
		return nil, wallet.ErrNotFound
	case 1:
		return decodeWallet(payloads[0])
	default:
		return nil, fmt.Errorf("expected a single row, got %d", len(payloads))
	}
}

func (s *WalletStore) FindAll(ctx context.Context) ([]*wallet.Wallet, error) {
	payloads, err := queryStrings(ctx, s.db, query_ALL_WALLETS)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	out := make([]*wallet.Wallet, 0, len(payloads))
	for _, p := range payloads {
		w, err := decodeWallet(p)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}

	return out, nil
}

func (s *WalletStore) SelectedWallet(ctx context.Context) (*wallet.Wallet, error) {
	id, err := s.selectedID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, wallet.ErrNoSelectedWallet
	}

	return s.Find(ctx, id)
}

// Select marks the wallet as the one the user works with. The wallet must exist.
func (s *WalletStore) Select(ctx context.Context, id wallet.ID) error {
	if _, err := s.Find(ctx, id); err != nil {
		return err
	}
	if err := replace(ctx, s.db, "selected_wallet", selectedSlot, query_SELECT_WALLET, selectedSlot, string(id)); err != nil {
		return fmt.Errorf("failed to select wallet %s: %w", id, err)
	}

	return nil
}

func (s *WalletStore) selectedID(ctx context.Context) (wallet.ID, error) {
	ids, err := queryStrings(ctx, s.db, query_SELECTED_WALLET_ID, selectedSlot)
	if err != nil {
		return "", fmt.Errorf("failed to read selected wallet: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}

	return wallet.ID(ids[0]), nil
}

func decodeWallet(payload string) (*wallet.Wallet, error) {
	var r wallet.Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet record: %w", err)
	}

	return wallet.FromRecord(r)
}

// AccountStore implements wallet.AccountRepository.
type AccountStore struct {
	db *sql.DB
}

var _ wallet.AccountRepository = &AccountStore{}

func (s *AccountStore) Find(ctx context.Context, id wallet.AccountID) (*wallet.Account, error) {
	balances, err := queryStrings(ctx, s.db, query_ACCOUNT_BY_ID, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to find account %s: %w", id, err)
	}
	if len(balances) == 0 {
		return nil, wallet.ErrAccountNotFound
	}

	balance, ok := new(big.Int).SetString(balances[0], 10)
	if !ok {
		return nil, fmt.Errorf("account %s: invalid balance %q", id, balances[0])
	}

	return &wallet.Account{ID: id, Balance: balance}, nil
}

func (s *AccountStore) Save(ctx context.Context, account *wallet.Account) error {
	balance := "0"
	if account.Balance != nil {
		balance = account.Balance.String()
	}

	err := replace(ctx, s.db, "accounts", account.ID.String(), query_ADD_ACCOUNT,
		account.ID.String(), string(account.ID.WalletID), account.ID.Token.Hex(), balance)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}

	return nil
}
