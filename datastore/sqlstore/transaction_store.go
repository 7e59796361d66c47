package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

const (
	query_TRANSACTION_BY_ID = `
		SELECT payload FROM transactions
		WHERE id = $1`
	query_TRANSACTION_BY_HASH = `
		SELECT payload FROM transactions
		WHERE tx_hash = $1`
	query_TRANSACTIONS_BY_WALLET_AND_TYPE = `
		SELECT payload FROM transactions
		WHERE wallet_id = $1 AND tx_type = $2`
	query_ADD_TRANSACTION = `
		INSERT INTO transactions (id, wallet_id, tx_type, tx_hash, payload)
		VALUES ($1, $2, $3, $4, $5)`
	query_DELETE_TRANSACTION = `
		DELETE FROM transactions
		WHERE id = $1`
)

// TransactionStore implements transaction.Repository.
type TransactionStore struct {
	db *sql.DB
}

var _ transaction.Repository = &TransactionStore{}

func (s *TransactionStore) Save(ctx context.Context, tx *transaction.Transaction) error {
	payload, err := json.Marshal(tx.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal transaction %s: %w", tx.ID(), err)
	}

	var hash string
	if h, ok := tx.Hash(); ok {
		hash = hashKey(h)
	}

	err = replace(ctx, s.db, "transactions", string(tx.ID()), query_ADD_TRANSACTION,
		string(tx.ID()), string(tx.WalletID()), string(tx.Type()), hash, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID(), err)
	}

	return nil
}

func (s *TransactionStore) Remove(ctx context.Context, id transaction.ID) error {
	if _, err := s.db.ExecContext(ctx, query_DELETE_TRANSACTION, string(id)); err != nil {
		return fmt.Errorf("failed to remove transaction %s: %w", id, err)
	}

	return nil
}

func (s *TransactionStore) Find(ctx context.Context, id transaction.ID) (*transaction.Transaction, error) {
	return s.findOne(ctx, query_TRANSACTION_BY_ID, string(id))
}

func (s *TransactionStore) FindByHash(ctx context.Context, hash common.Hash) (*transaction.Transaction, error) {
	return s.findOne(ctx, query_TRANSACTION_BY_HASH, hashKey(hash))
}

// FindByWalletAndType returns the most recently created transaction of txType that has not
// been discarded.
func (s *TransactionStore) FindByWalletAndType(ctx context.Context, walletID wallet.ID, txType transaction.Type) (*transaction.Transaction, error) {
	payloads, err := queryStrings(ctx, s.db, query_TRANSACTIONS_BY_WALLET_AND_TYPE, string(walletID), string(txType))
	if err != nil {
		return nil, fmt.Errorf("failed to find %s transaction of wallet %s: %w", txType, walletID, err)
	}

	var latest *transaction.Transaction
	for _, p := range payloads {
		tx, err := decodeTransaction(p)
		if err != nil {
			return nil, err
		}
		if tx.Status() == transaction.StatusDiscarded {
			continue
		}
		if latest == nil || newer(tx, latest) {
			latest = tx
		}
	}
	if latest == nil {
		return nil, transaction.ErrNotFound
	}

	return latest, nil
}

func (s *TransactionStore) NextID(context.Context) (transaction.ID, error) {
	return transaction.NewID(), nil
}

func (s *TransactionStore) findOne(ctx context.Context, q string, arg string) (*transaction.Transaction, error) {
	payloads, err := queryStrings(ctx, s.db, q, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction %s: %w", arg, err)
	}

	switch len(payloads) {
	case 0:
		return nil, transaction.ErrNotFound
	case 1:
		return decodeTransaction(payloads[0])
	default:
		return nil, fmt.Errorf("expected a single row, got %d", len(payloads))
	}
}

func decodeTransaction(payload string) (*transaction.Transaction, error) {
	var r transaction.Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction record: %w", err)
	}

	return transaction.FromRecord(r)
}

func hashKey(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

func newer(a, b *transaction.Transaction) bool {
	ca, cb := a.Timestamps().Created, b.Timestamps().Created
	switch {
	case ca != nil && cb != nil && !ca.Equal(*cb):
		return ca.After(*cb)
	case ca != nil && cb == nil:
		return true
	case ca == nil && cb != nil:
		return false
	}

	return a.ID() > b.ID()
}
