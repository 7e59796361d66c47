package datastore

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// MemoryTransactionStore is an in-memory implementation of transaction.Repository.
type MemoryTransactionStore struct {
	mu  sync.RWMutex
	txs map[transaction.ID]*transaction.Transaction
}

// MemoryTransactionStore implements transaction.Repository interface.
var _ transaction.Repository = &MemoryTransactionStore{}

// NewMemoryTransactionStore creates a new MemoryTransactionStore instance.
func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{txs: make(map[transaction.ID]*transaction.Transaction)}
}

func (s *MemoryTransactionStore) Save(_ context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs[tx.ID()] = tx.Clone()

	return nil
}

func (s *MemoryTransactionStore) Remove(_ context.Context, id transaction.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.txs, id)

	return nil
}

func (s *MemoryTransactionStore) Find(_ context.Context, id transaction.ID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}

	return tx.Clone(), nil
}

func (s *MemoryTransactionStore) FindByHash(_ context.Context, hash common.Hash) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.txs {
		if h, ok := tx.Hash(); ok && h == hash {
			return tx.Clone(), nil
		}
	}

	return nil, transaction.ErrNotFound
}

func (s *MemoryTransactionStore) FindByWalletAndType(_ context.Context, walletID wallet.ID, txType transaction.Type) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *transaction.Transaction
	for _, tx := range s.txs {
		if tx.WalletID() != walletID || tx.Type() != txType || tx.Status() == transaction.StatusDiscarded {
			continue
		}
		if latest == nil || newer(tx, latest) {
			latest = tx
		}
	}
	if latest == nil {
		return nil, transaction.ErrNotFound
	}

	return latest.Clone(), nil
}

func (s *MemoryTransactionStore) NextID(context.Context) (transaction.ID, error) {
	return transaction.NewID(), nil
}

// newer orders transactions by creation time, then by id. Ids are time ordered as well.
func newer(a, b *transaction.Transaction) bool {
	ca, cb := created(a), created(b)
	if !ca.Equal(cb) {
		return ca.After(cb)
	}

	return a.ID() > b.ID()
}

func created(tx *transaction.Transaction) time.Time {
	if c := tx.Timestamps().Created; c != nil {
		return *c
	}

	return time.Time{}
}
