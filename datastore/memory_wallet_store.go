package datastore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// MemoryWalletStore is an in-memory implementation of wallet.Repository. Wallets are cloned
// on the way in and on the way out, so callers never share state with the store.
type MemoryWalletStore struct {
	mu       sync.RWMutex
	wallets  map[wallet.ID]*wallet.Wallet
	selected wallet.ID
}

// MemoryWalletStore implements wallet.Repository interface.
var _ wallet.Repository = &MemoryWalletStore{}

// NewMemoryWalletStore creates a new MemoryWalletStore instance.
func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{wallets: make(map[wallet.ID]*wallet.Wallet)}
}

func (s *MemoryWalletStore) Save(_ context.Context, w *wallet.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[w.ID()] = w.Clone()

	return nil
}

// Remove deletes the wallet and clears the selection when it pointed to it.
func (s *MemoryWalletStore) Remove(_ context.Context, id wallet.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.wallets, id)
	if s.selected == id {
		s.selected = ""
	}

	return nil
}

func (s *MemoryWalletStore) Find(_ context.Context, id wallet.ID) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]
	if !ok {
		return nil, wallet.ErrNotFound
	}

	return w.Clone(), nil
}

// FindAll returns every wallet ordered by id.
func (s *MemoryWalletStore) FindAll(_ context.Context) ([]*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*wallet.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w.Clone())
	}
	slices.SortFunc(out, func(a, b *wallet.Wallet) int {
		return strings.Compare(string(a.ID()), string(b.ID()))
	})

	return out, nil
}

func (s *MemoryWalletStore) SelectedWallet(_ context.Context) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == "" {
		return nil, wallet.ErrNoSelectedWallet
	}
	w, ok := s.wallets[s.selected]
	if !ok {
		return nil, wallet.ErrNoSelectedWallet
	}

	return w.Clone(), nil
}

// Select marks the wallet as the one the user works with. The wallet must exist.
func (s *MemoryWalletStore) Select(_ context.Context, id wallet.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[id]; !ok {
		return wallet.ErrNotFound
	}
	s.selected = id

	return nil
}

// MemoryAccountStore is an in-memory implementation of wallet.AccountRepository.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[wallet.AccountID]*wallet.Account
}

// MemoryAccountStore implements wallet.AccountRepository interface.
var _ wallet.AccountRepository = &MemoryAccountStore{}

// NewMemoryAccountStore creates a new MemoryAccountStore instance.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[wallet.AccountID]*wallet.Account)}
}

func (s *MemoryAccountStore) Find(_ context.Context, id wallet.AccountID) (*wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}

	return a.Clone(), nil
}

func (s *MemoryAccountStore) Save(_ context.Context, account *wallet.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account.Clone()

	return nil
}
