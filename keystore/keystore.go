// Package keystore keeps the private keys the wallet owns: the device key and, until the
// wallet is deployed or recovered, the keys derived from the recovery phrase.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrKeyNotFound = errors.New("key not found")

// Repository stores private keys by address.
type Repository interface {
	Save(ctx context.Context, key *ecdsa.PrivateKey) (common.Address, error)
	Find(ctx context.Context, address common.Address) (*ecdsa.PrivateKey, error)
	Remove(ctx context.Context, address common.Address) error
}

var _ Repository = (*MemoryStore)(nil)

// MemoryStore is a Repository kept in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[common.Address][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[common.Address][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, key *ecdsa.PrivateKey) (common.Address, error) {
	addr := crypto.PubkeyToAddress(key.PublicKey)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[addr] = crypto.FromECDSA(key)

	return addr, nil
}

func (s *MemoryStore) Find(_ context.Context, address common.Address) (*ecdsa.PrivateKey, error) {
	s.mu.RLock()
	raw, ok := s.keys[address]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}

	return crypto.ToECDSA(raw)
}

// Remove deletes the key of address. Removing a missing key is not an error.
func (s *MemoryStore) Remove(_ context.Context, address common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, address)

	return nil
}
