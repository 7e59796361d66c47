package keystore

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.etcd.io/bbolt"
)

// keysBucketName maps an address to its raw 32 byte private key.
var keysBucketName = []byte("keys")

var _ Repository = (*BoltStore)(nil)

// BoltStore is a Repository persisted in a bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the key database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open key store %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(keysBucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create keys bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(_ context.Context, key *ecdsa.PrivateKey) (common.Address, error) {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(keysBucketName).Put(addr.Bytes(), crypto.FromECDSA(key))
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("save key %s: %w", addr.Hex(), err)
	}

	return addr, nil
}

func (s *BoltStore) Find(_ context.Context, address common.Address) (*ecdsa.PrivateKey, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		// values are only valid inside the transaction
		if v := tx.Bucket(keysBucketName).Get(address.Bytes()); v != nil {
			raw = append([]byte(nil), v...)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find key %s: %w", address.Hex(), err)
	}
	if raw == nil {
		return nil, ErrKeyNotFound
	}

	return crypto.ToECDSA(raw)
}

func (s *BoltStore) Remove(_ context.Context, address common.Address) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(keysBucketName).Delete(address.Bytes())
	})
	if err != nil {
		return fmt.Errorf("remove key %s: %w", address.Hex(), err)
	}

	return nil
}
