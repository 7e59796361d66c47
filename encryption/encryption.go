// Package encryption hashes, signs and recovers with secp256k1 keys, recovers the address of
// a contract deployed by a pre-signed creation transaction and derives recovery keys from a
// BIP-39 phrase.
package encryption

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MnemonicEntropyBits is the entropy of a generated recovery phrase (12 words).
const MnemonicEntropyBits = 128

var (
	ErrInvalidHash     = errors.New("hash must be 32 bytes")
	ErrInvalidMnemonic = errors.New("invalid recovery phrase")
)

// UnsignedTransaction is a contract creation transaction without its signature.
type UnsignedTransaction struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	Value    *big.Int
	Data     []byte
}

// Option configures a Service.
type Option func(*Service)

// WithDerivationPath sets the root path recovery keys are derived under. The key index is
// appended as the last component.
func WithDerivationPath(path accounts.DerivationPath) Option {
	return func(s *Service) {
		s.root = slices.Clone(path)
	}
}

// Service is the secp256k1 implementation of the wallet cryptography.
type Service struct {
	root accounts.DerivationPath
}

// New returns a Service deriving keys under m/44'/60'/0'/0 unless configured otherwise.
func New(opts ...Option) *Service {
	s := &Service{root: slices.Clone(accounts.DefaultRootDerivationPath)}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Hash returns the keccak256 hash of data.
func (s *Service) Hash(data []byte) []byte {
	return crypto.Keccak256(data)
}

// Sign signs a 32 byte hash. The returned signature is r || s || v with v in {27, 28}.
func (s *Service) Sign(hash []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != common.HashLength {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHash, len(hash))
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}

// AddressRecover returns the address that signed hash. v may be given as 0/1 or 27/28.
func (s *Service) AddressRecover(hash []byte, signature []byte) (common.Address, error) {
	if len(hash) != common.HashLength {
		return common.Address{}, fmt.Errorf("%w: got %d", ErrInvalidHash, len(hash))
	}
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}

	sig := slices.Clone(signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// ContractAddress returns the address of the contract created by tx when it is broadcast with
// sig. The sender is recovered with the homestead rules and the contract address is derived
// from the sender and the transaction nonce.
func (s *Service) ContractAddress(sig Signature, tx UnsignedTransaction) (common.Address, error) {
	if err := sig.Validate(); err != nil {
		return common.Address{}, err
	}

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    tx.Nonce,
		GasPrice: orZero(tx.GasPrice),
		Gas:      tx.Gas,
		Value:    orZero(tx.Value),
		Data:     slices.Clone(tx.Data),
	})

	signer := types.HomesteadSigner{}
	signed, err := unsigned.WithSignature(signer, sig.recoverable())
	if err != nil {
		return common.Address{}, fmt.Errorf("attach signature: %w", err)
	}

	sender, err := types.Sender(signer, signed)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover sender: %w", err)
	}

	return crypto.CreateAddress(sender, tx.Nonce), nil
}

// GenerateKey returns a new random private key.
func (s *Service) GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// RandomS returns a random value in [1, n/2] usable as the s component of a safe creation
// signature request.
func (s *Service) RandomS() (*big.Int, error) {
	v, err := rand.Int(rand.Reader, secp256k1HalfN)
	if err != nil {
		return nil, err
	}

	return v.Add(v, big.NewInt(1)), nil
}

// GenerateMnemonic returns a new 12 word recovery phrase.
func (s *Service) GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports whether mnemonic is a valid BIP-39 phrase.
func (s *Service) ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// DeriveKeys derives the first n keys of mnemonic under the configured root path.
func (s *Service) DeriveKeys(mnemonic string, n int) ([]*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	parent := master
	for _, idx := range s.root {
		if parent, err = parent.Derive(idx); err != nil {
			return nil, fmt.Errorf("derive %s: %w", s.root, err)
		}
	}

	keys := make([]*ecdsa.PrivateKey, 0, n)
	for i := range n {
		child, err := parent.Derive(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("derive key %d: %w", i, err)
		}
		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, fmt.Errorf("derive key %d: %w", i, err)
		}
		keys = append(keys, priv.ToECDSA())
	}

	return keys, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(v)
}
