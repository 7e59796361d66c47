// Package multisig signs Safe transactions on this device and hands them to the relay once
// enough owners have signed.
package multisig

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/encryption"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

var (
	ErrSecondFactorNotConnected = errors.New("second factor not connected")
	ErrNotEnoughSignatures      = errors.New("not enough signatures")
)

// Signer signs hashes with a private key and recovers the signer of a signature.
// *encryption.Service implements it.
type Signer interface {
	Sign(hash []byte, key *ecdsa.PrivateKey) ([]byte, error)
	transaction.AddressRecoverer
}

// Submitter collects the device signature and submits transactions through the relay.
type Submitter struct {
	wallets wallet.Repository
	txs     transaction.Repository
	keys    keystore.Repository
	relay   relay.Service
	signer  Signer
	safe    contracts.SafeProxy
	lggr    logger.Logger
}

// NewSubmitter returns a Submitter. Keys of the device owners are read from keys.
func NewSubmitter(
	wallets wallet.Repository,
	txs transaction.Repository,
	keys keystore.Repository,
	relayService relay.Service,
	signer Signer,
	safe contracts.SafeProxy,
	lggr logger.Logger,
) *Submitter {
	return &Submitter{
		wallets: wallets,
		txs:     txs,
		keys:    keys,
		relay:   relayService,
		signer:  signer,
		safe:    safe,
		lggr:    lggr.Named("multisig"),
	}
}

// SafeTxHash returns the hash owners sign for tx executed by safe.
func SafeTxHash(proxy contracts.SafeProxy, safe common.Address, tx *transaction.Transaction) common.Hash {
	recipient, _ := tx.Recipient()
	estimate, _ := tx.FeeEstimate()

	return proxy.TransactionHash(contracts.SafeTx{
		Safe:      safe,
		To:        recipient,
		Value:     tx.Amount(),
		Data:      tx.Data(),
		Operation: tx.Operation(),
		SafeTxGas: estimate.SafeTxGas,
		DataGas:   estimate.DataGas,
		GasPrice:  estimate.GasPrice,
		GasToken:  estimate.GasToken,
		Nonce:     tx.Nonce(),
	})
}

// SignAndSubmit signs the transaction with the device key and submits it. The device
// signs last: when the wallet threshold requires it, a verified signature of the second
// factor owner must already be attached.
func (s *Submitter) SignAndSubmit(ctx context.Context, id transaction.ID) (*transaction.Transaction, error) {
	tx, err := s.txs.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	w, err := s.wallets.Find(ctx, tx.WalletID())
	if err != nil {
		return nil, err
	}
	safe, ok := w.Address()
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", w.ID(), wallet.ErrAddressNotSet)
	}

	if tx.Status() == transaction.StatusDraft {
		if err = tx.ProceedToSigning(); err != nil {
			return nil, err
		}
	}

	hash := SafeTxHash(s.safe, safe, tx)
	if err = s.verifyRemoteSignatures(w, tx, hash); err != nil {
		return nil, err
	}

	device, ok := w.Owner(wallet.RoleThisDevice)
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w: %s", w.ID(), wallet.ErrMissingOwnerRole, wallet.RoleThisDevice)
	}
	key, err := s.keys.Find(ctx, device.Address)
	if err != nil {
		return nil, fmt.Errorf("device key of wallet %s: %w", w.ID(), err)
	}
	sig, err := s.signer.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction %s: %w", tx.ID(), err)
	}
	if err = tx.AddSignature(transaction.Signature{Signer: device.Address, Data: sig}); err != nil {
		return nil, err
	}

	if err = s.SubmitSigned(ctx, tx, w); err != nil {
		return nil, err
	}

	return tx, nil
}

// verifyRemoteSignatures checks that threshold-1 signatures of the second factor owner are
// attached and authentic.
func (s *Submitter) verifyRemoteSignatures(w *wallet.Wallet, tx *transaction.Transaction, hash common.Hash) error {
	required := transaction.RequiredRemoteSignatures(w.ConfirmationThreshold())
	if required == 0 {
		return nil
	}

	owner, ok := w.TwoFactorOwner()
	if !ok {
		return fmt.Errorf("wallet %s: %w", w.ID(), ErrSecondFactorNotConnected)
	}

	verified := 0
	for _, sig := range tx.Signatures() {
		if sig.Signer != owner.Address {
			continue
		}
		if err := transaction.VerifyRemoteSignature(s.signer, hash.Bytes(), sig, owner.Address); err != nil {
			return fmt.Errorf("signature of %s: %w", owner, err)
		}
		verified++
	}
	if verified < required {
		return fmt.Errorf("%w: %d of %d remote signatures", ErrNotEnoughSignatures, verified, required)
	}

	return nil
}

// SubmitSigned sends tx with its signatures in canonical order to the relay, records the
// returned hash and marks the transaction pending.
func (s *Submitter) SubmitSigned(ctx context.Context, tx *transaction.Transaction, w *wallet.Wallet) error {
	req, err := SubmitRequest(tx, w)
	if err != nil {
		return err
	}

	resp, err := s.relay.SubmitTransaction(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit transaction %s: %w", tx.ID(), err)
	}
	if err = tx.SetHash(resp.TransactionHash); err != nil {
		return err
	}
	if err = tx.ProceedToPending(); err != nil {
		return err
	}
	if err = s.txs.Save(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID(), err)
	}

	s.lggr.Infow("Transaction submitted",
		"walletID", w.ID(),
		"transactionID", tx.ID(),
		"hash", resp.TransactionHash.Hex(),
		"signatures", len(req.Signatures),
	)

	return nil
}

// SubmitRequest builds the relay request for tx of wallet w.
func SubmitRequest(tx *transaction.Transaction, w *wallet.Wallet) (relay.SubmitRequest, error) {
	safe, ok := w.Address()
	if !ok {
		return relay.SubmitRequest{}, fmt.Errorf("wallet %s: %w", w.ID(), wallet.ErrAddressNotSet)
	}
	recipient, ok := tx.Recipient()
	if !ok {
		return relay.SubmitRequest{}, fmt.Errorf("%w: recipient", transaction.ErrMissingField)
	}
	estimate, _ := tx.FeeEstimate()

	sorted := transaction.SortSignatures(tx.Signatures())
	sigs := make([]encryption.Signature, 0, len(sorted))
	for _, sig := range sorted {
		parsed, err := encryption.ParseSignature(sig.Data)
		if err != nil {
			return relay.SubmitRequest{}, fmt.Errorf("signature of %s: %w", sig.Signer.Hex(), err)
		}
		sigs = append(sigs, parsed)
	}

	return relay.SubmitRequest{
		Safe:       safe,
		To:         recipient,
		Value:      orZero(tx.Amount()),
		Data:       tx.Data(),
		Operation:  tx.Operation(),
		SafeTxGas:  orZero(estimate.SafeTxGas),
		DataGas:    orZero(estimate.DataGas),
		GasPrice:   orZero(estimate.GasPrice),
		GasToken:   estimate.GasToken,
		Nonce:      orZero(tx.Nonce()),
		Signatures: sigs,
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return v
}
