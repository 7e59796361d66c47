// Package recovery takes over an existing safe from a new device. The user points the
// wallet at the safe, enters the recovery phrase and optionally a new second factor; the
// recovery keys derived from the phrase then sign a transaction replacing the lost owners,
// which is submitted through the relay.
package recovery

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/internal/metrics"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/internal/workflow"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/multisig"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

const serviceName = "recovery"

// recoveryKeys is the number of keys derived from a recovery phrase: the paper wallet and
// the paper wallet derived owner.
const recoveryKeys = 2

var (
	ErrNotRecovering             = errors.New("wallet is not being recovered")
	ErrNoRecoveryTransaction     = errors.New("no recovery transaction")
	ErrRecoveryTransactionFailed = errors.New("recovery transaction failed")
	ErrDeviceNotOwner            = errors.New("device is not an owner of the recovered safe")
)

// Crypto is the cryptography the recovery needs. *encryption.Service implements it.
type Crypto interface {
	multisig.Signer
	GenerateKey() (*ecdsa.PrivateKey, error)
	ValidateMnemonic(mnemonic string) bool
	DeriveKeys(mnemonic string, n int) ([]*ecdsa.PrivateKey, error)
}

// Options bounds the network-bound steps.
type Options struct {
	// Network bounds the retries of relay and node calls failing with a network error.
	Network retry.Config
	// ReceiptPoll bounds the wait for the recovery transaction to be mined.
	ReceiptPoll retry.Config
	// GasToken is the token the recovery fee is paid in. The zero address is ether.
	GasToken common.Address
}

// DefaultOptions returns the default bounds.
func DefaultOptions() Options {
	return Options{
		Network:     retry.DefaultConfig(),
		ReceiptPoll: retry.DefaultConfig(),
	}
}

// Deps are the collaborators of the Service. Errors, Metrics and Lifecycle are optional;
// MultiSend is needed for recoveries changing more than one owner.
type Deps struct {
	Wallets      wallet.Repository
	Transactions transaction.Repository
	Bus          *events.Bus
	Relay        relay.Service
	Node         evm.NodeService
	Crypto       Crypto
	Keys         keystore.Repository
	MultiSend    contracts.MultiSendVersions
	Errors       events.ErrorStream
	Metrics      *metrics.Metrics
	Logger       logger.Logger
	Hasher       contracts.Hasher
	Lifecycle    *wallet.Lifecycle
}

// Service is the recovery orchestrator. Callers must run at most one recovery per wallet at
// a time.
type Service struct {
	wallets   wallet.Repository
	txs       transaction.Repository
	bus       *events.Bus
	lifecycle *wallet.Lifecycle
	relay     relay.Service
	node      evm.NodeService
	crypto    Crypto
	keys      keystore.Repository
	builder   *TransactionBuilder
	submitter *multisig.Submitter
	owners    contracts.OwnerManagerProxy
	safe      contracts.SafeProxy
	errs      events.ErrorStream
	runner    *workflow.Runner
	opts      Options
	lggr      logger.Logger

	mu   sync.Mutex
	subs []events.SubscriptionID
}

// NewService returns a recovery Service.
func NewService(deps Deps, opts Options) *Service {
	lggr := deps.Logger.Named(serviceName)
	errs := deps.Errors
	if errs == nil {
		errs = events.NewLogErrorStream(lggr)
	}
	lifecycle := deps.Lifecycle
	if lifecycle == nil {
		lifecycle = wallet.NewLifecycle(deps.Wallets, deps.Bus, deps.Logger)
	}

	owners := contracts.NewOwnerManagerProxy(deps.Hasher)
	safe := contracts.NewSafeProxy(deps.Hasher)
	var encoder *contracts.MultiSendEncoder
	if deps.MultiSend != nil {
		encoder = contracts.NewMultiSendEncoder(contracts.NewMultiSendProxy(deps.Hasher), deps.MultiSend)
	}

	return &Service{
		wallets:   deps.Wallets,
		txs:       deps.Transactions,
		bus:       deps.Bus,
		lifecycle: lifecycle,
		relay:     deps.Relay,
		node:      deps.Node,
		crypto:    deps.Crypto,
		keys:      deps.Keys,
		builder:   NewTransactionBuilder(owners, encoder),
		submitter: multisig.NewSubmitter(deps.Wallets, deps.Transactions, deps.Keys, deps.Relay, deps.Crypto, safe, deps.Logger),
		owners:    owners,
		safe:      safe,
		errs:      errs,
		runner:    workflow.NewRunner(serviceName, errs, deps.Metrics, lggr),
		opts:      opts,
		lggr:      lggr,
	}
}

// PrepareForRecovery creates a recovery draft wallet owned by a fresh device key.
func (s *Service) PrepareForRecovery(ctx context.Context) (*wallet.Wallet, error) {
	key, err := s.crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}
	device, err := s.keys.Save(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to save device key: %w", err)
	}

	w, err := wallet.NewRecoveryDraft(wallet.NewID(), device)
	if err != nil {
		return nil, err
	}
	if err = s.wallets.Save(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to save wallet %s: %w", w.ID(), err)
	}

	s.lggr.Infow("Recovery prepared", "walletID", w.ID(), "device", device.Hex())

	return w, nil
}

// ChangeWalletAddress points the recovery at the safe at address. The owners of the safe
// must follow a recoverable scheme. Recovery keys and second factor provided for a previous
// address are forgotten and the recovery keys are deleted from the key store.
func (s *Service) ChangeWalletAddress(ctx context.Context, id wallet.ID, address common.Address) error {
	w, err := s.draft(ctx, id)
	if err != nil {
		return err
	}

	owners, threshold, err := s.readOwners(ctx, address)
	if err != nil {
		return err
	}
	if scheme := (Scheme{Confirmations: threshold, Owners: len(owners)}); !scheme.Supported() {
		return &ValidationError{Reason: fmt.Sprintf("safe %s is %s", address.Hex(), scheme), Err: ErrUnsupportedScheme}
	}

	if err = s.removeRecoveryKeys(ctx, w); err != nil {
		return err
	}
	device, _ := w.Owner(wallet.RoleThisDevice)
	if err = w.ReplaceOwners([]wallet.Owner{device}, 1); err != nil {
		return err
	}
	if err = w.AssignAddress(address); err != nil {
		return err
	}
	if err = s.wallets.Save(ctx, w); err != nil {
		return fmt.Errorf("failed to save wallet %s: %w", id, err)
	}

	s.lggr.Infow("Recovery address set", "walletID", id, "safe", address.Hex(), "threshold", threshold, "owners", len(owners))

	return nil
}

// ProvideRecoveryPhrase derives the recovery keys from phrase, checks that both own the
// safe and stores them.
func (s *Service) ProvideRecoveryPhrase(ctx context.Context, id wallet.ID, phrase string) error {
	w, err := s.draft(ctx, id)
	if err != nil {
		return err
	}
	safe, ok := w.Address()
	if !ok {
		return fmt.Errorf("wallet %s: %w", id, wallet.ErrAddressNotSet)
	}
	if !s.crypto.ValidateMnemonic(phrase) {
		return &ValidationError{Reason: "phrase is not a valid mnemonic", Err: ErrInvalidRecoveryPhrase}
	}

	keys, err := s.crypto.DeriveKeys(phrase, recoveryKeys)
	if err != nil {
		return &ValidationError{Reason: err.Error(), Err: ErrInvalidRecoveryPhrase}
	}
	owners, _, err := s.readOwners(ctx, safe)
	if err != nil {
		return err
	}

	addresses := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if !slices.Contains(owners, addr) {
			return &ValidationError{Reason: "recovery key " + addr.Hex(), Err: ErrNotOwner}
		}
		addresses = append(addresses, addr)
	}
	for _, key := range keys {
		if _, err = s.keys.Save(ctx, key); err != nil {
			return fmt.Errorf("failed to save recovery key: %w", err)
		}
	}

	paper := wallet.Owner{Address: addresses[0], Role: wallet.RolePaperWallet}
	derived := wallet.Owner{Address: addresses[1], Role: wallet.RolePaperWalletDerived}
	if err = s.setOwners(w, &paper, &derived, nil); err != nil {
		return err
	}
	if err = s.wallets.Save(ctx, w); err != nil {
		return fmt.Errorf("failed to save wallet %s: %w", id, err)
	}

	s.lggr.Infow("Recovery phrase accepted", "walletID", id)

	return nil
}

// ProvideSecondFactor sets the second factor device the recovered safe requires. It
// replaces a second factor provided before.
func (s *Service) ProvideSecondFactor(ctx context.Context, id wallet.ID, owner wallet.Owner) error {
	if !owner.Role.IsTwoFactor() {
		return &ValidationError{Reason: owner.String(), Err: ErrInvalidSecondFactor}
	}
	w, err := s.draft(ctx, id)
	if err != nil {
		return err
	}

	if err = s.setOwners(w, nil, nil, &owner); err != nil {
		return err
	}
	if err = s.wallets.Save(ctx, w); err != nil {
		return fmt.Errorf("failed to save wallet %s: %w", id, err)
	}

	s.lggr.Infow("Second factor set", "walletID", id, "owner", owner)

	return nil
}

// setOwners replaces the recovery keys or the second factor of w, keeping the other owners.
// Two confirmations are required as soon as a second factor is set.
func (s *Service) setOwners(w *wallet.Wallet, paper, derived, twoFactor *wallet.Owner) error {
	pick := func(given *wallet.Owner, current func() (wallet.Owner, bool)) *wallet.Owner {
		if given != nil {
			return given
		}
		if o, ok := current(); ok {
			return &o
		}

		return nil
	}
	paper = pick(paper, func() (wallet.Owner, bool) { return w.Owner(wallet.RolePaperWallet) })
	derived = pick(derived, func() (wallet.Owner, bool) { return w.Owner(wallet.RolePaperWalletDerived) })
	twoFactor = pick(twoFactor, w.TwoFactorOwner)

	device, _ := w.Owner(wallet.RoleThisDevice)
	owners := []wallet.Owner{device}
	threshold := 1
	for _, o := range []*wallet.Owner{paper, derived, twoFactor} {
		if o != nil {
			owners = append(owners, *o)
		}
	}
	if twoFactor != nil {
		threshold = 2
	}

	return w.ReplaceOwners(owners, threshold)
}

// CreateRecoveryTransaction builds, estimates and signs the transaction replacing the lost
// owners of the safe with this device and the new second factor. A recovery transaction
// created before is discarded.
func (s *Service) CreateRecoveryTransaction(ctx context.Context, id wallet.ID) (*transaction.Transaction, error) {
	w, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	safe, ok := w.Address()
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", id, wallet.ErrAddressNotSet)
	}
	device, _ := w.Owner(wallet.RoleThisDevice)
	paper, ok := w.Owner(wallet.RolePaperWallet)
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w: %s", id, wallet.ErrMissingOwnerRole, wallet.RolePaperWallet)
	}
	derived, ok := w.Owner(wallet.RolePaperWalletDerived)
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w: %s", id, wallet.ErrMissingOwnerRole, wallet.RolePaperWalletDerived)
	}

	owners, threshold, err := s.readOwners(ctx, safe)
	if err != nil {
		return nil, err
	}
	plan := Plan{Safe: safe, Owners: owners, Threshold: threshold, Device: device.Address}
	for _, o := range owners {
		if o != paper.Address && o != derived.Address {
			plan.Replaced = append(plan.Replaced, o)
		}
	}
	if tf, ok := w.TwoFactorOwner(); ok {
		plan.TwoFactor = &tf.Address
	}

	call, err := s.builder.Build(plan)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.errs.Post(err)
		}
		return nil, err
	}

	if err = s.discardRecoveryTransaction(ctx, id); err != nil {
		return nil, err
	}
	tx, err := s.newTransaction(ctx, w, safe, call)
	if err != nil {
		return nil, err
	}

	signers := []wallet.Owner{paper, derived}[:min(threshold, recoveryKeys)]
	hash := multisig.SafeTxHash(s.safe, safe, tx)
	for _, signer := range signers {
		key, err := s.keys.Find(ctx, signer.Address)
		if err != nil {
			return nil, fmt.Errorf("%s key: %w", signer.Role, err)
		}
		sig, err := s.crypto.Sign(hash.Bytes(), key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign recovery with %s: %w", signer.Role, err)
		}
		if err = tx.AddSignature(transaction.Signature{Signer: signer.Address, Data: sig}); err != nil {
			return nil, err
		}
	}

	if err = s.txs.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to save transaction %s: %w", tx.ID(), err)
	}

	s.lggr.Infow("Recovery transaction created",
		"walletID", id,
		"transactionID", tx.ID(),
		"from", plan.From(),
		"to", plan.To(),
		"signatures", len(signers),
	)

	return tx, nil
}

// newTransaction returns the estimated recovery transaction, ready for signing.
func (s *Service) newTransaction(ctx context.Context, w *wallet.Wallet, safe common.Address, call Call) (*transaction.Transaction, error) {
	txID, err := s.txs.NextID(ctx)
	if err != nil {
		return nil, err
	}
	tx := transaction.New(txID, transaction.TypeWalletRecovery, wallet.AccountID{WalletID: w.ID(), Token: s.opts.GasToken})

	estimation, err := workflow.NetworkCall(ctx, s.opts.Network, func(ctx context.Context) (relay.Estimation, error) {
		return s.relay.EstimateTransaction(ctx, relay.EstimateRequest{
			Safe:      safe,
			To:        call.To,
			Data:      call.Data,
			Operation: call.Operation,
			GasToken:  s.opts.GasToken,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate recovery: %w", err)
	}
	estimate := transaction.FeeEstimate{
		SafeTxGas:      estimation.SafeTxGas,
		DataGas:        estimation.DataGas,
		OperationalGas: estimation.OperationalGas,
		GasPrice:       estimation.GasPrice,
		GasToken:       estimation.GasToken,
	}

	for _, change := range []func() error{
		func() error { return tx.ChangeSender(safe) },
		func() error { return tx.ChangeRecipient(call.To) },
		func() error { return tx.ChangeAmount(new(big.Int)) },
		func() error { return tx.ChangeData(call.Data, call.Operation) },
		func() error { return tx.ChangeFeeEstimate(estimate) },
		func() error { return tx.ChangeFee(estimate.Total()) },
		func() error { return tx.ChangeNonce(estimation.NextNonce) },
		tx.ProceedToSigning,
	} {
		if err = change(); err != nil {
			return nil, err
		}
	}

	return tx, nil
}

// CancelRecovery discards the recovery transaction and returns the wallet to its recovery
// draft.
func (s *Service) CancelRecovery(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}
	if !recovering(w.State()) {
		return fmt.Errorf("%w: wallet %s is %s", ErrNotRecovering, id, w.State())
	}
	if err = s.discardRecoveryTransaction(ctx, id); err != nil {
		return err
	}

	return s.lifecycle.Cancel(ctx, w)
}

func (s *Service) discardRecoveryTransaction(ctx context.Context, id wallet.ID) error {
	tx, err := s.txs.FindByWalletAndType(ctx, id, transaction.TypeWalletRecovery)
	if errors.Is(err, transaction.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	tx.Discard()
	if err = s.txs.Save(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID(), err)
	}

	return nil
}

// draft returns the wallet when it is a recovery draft.
func (s *Service) draft(ctx context.Context, id wallet.ID) (*wallet.Wallet, error) {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.State() != wallet.StateRecoveryDraft {
		return nil, fmt.Errorf("%w: wallet %s is %s", ErrNotRecovering, id, w.State())
	}

	return w, nil
}

func recovering(state wallet.State) bool {
	return state == wallet.StateRecoveryDraft || state.IsRecoveryInProgress()
}

// readOwners returns the owners in getOwners() order and the threshold of safe.
func (s *Service) readOwners(ctx context.Context, safe common.Address) ([]common.Address, int, error) {
	call := func(data []byte) ([]byte, error) {
		return workflow.NetworkCall(ctx, s.opts.Network, func(ctx context.Context) ([]byte, error) {
			return s.node.Call(ctx, safe, data)
		})
	}

	out, err := call(s.owners.GetOwners())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read owners of %s: %w", safe.Hex(), err)
	}
	owners, err := s.owners.DecodeGetOwnersResult(out)
	if err != nil {
		return nil, 0, fmt.Errorf("owners of %s: %w", safe.Hex(), err)
	}

	out, err = call(s.owners.GetThreshold())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read threshold of %s: %w", safe.Hex(), err)
	}
	threshold, err := s.owners.DecodeUint256Result(out)
	if err != nil {
		return nil, 0, fmt.Errorf("threshold of %s: %w", safe.Hex(), err)
	}
	if !threshold.IsInt64() || threshold.Int64() > int64(len(owners)) {
		return nil, 0, fmt.Errorf("threshold of %s: %s exceeds %d owners", safe.Hex(), threshold, len(owners))
	}

	return owners, int(threshold.Int64()), nil
}
