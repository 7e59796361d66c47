package recovery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/internal/workflow"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/transaction"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

type step func(ctx context.Context, id wallet.ID) error

func (s *Service) steps() map[wallet.EventType]step {
	return map[wallet.EventType]step{
		wallet.EventRecoveryStarted:   s.submitRecovery,
		wallet.EventWalletRecovered:   s.syncOwners,
		wallet.EventRecoveryCompleted: s.finish,
	}
}

// Start subscribes the service to the recovery events and submits the recovery
// transaction of a recovery draft, or re-runs the step of a recovery in progress. Steps run
// synchronously; their failures are reported to the error stream.
func (s *Service) Start(ctx context.Context, id wallet.ID) error {
	s.subscribe()

	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	s.lggr.Infow("Starting recovery", "walletID", id, "state", w.State())

	switch w.State() {
	case wallet.StateRecoveryDraft:
		if _, err = s.txs.FindByWalletAndType(ctx, id, transaction.TypeWalletRecovery); errors.Is(err, transaction.ErrNotFound) {
			return fmt.Errorf("wallet %s: %w", id, ErrNoRecoveryTransaction)
		} else if err != nil {
			return err
		}
		return s.lifecycle.Resume(ctx, w)
	case wallet.StateRecoveryInProgress:
		s.run(ctx, wallet.EventRecoveryStarted, id)
	case wallet.StateRecoveryPostProcessing:
		s.run(ctx, wallet.EventWalletRecovered, id)
	case wallet.StateReadyToUse:
		s.lggr.Infow("Wallet already usable", "walletID", id)
	default:
		return fmt.Errorf("%w: wallet %s is %s", ErrNotRecovering, id, w.State())
	}

	return nil
}

// Stop unsubscribes the service from the recovery events.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bus.Unsubscribe(s.subs...)
	s.subs = nil
}

func (s *Service) subscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.subs) > 0 {
		return
	}
	for eventType := range s.steps() {
		s.subs = append(s.subs, s.bus.Subscribe(string(eventType), s.handle))
	}
}

func (s *Service) handle(ctx context.Context, event events.Event) {
	e, ok := event.(wallet.Event)
	if !ok {
		return
	}
	s.run(ctx, e.Type, e.WalletID)
}

func (s *Service) run(ctx context.Context, eventType wallet.EventType, id wallet.ID) {
	fn, ok := s.steps()[eventType]
	if !ok {
		return
	}

	var cancel func(ctx context.Context) error
	if eventType != wallet.EventRecoveryCompleted {
		cancel = func(ctx context.Context) error { return s.CancelRecovery(ctx, id) }
	}

	_ = s.runner.Run(ctx, string(eventType), string(id),
		func(ctx context.Context) error { return fn(ctx, id) },
		cancel,
	)
}

// submitRecovery submits the signed recovery transaction unless it was submitted before and
// waits until it is mined.
func (s *Service) submitRecovery(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.txs.FindByWalletAndType(ctx, id, transaction.TypeWalletRecovery)
	if errors.Is(err, transaction.ErrNotFound) {
		return fmt.Errorf("wallet %s: %w", id, ErrNoRecoveryTransaction)
	}
	if err != nil {
		return err
	}

	switch tx.Status() {
	case transaction.StatusSigning:
		_, err = workflow.NetworkCall(ctx, s.opts.Network, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.submitter.SubmitSigned(ctx, tx, w)
		})
		if err != nil {
			return fmt.Errorf("failed to submit recovery: %w", err)
		}
	case transaction.StatusSuccess:
		s.lggr.Infow("Recovery transaction already mined", "walletID", id, "txID", tx.ID())
		return s.lifecycle.Proceed(ctx, w)
	case transaction.StatusFailed:
		hash, _ := tx.Hash()
		return fmt.Errorf("%w: %s", ErrRecoveryTransactionFailed, hash.Hex())
	}

	hash, ok := tx.Hash()
	if !ok || tx.Status() != transaction.StatusPending {
		return fmt.Errorf("recovery transaction %s is %s", tx.ID(), tx.Status())
	}
	receipt, err := s.runner.WaitForReceipt(ctx, s.node, hash, s.opts.ReceiptPoll)
	if err != nil {
		return err
	}

	if receipt.Status != evm.ReceiptSuccess {
		if err = tx.Fail(); err != nil {
			return err
		}
		if err = s.txs.Save(ctx, tx); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", tx.ID(), err)
		}
		return fmt.Errorf("%w: %s", ErrRecoveryTransactionFailed, hash.Hex())
	}

	if err = tx.Succeed(); err != nil {
		return err
	}
	if err = s.txs.Save(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID(), err)
	}
	s.lggr.Infow("Recovery transaction mined", "walletID", id, "hash", hash.Hex(), "block", receipt.BlockNumber)

	return s.lifecycle.Proceed(ctx, w)
}

// syncOwners replaces the owners of the wallet with those of the recovered safe. Owners
// known to the wallet keep their role; the others get an inferred one.
func (s *Service) syncOwners(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}
	safe, ok := w.Address()
	if !ok {
		return fmt.Errorf("wallet %s: %w", id, wallet.ErrAddressNotSet)
	}

	addresses, threshold, err := s.readOwners(ctx, safe)
	if err != nil {
		return err
	}
	device, _ := w.Owner(wallet.RoleThisDevice)
	if !slices.Contains(addresses, device.Address) {
		return fmt.Errorf("%w: %s", ErrDeviceNotOwner, device.Address.Hex())
	}

	known, err := s.wallets.FindAll(ctx)
	if err != nil {
		return err
	}
	owners := make([]wallet.Owner, 0, len(addresses))
	for _, addr := range addresses {
		if o, ok := w.OwnerByAddress(addr); ok {
			owners = append(owners, o)
			continue
		}
		owners = append(owners, wallet.Owner{Address: addr, Role: wallet.InferRole(addr, id, known)})
	}
	if err = w.ReplaceOwners(owners, threshold); err != nil {
		return err
	}

	return s.lifecycle.Proceed(ctx, w)
}

// finish drops the recovery keys, which are only needed again for a later recovery.
func (s *Service) finish(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	err = s.removeRecoveryKeys(ctx, w)
	s.lggr.Infow("Wallet recovered", "walletID", id, "owners", len(w.Owners()), "threshold", w.ConfirmationThreshold())

	return err
}

// removeRecoveryKeys deletes the keys of the paper wallet owners of w from the key store.
// Keys already gone are ignored.
func (s *Service) removeRecoveryKeys(ctx context.Context, w *wallet.Wallet) error {
	var errs []error
	for _, role := range []wallet.OwnerRole{wallet.RolePaperWallet, wallet.RolePaperWalletDerived} {
		owner, ok := w.Owner(role)
		if !ok {
			continue
		}
		if err := s.keys.Remove(ctx, owner.Address); err != nil && !errors.Is(err, keystore.ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("failed to remove %s key: %w", role, err))
		}
	}

	return errors.Join(errs...)
}
