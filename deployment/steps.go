package deployment

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/internal/neterr"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/internal/workflow"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// createSafe asks the relay for the creation transaction of the safe, checks it and records
// the safe address and the amount the safe must be funded with.
func (s *Service) createSafe(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	randomS, err := s.crypto.RandomS()
	if err != nil {
		return fmt.Errorf("failed to generate s: %w", err)
	}

	owners := w.Owners()
	req := relay.SafeCreationRequest{
		Owners:       make([]common.Address, 0, len(owners)),
		Threshold:    w.ConfirmationThreshold(),
		S:            randomS,
		PaymentToken: s.opts.PaymentToken,
	}
	for _, o := range owners {
		req.Owners = append(req.Owners, o.Address)
	}

	resp, err := workflow.NetworkCall(ctx, s.opts.Relay, func(ctx context.Context) (relay.SafeCreationResponse, error) {
		return s.relay.CreateSafeCreationTransaction(ctx, req)
	})
	if err != nil {
		return fmt.Errorf("failed to request safe creation: %w", err)
	}
	if err = relay.ValidateSafeCreation(s.crypto, req, resp); err != nil {
		return err
	}

	version := ""
	if s.metadata != nil {
		if !s.metadata.IsValidMasterCopy(resp.MasterCopy) {
			return fmt.Errorf("%w: %s", ErrUnknownMasterCopy, resp.MasterCopy.Hex())
		}
		if v, ok := s.metadata.Version(resp.MasterCopy); ok {
			version = v.String()
		}
	}

	if err = w.AssignAddress(resp.Safe); err != nil {
		return err
	}
	if err = w.Configure(resp.Payment, resp.PaymentToken); err != nil {
		return err
	}
	if err = w.SetMasterCopy(resp.MasterCopy, version); err != nil {
		return err
	}

	s.lggr.Infow("Safe creation prepared",
		"walletID", id,
		"safe", resp.Safe.Hex(),
		"payment", resp.Payment.String(),
		"paymentToken", resp.PaymentToken.Hex(),
	)

	return s.lifecycle.Proceed(ctx, w)
}

// waitForDeposit polls the balance of the safe until it covers the minimum deployment
// amount. A deposit below the minimum moves the wallet to NotEnoughFunds and polling goes
// on. Polling stops without error when the wallet leaves the funding states.
func (s *Service) waitForDeposit(ctx context.Context, id wallet.ID) error {
	funded := false
	err := retry.Repeat(ctx, s.opts.BalancePoll, func(ctx context.Context) (bool, error) {
		s.runner.CountPoll("balance")

		w, err := s.wallets.Find(ctx, id)
		if err != nil {
			return false, err
		}
		if !awaitingDeposit(w.State()) {
			return true, nil
		}

		balance, err := s.updateBalance(ctx, w)
		if neterr.Is(err) {
			s.lggr.Warnw("Balance poll failed", "walletID", id, "err", err)
			return false, nil
		}
		if err != nil {
			return false, err
		}

		minimum, _ := w.MinimumDeploymentAmount()
		if minimum == nil {
			minimum = new(big.Int)
		}
		if balance.Cmp(minimum) >= 0 {
			funded = true
			return true, nil
		}
		if balance.Sign() > 0 && w.State() == wallet.StateWaitingForFirstDeposit {
			if err = s.lifecycle.Underfund(ctx, w); err != nil {
				return false, err
			}
		}

		return false, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for deposit: %w", err)
	}
	if !funded {
		return nil
	}

	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	return s.lifecycle.Proceed(ctx, w)
}

func awaitingDeposit(state wallet.State) bool {
	return state == wallet.StateWaitingForFirstDeposit || state == wallet.StateNotEnoughFunds
}

// updateBalance reads the balance of the safe in its fee payment token and stores it.
func (s *Service) updateBalance(ctx context.Context, w *wallet.Wallet) (*big.Int, error) {
	safe, ok := w.Address()
	if !ok {
		return nil, wallet.ErrAddressNotSet
	}
	token, _ := w.FeePaymentToken()
	accountID := wallet.AccountID{WalletID: w.ID(), Token: token}

	var balance *big.Int
	var err error
	if accountID.IsEther() {
		balance, err = s.node.GetBalance(ctx, safe)
	} else {
		balance, err = s.tokenBalance(ctx, token, safe)
	}
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.Find(ctx, accountID)
	if errors.Is(err, wallet.ErrAccountNotFound) {
		account, err = wallet.NewAccount(accountID), nil
	}
	if err != nil {
		return nil, err
	}
	account.Update(balance)
	if err = s.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account %s: %w", accountID, err)
	}

	return balance, nil
}

func (s *Service) tokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := s.node.Call(ctx, token, s.erc20.BalanceOf(owner))
	if err != nil {
		return nil, err
	}

	return s.erc20.DecodeBalanceOfResult(out)
}

// startCreation asks the relay to broadcast the creation transaction.
func (s *Service) startCreation(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}
	safe, ok := w.Address()
	if !ok {
		return wallet.ErrAddressNotSet
	}

	_, err = workflow.NetworkCall(ctx, s.opts.Relay, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.relay.StartSafeCreation(ctx, safe)
	})
	if err != nil {
		return fmt.Errorf("failed to start safe creation: %w", err)
	}

	return s.lifecycle.Proceed(ctx, w)
}

// waitForCreationHash polls the relay for the hash of the creation transaction and records
// it.
func (s *Service) waitForCreationHash(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	if _, known := w.CreationTransactionHash(); !known {
		safe, ok := w.Address()
		if !ok {
			return wallet.ErrAddressNotSet
		}

		cfg := s.opts.HashPoll
		cfg.OnRetry = s.runner.PollHook("creation_hash")
		hash, err := workflow.NetworkCall(ctx, cfg, func(ctx context.Context) (common.Hash, error) {
			h, err := s.relay.SafeCreationTransactionHash(ctx, safe)
			if err != nil {
				return common.Hash{}, err
			}
			if h == nil {
				return common.Hash{}, workflow.ErrNotReady
			}

			return *h, nil
		})
		if errors.Is(err, workflow.ErrNotReady) {
			return fmt.Errorf("creation transaction of %s: %w", safe.Hex(), retry.ErrRepeatExhausted)
		}
		if err != nil {
			return fmt.Errorf("failed to get creation transaction hash: %w", err)
		}

		if err = w.AssignCreationTransactionHash(hash); err != nil {
			return err
		}
		s.lggr.Infow("Creation transaction known", "walletID", id, "hash", hash.Hex())
	}

	return s.lifecycle.Proceed(ctx, w)
}

// waitForCreationReceipt waits until the creation transaction is mined. A reverted
// transaction fails the step, which cancels the deployment.
func (s *Service) waitForCreationReceipt(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}
	hash, ok := w.CreationTransactionHash()
	if !ok {
		return fmt.Errorf("wallet %s has no creation transaction hash", id)
	}

	receipt, err := s.runner.WaitForReceipt(ctx, s.node, hash, s.opts.ReceiptPoll)
	if err != nil {
		return err
	}
	if receipt.Status != evm.ReceiptSuccess {
		return fmt.Errorf("%w: %s", ErrCreationTransactionFailed, hash.Hex())
	}

	return s.lifecycle.Proceed(ctx, w)
}

// finish tells the second factor device about the new safe and drops the paper wallet keys,
// which are only needed again to recover the wallet from its recovery phrase.
func (s *Service) finish(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	if owner, ok := w.TwoFactorOwner(); ok && s.notifier != nil {
		if err = s.notifier.NotifySafeCreated(ctx, w, owner); err != nil {
			return fmt.Errorf("failed to notify %s: %w", owner, err)
		}
	}

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

	s.lggr.Infow("Wallet deployed", "walletID", id)

	return errors.Join(errs...)
}
