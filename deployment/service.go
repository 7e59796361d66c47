// Package deployment drives a draft wallet through the creation of its Safe: the relay
// prepares a pre-signed creation transaction, the user funds the future safe address, the
// relay broadcasts the creation and the service waits until it is mined.
//
// The service holds no state of its own. Every step is triggered by a wallet event, performs
// one network-bound action and moves the wallet to its next state, which publishes the event
// of the following step.
package deployment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/internal/metrics"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/internal/workflow"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/metadata"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/relay"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

const serviceName = "deployment"

var (
	ErrNotDeployable             = errors.New("wallet is not being deployed")
	ErrUnknownMasterCopy         = errors.New("master copy is not a known safe implementation")
	ErrCreationTransactionFailed = errors.New("safe creation transaction failed")
)

// Crypto is the cryptography the deployment needs. *encryption.Service implements it.
type Crypto interface {
	relay.ContractAddresser
	RandomS() (*big.Int, error)
}

// Notifier tells the second factor device of a wallet that its safe has been created.
type Notifier interface {
	NotifySafeCreated(ctx context.Context, w *wallet.Wallet, owner wallet.Owner) error
}

// Options bounds the network-bound steps.
type Options struct {
	// Relay bounds the retries of relay calls failing with a network error.
	Relay retry.Config
	// BalancePoll bounds the wait for the first deposit.
	BalancePoll retry.Config
	// HashPoll bounds the wait for the relay to report the creation transaction hash.
	HashPoll retry.Config
	// ReceiptPoll bounds the wait for the creation transaction to be mined.
	ReceiptPoll retry.Config
	// PaymentToken is the token the creation fee is paid in. The zero address is ether.
	PaymentToken common.Address
}

// DefaultOptions returns the default bounds.
func DefaultOptions() Options {
	return Options{
		Relay:       retry.DefaultConfig(),
		BalancePoll: retry.DefaultConfig(),
		HashPoll:    retry.DefaultConfig(),
		ReceiptPoll: retry.DefaultConfig(),
	}
}

// Deps are the collaborators of the Service. Notifier, Metadata and Metrics are optional.
type Deps struct {
	Wallets   wallet.Repository
	Accounts  wallet.AccountRepository
	Bus       *events.Bus
	Relay     relay.Service
	Node      evm.NodeService
	Crypto    Crypto
	Keys      keystore.Repository
	Notifier  Notifier
	Metadata  metadata.Repository
	Errors    events.ErrorStream
	Metrics   *metrics.Metrics
	Logger    logger.Logger
	Hasher    contracts.Hasher
	Lifecycle *wallet.Lifecycle
}

// Service is the deployment orchestrator. Callers must run at most one deployment per
// wallet at a time.
type Service struct {
	wallets   wallet.Repository
	accounts  wallet.AccountRepository
	bus       *events.Bus
	lifecycle *wallet.Lifecycle
	relay     relay.Service
	node      evm.NodeService
	crypto    Crypto
	keys      keystore.Repository
	notifier  Notifier
	metadata  metadata.Repository
	erc20     contracts.ERC20Proxy
	runner    *workflow.Runner
	opts      Options
	lggr      logger.Logger

	mu   sync.Mutex
	subs []events.SubscriptionID
}

// NewService returns a deployment Service. When deps.Lifecycle is nil, one saving to
// deps.Wallets and publishing on deps.Bus is created.
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

	return &Service{
		wallets:   deps.Wallets,
		accounts:  deps.Accounts,
		bus:       deps.Bus,
		lifecycle: lifecycle,
		relay:     deps.Relay,
		node:      deps.Node,
		crypto:    deps.Crypto,
		keys:      deps.Keys,
		notifier:  deps.Notifier,
		metadata:  deps.Metadata,
		erc20:     contracts.NewERC20Proxy(deps.Hasher),
		runner:    workflow.NewRunner(serviceName, errs, deps.Metrics, lggr),
		opts:      opts,
		lggr:      lggr,
	}
}

type step func(ctx context.Context, id wallet.ID) error

func (s *Service) steps() map[wallet.EventType]step {
	return map[wallet.EventType]step{
		wallet.EventDeploymentStarted:            s.createSafe,
		wallet.EventWalletConfigured:             s.waitForDeposit,
		wallet.EventDeploymentFunded:             s.startCreation,
		wallet.EventCreationStarted:              s.waitForCreationHash,
		wallet.EventWalletTransactionHashIsKnown: s.waitForCreationReceipt,
		wallet.EventWalletCreated:                s.finish,
	}
}

// Start subscribes the service to the deployment events and starts or resumes the
// deployment of the wallet. A draft wallet is resumed; a wallet in the middle of a
// deployment re-runs the step of its current state. Steps run synchronously, so Start
// returns once the deployment is complete, cancelled or waiting to be resumed; step
// failures are reported to the error stream.
func (s *Service) Start(ctx context.Context, id wallet.ID) error {
	s.subscribe()

	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	s.lggr.Infow("Starting deployment", "walletID", id, "state", w.State())

	switch w.State() {
	case wallet.StateDraft:
		return s.lifecycle.Resume(ctx, w)
	case wallet.StateDeploying:
		s.run(ctx, wallet.EventDeploymentStarted, id)
	case wallet.StateWaitingForFirstDeposit, wallet.StateNotEnoughFunds:
		s.run(ctx, wallet.EventWalletConfigured, id)
	case wallet.StateCreationStarted:
		if _, known := w.CreationTransactionHash(); known {
			s.run(ctx, wallet.EventCreationStarted, id)
		} else {
			s.run(ctx, wallet.EventDeploymentFunded, id)
		}
	case wallet.StateFinalizingDeployment:
		s.run(ctx, wallet.EventWalletTransactionHashIsKnown, id)
	case wallet.StateReadyToUse:
		s.lggr.Infow("Wallet already deployed", "walletID", id)
	default:
		return fmt.Errorf("%w: wallet %s is %s", ErrNotDeployable, id, w.State())
	}

	return nil
}

// Stop unsubscribes the service from the deployment events.
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
	if eventType != wallet.EventWalletCreated {
		cancel = func(ctx context.Context) error { return s.cancel(ctx, id) }
	}

	_ = s.runner.Run(ctx, string(eventType), string(id),
		func(ctx context.Context) error { return fn(ctx, id) },
		cancel,
	)
}

func (s *Service) cancel(ctx context.Context, id wallet.ID) error {
	w, err := s.wallets.Find(ctx, id)
	if err != nil {
		return err
	}

	return s.lifecycle.Cancel(ctx, w)
}
