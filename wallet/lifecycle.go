package wallet

import (
	"context"
	"fmt"

	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

// Publisher publishes domain events. *events.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Lifecycle applies wallet transitions: the wallet is changed, saved and only then the
// event is published, so subscribers always observe the persisted state.
type Lifecycle struct {
	repo      Repository
	publisher Publisher
	lggr      logger.Logger
}

// NewLifecycle returns a Lifecycle saving to repo and publishing to publisher.
func NewLifecycle(repo Repository, publisher Publisher, lggr logger.Logger) *Lifecycle {
	return &Lifecycle{repo: repo, publisher: publisher, lggr: lggr.Named("wallet")}
}

// Resume starts the deployment of a draft wallet or the recovery of a recovery draft.
func (l *Lifecycle) Resume(ctx context.Context, w *Wallet) error {
	return l.Apply(ctx, w, ActionResume)
}

// Proceed moves w to its next state.
func (l *Lifecycle) Proceed(ctx context.Context, w *Wallet) error {
	return l.Apply(ctx, w, ActionProceed)
}

// Cancel reverts w to its draft state.
func (l *Lifecycle) Cancel(ctx context.Context, w *Wallet) error {
	return l.Apply(ctx, w, ActionCancel)
}

// Underfund records a deposit below the minimum deployment amount.
func (l *Lifecycle) Underfund(ctx context.Context, w *Wallet) error {
	return l.Apply(ctx, w, ActionUnderfund)
}

// Apply performs action on w. The transition is applied to a copy and w is updated only
// once the copy is saved, so a failed save leaves w and the repository unchanged and no
// event is published.
func (l *Lifecycle) Apply(ctx context.Context, w *Wallet, action Action) error {
	from := w.State()
	next := w.clone()
	event, err := next.Transition(action)
	if err != nil {
		return err
	}

	if err := l.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("save wallet %s after %s: %w", w.ID(), action, err)
	}
	*w = *next

	l.lggr.Infow("Wallet state changed",
		"walletID", w.ID(),
		"action", action,
		"from", from,
		"to", w.State(),
	)

	if event != nil {
		l.publisher.Publish(ctx, *event)
	}

	return nil
}
