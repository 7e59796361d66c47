// Package workflow runs the steps of the deployment and recovery services and applies their
// shared failure policy: network failures and exhausted polls are reported and leave the
// wallet where it is, anything else is reported and cancels the workflow.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/smartcontractkit/safe-wallet-framework/events"
	"github.com/smartcontractkit/safe-wallet-framework/internal/metrics"
	"github.com/smartcontractkit/safe-wallet-framework/internal/neterr"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

// StepError is posted to the error stream when a step fails.
type StepError struct {
	Service string
	Step    string
	Subject string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %s of %s failed: %v", e.Service, e.Step, e.Subject, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Resumable reports whether a workflow failing with err may be resumed later.
func Resumable(err error) bool {
	return neterr.Is(err) ||
		errors.Is(err, retry.ErrRepeatExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Outcome returns the metrics outcome of a step that returned err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeInterrupted
	case Resumable(err):
		return metrics.OutcomeNetworkError
	default:
		return metrics.OutcomeCancelled
	}
}

// Runner runs the steps of one service.
type Runner struct {
	service string
	errs    events.ErrorStream
	metrics *metrics.Metrics
	lggr    logger.Logger
}

// NewRunner returns a Runner for service reporting failures to errs.
func NewRunner(service string, errs events.ErrorStream, m *metrics.Metrics, lggr logger.Logger) *Runner {
	if m == nil {
		m = metrics.Noop()
	}

	return &Runner{service: service, errs: errs, metrics: m, lggr: lggr}
}

// Run executes step for subject. When fn fails the error is posted; unless it is resumable,
// cancel is called and its own failure is posted as well. The error of fn is returned.
func (r *Runner) Run(ctx context.Context, step, subject string, fn func(ctx context.Context) error, cancel func(ctx context.Context) error) error {
	r.lggr.Debugw("Executing step", "step", step, "subject", subject)

	err := fn(ctx)
	r.metrics.Step(r.service, step, Outcome(err))
	if err == nil {
		return nil
	}

	r.errs.Post(&StepError{Service: r.service, Step: step, Subject: subject, Err: err})
	if Resumable(err) {
		r.lggr.Warnw("Step failed, workflow can be resumed", "step", step, "subject", subject, "err", err)
		return err
	}

	r.lggr.Errorw("Step failed, cancelling workflow", "step", step, "subject", subject, "err", err)
	if cancel != nil {
		if cerr := cancel(ctx); cerr != nil {
			r.errs.Post(&StepError{Service: r.service, Step: "cancel", Subject: subject, Err: cerr})
		}
	}

	return err
}

// PollHook returns an OnRetry callback counting the attempts of poll.
func (r *Runner) PollHook(poll string) func(uint, error) {
	return func(uint, error) {
		r.metrics.PollAttempt(poll)
	}
}

// CountPoll counts one attempt of poll.
func (r *Runner) CountPoll(poll string) {
	r.metrics.PollAttempt(poll)
}
