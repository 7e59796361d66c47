// Package retry provides the two blocking wait primitives used by every network-bound
// workflow step: Retry, which re-runs a failing call with a linearly increasing delay, and
// Repeat, which re-runs a call until it reports a condition as met.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	DefaultAttempts = 10
	DefaultDelay    = 2 * time.Second
)

// ErrRepeatExhausted is returned by Repeat when the condition was not met within the
// configured number of attempts.
var ErrRepeatExhausted = errors.New("condition not met within the allowed attempts")

// Config bounds a Retry or Repeat loop.
type Config struct {
	// Attempts is the maximum number of calls, including the first one.
	Attempts uint
	// Delay is the base delay. Retry waits Delay*n after the n-th failed attempt, Repeat
	// waits Delay between every attempt.
	Delay time.Duration
	// OnRetry is called after every failed attempt. Optional.
	OnRetry func(attempt uint, err error)
}

// DefaultConfig returns the default retry bounds.
func DefaultConfig() Config {
	return Config{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

func (c Config) withDefaults() Config {
	if c.Attempts == 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Delay < 0 {
		c.Delay = 0
	}

	return c
}

func (c Config) options(ctx context.Context, delayType retry.DelayTypeFunc) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.Attempts),
		retry.Delay(c.Delay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
	}
	if c.OnRetry != nil {
		opts = append(opts, retry.OnRetry(c.OnRetry))
	}

	return opts
}

// Unrecoverable marks err so that Retry stops immediately and returns it.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}

// Retry calls fn until it succeeds, returns an error marked with Unrecoverable, the context
// is cancelled or the attempts are exhausted. The delay after the n-th failure is cfg.Delay*n.
// When attempts are exhausted the last error is returned.
func Retry[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	base := cfg.Delay
	linear := func(n uint, _ error, _ *retry.Config) time.Duration {
		return time.Duration(n+1) * base
	}

	return retry.DoWithData(func() (T, error) {
		return fn(ctx)
	}, cfg.options(ctx, linear)...)
}

// Repeat calls fn every cfg.Delay until it reports done. An error returned by fn stops the
// loop immediately and is returned as is. When the attempts are exhausted without the
// condition being met, ErrRepeatExhausted is returned.
func Repeat(ctx context.Context, cfg Config, fn func(ctx context.Context) (done bool, err error)) error {
	cfg = cfg.withDefaults()
	fixed := func(_ uint, _ error, _ *retry.Config) time.Duration {
		return cfg.Delay
	}

	var attempts uint
	err := retry.Do(func() error {
		attempts++
		done, err := fn(ctx)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if !done {
			return errNotDone
		}

		return nil
	}, cfg.options(ctx, fixed)...)

	if errors.Is(err, errNotDone) {
		return fmt.Errorf("%w (%d attempts)", ErrRepeatExhausted, attempts)
	}

	return err
}

var errNotDone = errors.New("condition not met yet")
