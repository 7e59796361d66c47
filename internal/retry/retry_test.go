package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	var (
		errTransient = errors.New("relay unavailable")
		errFatal     = errors.New("malformed response")
	)

	tests := []struct {
		name         string
		attempts     uint
		failures     int
		failWith     error
		wantErr      error
		wantCalls    int
		wantRetryCBs int
	}{
		{
			name:      "succeeds first time",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:         "succeeds after transient failures",
			attempts:     5,
			failures:     2,
			failWith:     errTransient,
			wantCalls:    3,
			wantRetryCBs: 2,
		},
		{
			name:         "surfaces the last error when attempts are exhausted",
			attempts:     3,
			failures:     10,
			failWith:     errTransient,
			wantErr:      errTransient,
			wantCalls:    3,
			wantRetryCBs: 3,
		},
		{
			name:         "stops on unrecoverable errors",
			attempts:     5,
			failures:     10,
			failWith:     Unrecoverable(errFatal),
			wantErr:      errFatal,
			wantCalls:    1,
			wantRetryCBs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			retries := 0
			cfg := Config{
				Attempts: tt.attempts,
				Delay:    time.Millisecond,
				OnRetry:  func(uint, error) { retries++ },
			}

			got, err := Retry(t.Context(), cfg, func(context.Context) (string, error) {
				calls++
				if calls <= tt.failures {
					return "", tt.failWith
				}

				return "0xhash", nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "0xhash", got)
			assert.LessOrEqual(t, retries, tt.wantRetryCBs)
		})
	}
}

func TestRetry_IncreasingDelay(t *testing.T) {
	t.Parallel()

	var stamps []time.Time
	_, err := Retry(t.Context(), Config{Attempts: 3, Delay: 20 * time.Millisecond}, func(context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("not yet")
	})
	require.Error(t, err)
	require.Len(t, stamps, 3)

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 40*time.Millisecond)
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	_, err := Retry(ctx, Config{Attempts: 100, Delay: 10 * time.Millisecond}, func(context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}

		return 0, errors.New("not yet")
	})
	require.Error(t, err)
	assert.Less(t, calls, 100)
}

func TestRepeat(t *testing.T) {
	t.Parallel()

	errBalance := errors.New("balance lookup failed")

	tests := []struct {
		name      string
		attempts  uint
		doneAt    int
		errAt     int
		wantErr   error
		wantCalls int
	}{
		{
			name:      "condition met on third attempt",
			attempts:  5,
			doneAt:    3,
			wantCalls: 3,
		},
		{
			name:      "exhausted",
			attempts:  4,
			doneAt:    100,
			wantErr:   ErrRepeatExhausted,
			wantCalls: 4,
		},
		{
			name:      "error stops immediately",
			attempts:  5,
			doneAt:    100,
			errAt:     2,
			wantErr:   errBalance,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := Repeat(t.Context(), Config{Attempts: tt.attempts, Delay: time.Millisecond}, func(context.Context) (bool, error) {
				calls++
				if calls == tt.errAt {
					return false, errBalance
				}

				return calls >= tt.doneAt, nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
