package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/internal/neterr"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
)

// ErrNotReady is returned by a NetworkCall function when the remote side does not have the
// requested result yet. The call is retried like a network failure.
var ErrNotReady = errors.New("not available yet")

// NetworkCall retries fn while it fails with a network error or ErrNotReady. Any other
// error stops the retries and is returned as is.
func NetworkCall[T any](ctx context.Context, cfg retry.Config, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Retry(ctx, cfg, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err != nil && !neterr.Is(err) && !errors.Is(err, ErrNotReady) {
			return v, retry.Unrecoverable(err)
		}

		return v, err
	})
}

// WaitForReceipt retries until the transaction is mined. Running out of attempts returns
// retry.ErrRepeatExhausted.
func (r *Runner) WaitForReceipt(ctx context.Context, node evm.NodeService, hash common.Hash, cfg retry.Config) (*evm.Receipt, error) {
	cfg.OnRetry = r.PollHook("receipt")
	receipt, err := NetworkCall(ctx, cfg, func(ctx context.Context) (*evm.Receipt, error) {
		rcpt, err := node.GetTransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if rcpt == nil {
			return nil, ErrNotReady
		}

		return rcpt, nil
	})
	if errors.Is(err, ErrNotReady) {
		return nil, fmt.Errorf("receipt of %s: %w", hash.Hex(), retry.ErrRepeatExhausted)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt of %s: %w", hash.Hex(), err)
	}

	return receipt, nil
}
