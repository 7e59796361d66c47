package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

// Retry bounds used when a MultiClient is built without WithRetryConfig.
const (
	RPCDefaultRetryAttempts = 1
	RPCDefaultRetryDelay    = 1000 * time.Millisecond
	RPCDefaultRetryTimeout  = 10 * time.Second

	RPCDefaultDialRetryAttempts = 1
	RPCDefaultDialRetryDelay    = 1000 * time.Millisecond
	RPCDefaultDialTimeout       = 10 * time.Second

	RPCDefaultHealthCheckTimeout = 2 * time.Second
)

// rpcErrExecutionReverted is the JSON-RPC error code nodes return for a reverted eth_call.
const rpcErrExecutionReverted = 3

// RPC is a named node endpoint.
type RPC struct {
	Name string
	URL  string
}

// RetryConfig bounds the attempts made on each endpoint for calls and for dialing.
type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

// DefaultRetryConfig returns the retry bounds used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// WithRetryConfig overrides the default retry bounds.
func WithRetryConfig(cfg RetryConfig) func(*MultiClient) {
	return func(mc *MultiClient) {
		mc.RetryConfig = cfg
	}
}

var _ OnchainClient = &MultiClient{}

// MultiClient is an ethclient that retries every call on its primary endpoint and then fails
// over to the backups. A backup that succeeds becomes the new primary. A reverted call is
// returned at once since every node would answer it the same way.
type MultiClient struct {
	*ethclient.Client
	Backups     []*ethclient.Client
	RetryConfig RetryConfig
	lggr        logger.Logger
	mu          sync.RWMutex
}

// rpcHealthCheck asks client for the latest block number.
func (mc *MultiClient) rpcHealthCheck(ctx context.Context, client *ethclient.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, RPCDefaultHealthCheckTimeout)
	defer cancel()

	if _, err := client.BlockNumber(timeoutCtx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// NewMultiClient dials every rpc and keeps the ones passing a health check. The first healthy
// endpoint becomes the primary.
func NewMultiClient(ctx context.Context, lggr logger.Logger, rpcs []RPC, opts ...func(client *MultiClient)) (*MultiClient, error) {
	if len(rpcs) == 0 {
		return nil, errors.New("no node endpoints configured")
	}
	mc := MultiClient{lggr: lggr.Named("multiclient"), RetryConfig: DefaultRetryConfig()}

	for _, opt := range opts {
		opt(&mc)
	}

	clients := make([]*ethclient.Client, 0, len(rpcs))
	for i, rpc := range rpcs {
		client, err := mc.dialWithRetry(ctx, rpc)
		if err != nil {
			mc.lggr.Warnw("Skipping node that could not be dialed", "index", i, "rpc", rpc.Name, "err", err)

			continue
		}
		if err := mc.rpcHealthCheck(ctx, client); err != nil {
			mc.lggr.Warnw("Skipping unhealthy node", "index", i, "rpc", rpc.Name, "err", err)
			client.Close()

			continue
		}
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, errors.New("no reachable node endpoint")
	}

	mc.Client = clients[0]
	mc.Backups = clients[1:]

	return &mc, nil
}

func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	err := mc.retryWithBackups(ctx, "CallContract", func(ct context.Context, client *ethclient.Client) error {
		var err error
		result, err = client.CallContract(ct, msg, blockNumber)

		return err
	})

	return result, err
}

func (mc *MultiClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var code []byte
	err := mc.retryWithBackups(ctx, "CodeAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		code, err = client.CodeAt(ct, account, blockNumber)

		return err
	})

	return code, err
}

func (mc *MultiClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := mc.retryWithBackups(ctx, "BalanceAt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		balance, err = client.BalanceAt(ct, account, blockNumber)

		return err
	})

	return balance, err
}

// TransactionReceipt returns ethereum.NotFound without failing over when the transaction is
// not mined yet.
func (mc *MultiClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var (
		receipt  *types.Receipt
		notFound bool
	)
	err := mc.retryWithBackups(ctx, "TransactionReceipt", func(ct context.Context, client *ethclient.Client) error {
		var err error
		receipt, err = client.TransactionReceipt(ct, txHash)
		notFound = errors.Is(err, ethereum.NotFound)
		if notFound {
			return nil
		}

		return err
	})
	if err == nil && notFound {
		return nil, ethereum.NotFound
	}

	return receipt, err
}

// retryWithBackups runs op on the primary and then on each backup until one succeeds. A
// reverted call stops the loop without trying the remaining endpoints.
func (mc *MultiClient) retryWithBackups(ctx context.Context, opName string, op func(context.Context, *ethclient.Client) error) error {
	var err error
	traceID := uuid.New()

	for rpcIndex, client := range mc.clients() {
		retryCount := 0
		err2 := retry.Do(func() error {
			timeoutCtx, cancel := ensureTimeout(ctx, mc.RetryConfig.Timeout)
			defer cancel()

			err = op(timeoutCtx, client)
			if err != nil {
				if isReverted(err) {
					return retry.Unrecoverable(err)
				}
				mc.lggr.Warnw("Node call failed", "traceID", traceID, "op", opName, "index", rpcIndex, "err", maybeDataErr(err))

				return err
			}

			mc.reorderRPCs(rpcIndex)

			return nil
		}, retry.Context(ctx), retry.Attempts(mc.RetryConfig.Attempts), retry.Delay(mc.RetryConfig.Delay),
			retry.OnRetry(func(n uint, err error) { retryCount++ }))
		if err2 == nil {
			if retryCount > 0 {
				mc.lggr.Infow("Node call succeeded after retries", "traceID", traceID, "op", opName, "index", rpcIndex, "retries", retryCount)
			}

			return nil
		}
		if ctx.Err() != nil || isReverted(err) {
			return err
		}
		mc.lggr.Infow("Failing over to the next node", "traceID", traceID, "op", opName, "index", rpcIndex)
	}

	return errors.Join(err, errors.New("all backup clients failed"))
}

// isReverted reports whether err is a call reverted by the contract.
func isReverted(err error) bool {
	if err == nil {
		return false
	}
	var rerr rpc.Error
	if errors.As(err, &rerr) && rerr.ErrorCode() == rpcErrExecutionReverted {
		return true
	}

	return strings.Contains(err.Error(), "execution reverted")
}

func (mc *MultiClient) dialWithRetry(ctx context.Context, rpc RPC) (*ethclient.Client, error) {
	if rpc.URL == "" {
		return nil, fmt.Errorf("rpc %q: empty url", rpc.Name)
	}

	traceID := uuid.New()
	var client *ethclient.Client
	retryCount := 0
	err := retry.Do(func() error {
		dialCtx, cancel := context.WithTimeout(ctx, mc.RetryConfig.DialTimeout)
		defer cancel()

		var err error
		mc.lggr.Debugw("Dialing node", "traceID", traceID, "rpc", rpc.Name)
		client, err = ethclient.DialContext(dialCtx, rpc.URL)
		if err != nil {
			mc.lggr.Warnw("Dialing node failed", "traceID", traceID, "rpc", rpc.Name, "err", err)
			return err
		}

		return nil
	}, retry.Context(ctx), retry.Attempts(mc.RetryConfig.DialAttempts), retry.Delay(mc.RetryConfig.DialDelay),
		retry.OnRetry(func(n uint, err error) { retryCount++ }))

	if err != nil {
		return nil, errors.Join(err, fmt.Errorf("failed to dial rpc %q", rpc.Name))
	}
	if retryCount > 0 {
		mc.lggr.Infow("Dialed node after retries", "traceID", traceID, "rpc", rpc.Name, "retries", retryCount)
	}

	return client, nil
}

// ensureTimeout bounds parent by timeout unless it already carries a deadline.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); hasDeadline {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}

// reorderRPCs promotes the backup at rpcIndex to primary. The backups that failed before it
// and the old primary move to the end of the backup list.
func (mc *MultiClient) reorderRPCs(rpcIndex int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if rpcIndex < 1 || len(mc.Backups) == 0 {
		return
	}

	newDefaultRPCIndex := rpcIndex - 1
	newDefaultRPC := mc.Backups[newDefaultRPCIndex]

	reordered := make([]*ethclient.Client, 0, len(mc.Backups))
	reordered = append(reordered, mc.Backups[newDefaultRPCIndex+1:]...)
	reordered = append(reordered, mc.Backups[:newDefaultRPCIndex]...)
	reordered = append(reordered, mc.Client)

	mc.Backups = reordered
	mc.Client = newDefaultRPC
}

// Close closes the primary and every backup client.
func (mc *MultiClient) Close() error {
	for _, c := range mc.clients() {
		c.Close()
	}

	return nil
}

func (mc *MultiClient) clients() []*ethclient.Client {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return append([]*ethclient.Client{mc.Client}, mc.Backups...)
}

func maybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
