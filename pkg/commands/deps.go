package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/config"
	"github.com/smartcontractkit/safe-wallet-framework/datastore/sqlstore"
	"github.com/smartcontractkit/safe-wallet-framework/encryption"
	"github.com/smartcontractkit/safe-wallet-framework/keystore"
	"github.com/smartcontractkit/safe-wallet-framework/metadata"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// memoryDatabase is the ramsql database used when no DSN is configured.
const memoryDatabase = "safe-wallet"

// ConfigLoaderFunc loads the configuration at path.
type ConfigLoaderFunc func(path string) (*config.Config, error)

// WalletStoreOpenerFunc opens the wallet repository described by cfg. The closer releases
// the underlying database.
type WalletStoreOpenerFunc func(ctx context.Context, cfg config.DatabaseConfig) (wallet.Repository, io.Closer, error)

// KeystoreOpenerFunc opens the key store described by cfg.
type KeystoreOpenerFunc func(cfg config.KeystoreConfig) (keystore.Repository, io.Closer, error)

// RegistryLoaderFunc loads the contract registry described by cfg.
type RegistryLoaderFunc func(cfg config.ContractsConfig) (*metadata.Registry, error)

// NodeDialerFunc connects to the Ethereum node described by cfg.
type NodeDialerFunc func(ctx context.Context, lggr logger.Logger, cfg *config.Config) (evm.NodeService, io.Closer, error)

// defaultWalletStoreOpener opens Postgres, or the in-process ramsql database without a DSN.
func defaultWalletStoreOpener(ctx context.Context, cfg config.DatabaseConfig) (wallet.Repository, io.Closer, error) {
	var (
		s   *sqlstore.Store
		err error
	)
	if cfg.DSN == "" {
		s, err = sqlstore.OpenMemory(ctx, memoryDatabase)
	} else {
		s, err = sqlstore.OpenPostgres(ctx, cfg.DSN)
	}
	if err != nil {
		return nil, nil, err
	}

	return s.Wallets(), s, nil
}

// defaultKeystoreOpener opens the bolt key store, or a memory store without a path.
func defaultKeystoreOpener(cfg config.KeystoreConfig) (keystore.Repository, io.Closer, error) {
	if cfg.Path == "" {
		return keystore.NewMemoryStore(), nopCloser{}, nil
	}
	s, err := keystore.OpenBoltStore(cfg.Path)
	if err != nil {
		return nil, nil, err
	}

	return s, s, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// defaultNodeDialer dials the configured endpoints through a fail-over MultiClient.
func defaultNodeDialer(ctx context.Context, lggr logger.Logger, cfg *config.Config) (evm.NodeService, io.Closer, error) {
	mc, err := evm.NewMultiClient(ctx, lggr, cfg.RPCs(), evm.WithRetryConfig(cfg.RetryConfig()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to the node: %w", err)
	}

	return evm.NewNode(mc), mc, nil
}

func defaultRegistryLoader(cfg config.ContractsConfig) (*metadata.Registry, error) {
	return metadata.LoadRegistry(cfg.MetadataPath)
}

// Deps holds the injectable dependencies of the commands.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// ConfigLoader loads the configuration.
	// Default: config.Load
	ConfigLoader ConfigLoaderFunc

	// WalletStoreOpener opens the wallet repository.
	// Default: sqlstore over Postgres or ramsql
	WalletStoreOpener WalletStoreOpenerFunc

	// KeystoreOpener opens the key store.
	// Default: keystore.OpenBoltStore or keystore.NewMemoryStore
	KeystoreOpener KeystoreOpenerFunc

	// RegistryLoader loads the contract registry.
	// Default: metadata.LoadRegistry
	RegistryLoader RegistryLoaderFunc

	// NodeDialer connects to the Ethereum node.
	// Default: evm.NewMultiClient over the configured RPCs
	NodeDialer NodeDialerFunc

	// Crypto generates and derives keys. When nil, a service deriving under the configured
	// derivation path is used.
	Crypto *encryption.Service
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.WalletStoreOpener == nil {
		d.WalletStoreOpener = defaultWalletStoreOpener
	}
	if d.KeystoreOpener == nil {
		d.KeystoreOpener = defaultKeystoreOpener
	}
	if d.RegistryLoader == nil {
		d.RegistryLoader = defaultRegistryLoader
	}
	if d.NodeDialer == nil {
		d.NodeDialer = defaultNodeDialer
	}
}

// crypto returns the injected service or one deriving under the path of cfg.
func (d *Deps) crypto(cfg *config.Config) (*encryption.Service, error) {
	if d.Crypto != nil {
		return d.Crypto, nil
	}
	path, err := cfg.DerivationPath()
	if err != nil {
		return nil, err
	}

	return encryption.New(encryption.WithDerivationPath(path)), nil
}
