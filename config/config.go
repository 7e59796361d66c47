// Package config loads the wallet configuration from a YAML file and SAFE_ prefixed
// environment variables, and converts it into the option structs of the services.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/safe-wallet-framework/chain/evm"
	"github.com/smartcontractkit/safe-wallet-framework/deployment"
	"github.com/smartcontractkit/safe-wallet-framework/internal/retry"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
	"github.com/smartcontractkit/safe-wallet-framework/recovery"
)

// Poll bounds a retry or polling loop.
type Poll struct {
	Attempts uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
}

// Retry returns the retry bounds of p.
func (p Poll) Retry() retry.Config {
	return retry.Config{Attempts: p.Attempts, Delay: p.Delay}
}

// NodeConfig is the configuration of the Ethereum node endpoints.
type NodeConfig struct {
	RPCURL       string        `mapstructure:"rpc_url" yaml:"rpc_url"`                   // The primary RPC endpoint
	BackupURLs   []string      `mapstructure:"backup_urls" yaml:"backup_urls,omitempty"` // Endpoints used when the primary fails
	Retry        Poll          `mapstructure:"retry" yaml:"retry"`                       // Retries of every RPC call on one endpoint
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`                   // Timeout of a single RPC call
	DialAttempts uint          `mapstructure:"dial_attempts" yaml:"dial_attempts"`       // Attempts to connect to an endpoint
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`         // Timeout of a single connection attempt
}

// DeploymentConfig bounds the network-bound steps of a deployment.
type DeploymentConfig struct {
	Relay        Poll   `mapstructure:"relay" yaml:"relay"`                           // Retries of relay calls
	BalancePoll  Poll   `mapstructure:"balance_poll" yaml:"balance_poll"`             // Wait for the first deposit
	HashPoll     Poll   `mapstructure:"hash_poll" yaml:"hash_poll"`                   // Wait for the creation transaction hash
	ReceiptPoll  Poll   `mapstructure:"receipt_poll" yaml:"receipt_poll"`             // Wait for the creation transaction receipt
	PaymentToken string `mapstructure:"payment_token" yaml:"payment_token,omitempty"` // Token paying the creation fee, empty for ether
}

// RecoveryConfig bounds the network-bound steps of a recovery.
type RecoveryConfig struct {
	Network        Poll   `mapstructure:"network" yaml:"network"`                 // Retries of relay and node calls
	ReceiptPoll    Poll   `mapstructure:"receipt_poll" yaml:"receipt_poll"`       // Wait for the recovery transaction receipt
	DerivationPath string `mapstructure:"derivation_path" yaml:"derivation_path"` // Root path of the recovery keys
	GasToken       string `mapstructure:"gas_token" yaml:"gas_token,omitempty"`   // Token paying the recovery fee, empty for ether
}

// ContractsConfig locates the contract metadata.
type ContractsConfig struct {
	MetadataPath string `mapstructure:"metadata_path" yaml:"metadata_path"` // The path to the TOML contract registry
}

// KeystoreConfig is the configuration of the key store.
//
// WARNING: the key store holds private keys in the clear. Keep the file out of shared
// locations.
type KeystoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // The bolt database file, empty for an in-memory store
}

// DatabaseConfig is the configuration of the wallet database.
//
// WARNING: This data type contains sensitive fields and should not be logged or set in file
// configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"` // Secret: Postgres connection string, empty for an in-memory database
}

// LogConfig is the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn or error
}

// Config wraps the entire configuration of the wallet.
type Config struct {
	Node       NodeConfig       `mapstructure:"node" yaml:"node"`
	Deployment DeploymentConfig `mapstructure:"deployment" yaml:"deployment"`
	Recovery   RecoveryConfig   `mapstructure:"recovery" yaml:"recovery"`
	Contracts  ContractsConfig  `mapstructure:"contracts" yaml:"contracts"`
	Keystore   KeystoreConfig   `mapstructure:"keystore" yaml:"keystore"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// Default returns the configuration used for every value that is not set.
func Default() *Config {
	defaultPoll := Poll{Attempts: retry.DefaultAttempts, Delay: retry.DefaultDelay}
	rpc := evm.DefaultRetryConfig()

	return &Config{
		Node: NodeConfig{
			Retry:        Poll{Attempts: rpc.Attempts, Delay: rpc.Delay},
			Timeout:      rpc.Timeout,
			DialAttempts: rpc.DialAttempts,
			DialTimeout:  rpc.DialTimeout,
		},
		Deployment: DeploymentConfig{
			Relay:       defaultPoll,
			BalancePoll: Poll{Attempts: 60, Delay: 5 * time.Second},
			HashPoll:    Poll{Attempts: 30, Delay: 5 * time.Second},
			ReceiptPoll: Poll{Attempts: 60, Delay: 5 * time.Second},
		},
		Recovery: RecoveryConfig{
			Network:        defaultPoll,
			ReceiptPoll:    Poll{Attempts: 60, Delay: 5 * time.Second},
			DerivationPath: accounts.DefaultRootDerivationPath.String(),
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load loads the config from the file path, falling back to env vars if the file does not exist.
// If the file exists, any env vars that are set will override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := newViper()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// LoadFile loads the config from a file.
func LoadFile(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// Write stores the config as YAML at filePath.
func (c *Config) Write(filePath string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filePath, b, 0o600)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	polls := map[string]Poll{
		"node.retry":              d.Node.Retry,
		"deployment.relay":        d.Deployment.Relay,
		"deployment.balance_poll": d.Deployment.BalancePoll,
		"deployment.hash_poll":    d.Deployment.HashPoll,
		"deployment.receipt_poll": d.Deployment.ReceiptPoll,
		"recovery.network":        d.Recovery.Network,
		"recovery.receipt_poll":   d.Recovery.ReceiptPoll,
	}
	for key, p := range polls {
		v.SetDefault(key+".attempts", p.Attempts)
		v.SetDefault(key+".delay", p.Delay)
	}

	v.SetDefault("node.timeout", d.Node.Timeout)
	v.SetDefault("node.dial_attempts", d.Node.DialAttempts)
	v.SetDefault("node.dial_timeout", d.Node.DialTimeout)
	v.SetDefault("recovery.derivation_path", d.Recovery.DerivationPath)
	v.SetDefault("log.level", d.Log.Level)
}

var (
	// envBindings defines how environment variables map to configuration keys used by Viper.
	// Each entry maps a config key (as used in the struct, e.g. "node.rpc_url") to the
	// environment variable names that can provide its value, checked in order.
	envBindings = map[string][]string{
		"node.rpc_url":                     {"SAFE_NODE_RPC_URL"},
		"node.backup_urls":                 {"SAFE_NODE_BACKUP_URLS"},
		"node.retry.attempts":              {"SAFE_NODE_RETRY_ATTEMPTS"},
		"node.retry.delay":                 {"SAFE_NODE_RETRY_DELAY"},
		"node.timeout":                     {"SAFE_NODE_TIMEOUT"},
		"deployment.relay.attempts":        {"SAFE_DEPLOYMENT_RELAY_ATTEMPTS"},
		"deployment.relay.delay":           {"SAFE_DEPLOYMENT_RELAY_DELAY"},
		"deployment.balance_poll.attempts": {"SAFE_DEPLOYMENT_BALANCE_POLL_ATTEMPTS"},
		"deployment.balance_poll.delay":    {"SAFE_DEPLOYMENT_BALANCE_POLL_DELAY"},
		"deployment.hash_poll.attempts":    {"SAFE_DEPLOYMENT_HASH_POLL_ATTEMPTS"},
		"deployment.hash_poll.delay":       {"SAFE_DEPLOYMENT_HASH_POLL_DELAY"},
		"deployment.receipt_poll.attempts": {"SAFE_DEPLOYMENT_RECEIPT_POLL_ATTEMPTS"},
		"deployment.receipt_poll.delay":    {"SAFE_DEPLOYMENT_RECEIPT_POLL_DELAY"},
		"deployment.payment_token":         {"SAFE_DEPLOYMENT_PAYMENT_TOKEN"},
		"recovery.network.attempts":        {"SAFE_RECOVERY_NETWORK_ATTEMPTS"},
		"recovery.network.delay":           {"SAFE_RECOVERY_NETWORK_DELAY"},
		"recovery.receipt_poll.attempts":   {"SAFE_RECOVERY_RECEIPT_POLL_ATTEMPTS"},
		"recovery.receipt_poll.delay":      {"SAFE_RECOVERY_RECEIPT_POLL_DELAY"},
		"recovery.derivation_path":         {"SAFE_RECOVERY_DERIVATION_PATH"},
		"recovery.gas_token":               {"SAFE_RECOVERY_GAS_TOKEN"},
		"contracts.metadata_path":          {"SAFE_CONTRACTS_METADATA_PATH"},
		"keystore.path":                    {"SAFE_KEYSTORE_PATH"},
		"database.dsn":                     {"SAFE_DATABASE_DSN", "DATABASE_URL"},
		"log.level":                        {"SAFE_LOG_LEVEL"},
	}
)

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}

// RPCs returns the node endpoints, primary first.
func (c *Config) RPCs() []evm.RPC {
	var rpcs []evm.RPC
	if c.Node.RPCURL != "" {
		rpcs = append(rpcs, evm.RPC{Name: "primary", URL: c.Node.RPCURL})
	}
	for i, url := range c.Node.BackupURLs {
		rpcs = append(rpcs, evm.RPC{Name: fmt.Sprintf("backup-%d", i+1), URL: url})
	}

	return rpcs
}

// RetryConfig returns the retry bounds of the node client.
func (c *Config) RetryConfig() evm.RetryConfig {
	rc := evm.DefaultRetryConfig()
	rc.Attempts = c.Node.Retry.Attempts
	rc.Delay = c.Node.Retry.Delay
	rc.Timeout = c.Node.Timeout
	rc.DialAttempts = c.Node.DialAttempts
	rc.DialTimeout = c.Node.DialTimeout

	return rc
}

// DeploymentOptions returns the options of the deployment service.
func (c *Config) DeploymentOptions() (deployment.Options, error) {
	token, err := optionalAddress("deployment.payment_token", c.Deployment.PaymentToken)
	if err != nil {
		return deployment.Options{}, err
	}

	return deployment.Options{
		Relay:        c.Deployment.Relay.Retry(),
		BalancePoll:  c.Deployment.BalancePoll.Retry(),
		HashPoll:     c.Deployment.HashPoll.Retry(),
		ReceiptPoll:  c.Deployment.ReceiptPoll.Retry(),
		PaymentToken: token,
	}, nil
}

// RecoveryOptions returns the options of the recovery service.
func (c *Config) RecoveryOptions() (recovery.Options, error) {
	token, err := optionalAddress("recovery.gas_token", c.Recovery.GasToken)
	if err != nil {
		return recovery.Options{}, err
	}

	return recovery.Options{
		Network:     c.Recovery.Network.Retry(),
		ReceiptPoll: c.Recovery.ReceiptPoll.Retry(),
		GasToken:    token,
	}, nil
}

// DerivationPath returns the root path of the recovery keys.
func (c *Config) DerivationPath() (accounts.DerivationPath, error) {
	path, err := accounts.ParseDerivationPath(c.Recovery.DerivationPath)
	if err != nil {
		return nil, fmt.Errorf("recovery.derivation_path: %w", err)
	}

	return path, nil
}

// Logger returns the logger configuration.
func (c *Config) Logger() (logger.Config, error) {
	cfg, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.Config{}, fmt.Errorf("log.level: %w", err)
	}

	return cfg, nil
}

func optionalAddress(key, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, s)
	}

	return common.HexToAddress(s), nil
}
