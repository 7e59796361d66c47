// Package commands provides the cobra commands of the wallet CLI.
//
// The commands are created through the Commands factory:
//
//	cmds := commands.New(lggr)
//	app.AddCommand(
//	    cmds.Config(),
//	    cmds.Keys(),
//	    cmds.Wallets(),
//	    cmds.Contracts(),
//	)
//
// Every command group takes a persistent --config flag pointing at the YAML configuration;
// values missing from the file fall back to SAFE_ environment variables and defaults.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

// DefaultConfigPath is the configuration file used when --config is not given.
const DefaultConfigPath = "safe.yml"

// Commands provides a factory for creating CLI commands with shared configuration.
// This allows setting the logger once and reusing it across all commands.
type Commands struct {
	lggr logger.Logger
	deps Deps
}

// New creates a new Commands factory with the given logger. deps override the production
// dependencies; nil fields keep their default.
func New(lggr logger.Logger, deps ...Deps) *Commands {
	c := &Commands{lggr: lggr}
	if len(deps) > 0 {
		c.deps = deps[0]
	}
	c.deps.applyDefaults()

	return c
}

// group returns a command group carrying the persistent --config flag.
func group(use, short string, subs ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	cmd.AddCommand(subs...)
	cmd.PersistentFlags().
		StringP("config", "c", DefaultConfigPath, "Path to the configuration file")

	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return DefaultConfigPath
	}

	return path
}
