package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/safe-wallet-framework/config"
)

const redacted = "<redacted>"

// Config creates the config command group.
//
// Usage:
//
//	safewallet config init -c safe.yml
//	safewallet config show -c safe.yml
func (c *Commands) Config() *cobra.Command {
	return group("config", "Configuration commands",
		c.newConfigInitCmd(),
		c.newConfigShowCmd(),
	)
}

func (c *Commands) newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath(cmd)
			force, _ := cmd.Flags().GetBool("force")

			if _, err := os.Stat(path); !force && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}

			c.lggr.Infow("Configuration written", "path", path)
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)

			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")

	return cmd
}

func (c *Commands) newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return err
			}

			shown := *cfg
			if shown.Database.DSN != "" {
				shown.Database.DSN = redacted
			}
			b, err := yaml.Marshal(shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(b)

			return err
		},
	}
}
