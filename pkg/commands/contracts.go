package commands

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/safe-wallet-framework/metadata"
)

// Contracts creates the contracts command group.
//
// Usage:
//
//	safewallet contracts list
func (c *Commands) Contracts() *cobra.Command {
	return group("contracts", "Contract metadata commands",
		c.newContractsListCmd(),
	)
}

func (c *Commands) newContractsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the known Safe contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return err
			}
			registry, err := c.deps.RegistryLoader(cfg.Contracts)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, t := range []metadata.ContractType{metadata.MasterCopy, metadata.MultiSend, metadata.ProxyFactory} {
				contracts := registry.Contracts(t)
				slices.SortFunc(contracts, func(a, b metadata.Contract) int {
					if n := b.Version.Compare(a.Version); n != 0 {
						return n
					}
					return strings.Compare(a.Address.Hex(), b.Address.Hex())
				})
				for _, ct := range contracts {
					mark := ""
					if ct.Type == metadata.MultiSend && ct.Address == registry.MultiSendContractAddress() {
						mark = "default"
					}
					rows = append(rows, []string{string(ct.Type), ct.Version.String(), ct.Address.Hex(), mark})
				}
			}
			renderTable(cmd.OutOrStdout(), []string{"Type", "Version", "Address", ""}, rows)

			return nil
		},
	}
}
