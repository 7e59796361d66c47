package commands

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/safe-wallet-framework/contracts"
	"github.com/smartcontractkit/safe-wallet-framework/wallet"
)

// Wallets creates the wallets command group.
//
// Usage:
//
//	safewallet wallets list
//	safewallet wallets show <wallet-id>
//	safewallet wallets select <wallet-id>
//	safewallet wallets balance <wallet-id>
func (c *Commands) Wallets() *cobra.Command {
	return group("wallets", "Wallet commands",
		c.newWalletsListCmd(),
		c.newWalletsShowCmd(),
		c.newWalletsSelectCmd(),
		c.newWalletsBalanceCmd(),
	)
}

// withWallets opens the wallet repository of the configuration and runs fn with it.
func (c *Commands) withWallets(cmd *cobra.Command, fn func(repo wallet.Repository) error) error {
	cfg, err := c.deps.ConfigLoader(configPath(cmd))
	if err != nil {
		return err
	}
	repo, closer, err := c.deps.WalletStoreOpener(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer closer.Close()

	return fn(repo)
}

func (c *Commands) newWalletsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withWallets(cmd, func(repo wallet.Repository) error {
				wallets, err := repo.FindAll(cmd.Context())
				if err != nil {
					return err
				}
				var selected wallet.ID
				if w, err := repo.SelectedWallet(cmd.Context()); err == nil {
					selected = w.ID()
				} else if !errors.Is(err, wallet.ErrNoSelectedWallet) {
					return err
				}

				rows := make([][]string, 0, len(wallets))
				for _, w := range wallets {
					mark := ""
					if w.ID() == selected {
						mark = "*"
					}
					rows = append(rows, []string{
						mark,
						w.ID().String(),
						string(w.State()),
						addressOrEmpty(w),
						strconv.Itoa(w.ConfirmationThreshold()) + "/" + strconv.Itoa(len(w.Owners())),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"", "ID", "State", "Address", "Threshold"}, rows)

				return nil
			})
		},
	}
}

func (c *Commands) newWalletsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <wallet-id>",
		Short: "Show the owners of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWallets(cmd, func(repo wallet.Repository) error {
				w, err := repo.Find(cmd.Context(), wallet.ID(args[0]))
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Wallet %s (%s)\n", w.ID(), w.State())
				if address := addressOrEmpty(w); address != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\n", address)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Threshold: %d\n", w.ConfirmationThreshold())

				rows := make([][]string, 0, len(w.Owners()))
				for _, o := range w.Owners() {
					rows = append(rows, []string{string(o.Role), o.Address.Hex()})
				}
				renderTable(cmd.OutOrStdout(), []string{"Role", "Address"}, rows)

				return nil
			})
		},
	}
}

func (c *Commands) newWalletsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <wallet-id>",
		Short: "Select the wallet used by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWallets(cmd, func(repo wallet.Repository) error {
				id := wallet.ID(args[0])
				if err := repo.Select(cmd.Context(), id); err != nil {
					return err
				}
				c.lggr.Infow("Wallet selected", "walletID", id)
				fmt.Fprintf(cmd.OutOrStdout(), "Selected wallet %s\n", id)

				return nil
			})
		},
	}
}

func (c *Commands) newWalletsBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <wallet-id>",
		Short: "Read the balance of a wallet in its fee payment token from the node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return err
			}
			enc, err := c.deps.crypto(cfg)
			if err != nil {
				return err
			}
			repo, closer, err := c.deps.WalletStoreOpener(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer closer.Close()

			w, err := repo.Find(cmd.Context(), wallet.ID(args[0]))
			if err != nil {
				return err
			}
			safe, ok := w.Address()
			if !ok {
				return fmt.Errorf("wallet %s: %w", w.ID(), wallet.ErrAddressNotSet)
			}

			node, nodeCloser, err := c.deps.NodeDialer(cmd.Context(), c.lggr, cfg)
			if err != nil {
				return err
			}
			defer nodeCloser.Close()

			token, _ := w.FeePaymentToken()
			var balance *big.Int
			if (wallet.AccountID{WalletID: w.ID(), Token: token}).IsEther() {
				balance, err = node.GetBalance(cmd.Context(), safe)
			} else {
				erc20 := contracts.NewERC20Proxy(enc)
				var out []byte
				if out, err = node.Call(cmd.Context(), token, erc20.BalanceOf(safe)); err == nil {
					balance, err = erc20.DecodeBalanceOfResult(out)
				}
			}
			if err != nil {
				return fmt.Errorf("failed to read balance of %s: %w", safe.Hex(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", balance, tokenName(token))

			return nil
		},
	}
}

func tokenName(token common.Address) string {
	if token == (common.Address{}) {
		return "wei"
	}

	return token.Hex()
}

func addressOrEmpty(w *wallet.Wallet) string {
	if a, ok := w.Address(); ok {
		return a.Hex()
	}

	return ""
}

func renderTable(out io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetBorders(tablewriter.Border{
		Left:   false,
		Right:  false,
		Top:    true,
		Bottom: true,
	})
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}
