// Command safewallet inspects and prepares the local state of the Safe wallet: its
// configuration, device and recovery keys, stored wallets and known contracts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/safe-wallet-framework/pkg/commands"
	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	lggr, err := logger.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = lggr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(lggr).ExecuteContext(ctx); err != nil {
		return 1
	}

	return 0
}

func newRootCmd(lggr logger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "safewallet",
		Short:        "Safe wallet tooling",
		SilenceUsage: true,
	}

	cmds := commands.New(lggr)
	root.AddCommand(
		cmds.Config(),
		cmds.Keys(),
		cmds.Wallets(),
		cmds.Contracts(),
	)

	return root
}
