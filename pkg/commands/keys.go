package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/safe-wallet-framework/encryption"
)

// recoveryKeys is the number of owner keys a recovery phrase stands for.
const recoveryKeys = 2

// Keys creates the keys command group.
//
// Usage:
//
//	safewallet keys generate
//	safewallet keys phrase
//	echo "$PHRASE" | safewallet keys derive
func (c *Commands) Keys() *cobra.Command {
	return group("keys", "Key commands",
		c.newKeysGenerateCmd(),
		c.newKeysPhraseCmd(),
		c.newKeysDeriveCmd(),
	)
}

func (c *Commands) newKeysGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a device key and store it in the key store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return err
			}
			enc, err := c.deps.crypto(cfg)
			if err != nil {
				return err
			}
			keys, closer, err := c.deps.KeystoreOpener(cfg.Keystore)
			if err != nil {
				return err
			}
			defer closer.Close()

			key, err := enc.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			address, err := keys.Save(cmd.Context(), key)
			if err != nil {
				return err
			}

			c.lggr.Infow("Device key generated", "address", address.Hex())
			fmt.Fprintln(cmd.OutOrStdout(), address.Hex())

			return nil
		},
	}
}

func (c *Commands) newKeysPhraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phrase",
		Short: "Generate a recovery phrase and print the owner addresses it derives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return err
			}
			enc, err := c.deps.crypto(cfg)
			if err != nil {
				return err
			}

			phrase, err := enc.GenerateMnemonic()
			if err != nil {
				return fmt.Errorf("failed to generate recovery phrase: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), phrase)

			return printRecoveryOwners(cmd, enc, phrase)
		},
	}
}

func (c *Commands) newKeysDeriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive",
		Short: "Read a recovery phrase from stdin and print the owner addresses it derives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.deps.ConfigLoader(configPath(cmd))
			if err != nil {
				return err
			}
			enc, err := c.deps.crypto(cfg)
			if err != nil {
				return err
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err = scanner.Err(); err != nil {
					return err
				}
				return errors.New("no recovery phrase on stdin")
			}
			phrase := strings.Join(strings.Fields(scanner.Text()), " ")
			if !enc.ValidateMnemonic(phrase) {
				return encryption.ErrInvalidMnemonic
			}

			return printRecoveryOwners(cmd, enc, phrase)
		},
	}
}

func printRecoveryOwners(cmd *cobra.Command, enc *encryption.Service, phrase string) error {
	keys, err := enc.DeriveKeys(phrase, recoveryKeys)
	if err != nil {
		return err
	}
	for i, key := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "owner %d: %s\n", i, crypto.PubkeyToAddress(key.PublicKey).Hex())
	}

	return nil
}
