package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/blufioerr"
	"github.com/blufio/blufio/internal/config"
	"github.com/blufio/blufio/internal/vault"
)

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "vault", Short: "Manage the encrypted credential vault"}
	cmd.AddCommand(newVaultInitCmd())
	cmd.AddCommand(newVaultPutCmd())
	cmd.AddCommand(newVaultGetCmd())
	cmd.AddCommand(newVaultListCmd())
	cmd.AddCommand(newVaultRemoveCmd())
	cmd.AddCommand(newVaultRotateCmd())
	return cmd
}

func openVaultForCLI(cmd *cobra.Command, cfg *config.Config) (*vault.Vault, string, error) {
	passphrase, err := resolvePassphrase(cmd.OutOrStdout(), true)
	if err != nil {
		return nil, "", err
	}
	v, err := vault.Load(cfg.Vault.Path, passphrase)
	if err != nil {
		return nil, "", blufioerr.New(blufioerr.KindVault, "open vault", err)
	}
	return v, passphrase, nil
}

func newVaultInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new empty vault",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			passphrase, err := vault.PromptPassphraseWithConfirm(cmd.OutOrStdout())
			if err != nil {
				return blufioerr.New(blufioerr.KindVault, "read passphrase", err)
			}
			v, err := vault.Load(cfg.Vault.Path, passphrase)
			if err != nil {
				return blufioerr.New(blufioerr.KindVault, "open vault", err)
			}
			if err := v.Save(passphrase); err != nil {
				return blufioerr.New(blufioerr.KindVault, "save vault", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vault initialized at %s\n", cfg.Vault.Path)
			return nil
		},
	}
}

func newVaultPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <value>",
		Short: "Store a secret in the vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, passphrase, err := openVaultForCLI(cmd, cfg)
			if err != nil {
				return err
			}
			v.Put(args[0], args[1])
			if err := v.Save(passphrase); err != nil {
				return blufioerr.New(blufioerr.KindVault, "save vault", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %q\n", args[0])
			return nil
		},
	}
}

func newVaultGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, _, err := openVaultForCLI(cmd, cfg)
			if err != nil {
				return err
			}
			value, ok := v.Get(args[0])
			if !ok {
				return blufioerr.New(blufioerr.KindVault, fmt.Sprintf("no secret named %q", args[0]), nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newVaultListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, _, err := openVaultForCLI(cmd, cfg)
			if err != nil {
				return err
			}
			for _, name := range v.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newVaultRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a secret from the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, passphrase, err := openVaultForCLI(cmd, cfg)
			if err != nil {
				return err
			}
			v.Remove(args[0])
			if err := v.Save(passphrase); err != nil {
				return blufioerr.New(blufioerr.KindVault, "save vault", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", args[0])
			return nil
		},
	}
}

func newVaultRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Re-encrypt the vault under a new passphrase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			v, _, err := openVaultForCLI(cmd, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enter the new passphrase:")
			newPassphrase, err := vault.PromptPassphraseWithConfirm(cmd.OutOrStdout())
			if err != nil {
				return blufioerr.New(blufioerr.KindVault, "read new passphrase", err)
			}
			if err := v.Rotate(newPassphrase); err != nil {
				return blufioerr.New(blufioerr.KindVault, "rotate vault passphrase", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "vault passphrase rotated")
			return nil
		},
	}
}
