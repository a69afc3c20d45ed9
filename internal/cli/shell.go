package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/config"
	"github.com/blufio/blufio/internal/supervisor"
	"github.com/blufio/blufio/internal/vault"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive terminal chat against the agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			passphrase, err := resolvePassphrase(cmd.OutOrStdout(), true)
			if err != nil {
				return err
			}
			v, err := vault.Load(cfg.Vault.Path, passphrase)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sup, err := supervisor.New(ctx, cfg, v)
			if err != nil {
				return err
			}

			return sup.Shell(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
