package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/blufioerr"
	"github.com/blufio/blufio/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [validate|show]",
		Short: "Validate or print the merged configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return blufioerr.New(blufioerr.KindConfig, "load configuration", err)
			}

			switch args[0] {
			case "validate":
				fmt.Fprintln(cmd.OutOrStdout(), "config OK")
				return nil
			case "show":
				return config.Write(cfg, cmd.OutOrStdout())
			default:
				return blufioerr.New(blufioerr.KindConfig, fmt.Sprintf("unknown config subcommand %q, want validate or show", args[0]), nil)
			}
		},
	}
	return cmd
}
