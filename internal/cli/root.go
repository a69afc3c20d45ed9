// Package cli wires Cobra subcommands to Blufio's supervisor, config, and
// vault packages. It holds no business logic of its own.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blufio/blufio/internal/logging"
)

// NewRootCmd builds the root command and registers every subcommand.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "blufio",
		Short: "Blufio personal AI agent",
		// main renders fatal errors itself via the blufioerr exit-code mapping.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				logging.SetLevel(slog.LevelDebug)
			} else {
				logging.SetLevel(slog.LevelInfo)
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newShellCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVaultCmd())
	root.AddCommand(newSkillCmd())
	root.AddCommand(newVersionCmd())

	return root
}
