// Package main is the entry point for the blufio binary. It delegates
// immediately to the CLI command tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/blufio/blufio/internal/blufioerr"
	"github.com/blufio/blufio/internal/cli"
	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/supervisor"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	supervisor.Version = version

	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		if kind, ok := blufioerr.As(err); ok {
			logging.Logger().Error("fatal error", "err", kind.Error(), "kind", kind.Kind)
			fmt.Fprintln(os.Stderr, kind.Error())
			os.Exit(kind.Kind.ExitCode())
		}
		logging.Logger().Error("fatal error", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
