// Package main is the entry point for the storesync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/storesync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Subcommands silence cobra's own error output; stdout may carry JSON.
		fmt.Fprintln(os.Stderr, "storesync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
