package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clydepm/internal/clyerr"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "clydepm:", err)
		os.Exit(clyerr.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	var workers int

	cmd := &cobra.Command{
		Use:           "clydepm",
		Short:         "A package manager and build orchestrator for C/C++ projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	cmd.PersistentFlags().IntVar(&workers, "workers", 0, "override the configured worker pool size")

	cmd.AddCommand(
		newBuildCmd(&logLevel, &workers),
		newGraphCmd(&logLevel, &workers),
		newCacheCmd(&logLevel, &workers),
	)
	return cmd
}
