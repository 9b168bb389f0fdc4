// Package cli implements the patchloop command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	quiet      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "patchloop",
		Short: "Repair a codebase with LLM agents until its tests pass",
		Long: `patchloop reads an issue, diagnoses the codebase, applies minimal edits
and runs the test suite. Failed patches are interpreted, recorded in the
issue file and fed back into the next iteration until the tests pass or a
limit is reached.`,
		SilenceUsage: true,
		Version:      Version,
	}
	cmd.SetVersionTemplate("patchloop version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default .patchloop/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not narrate agent activity")

	cmd.AddCommand(
		newRunCmd(opts),
		newDemoCmd(opts),
		newChatCmd(opts),
		newEvalCmd(opts),
	)
	return cmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the run.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
