package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// cliOptions are the persistent flags shared by every command
type cliOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "satsync",
		Short:         "Synchronize satellite messaging gateway mailboxes into a local store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to configuration file")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging (includes unmasked identifiers)")

	root.AddCommand(
		newServeCmd(opts),
		newPollCmd(opts),
		newSendCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "satsync: %v\n", err)
		stop()
		os.Exit(1)
	}
}
