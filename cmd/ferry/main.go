package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	a.shutdown()
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ferry",
		Short: "Move files between local disks, SFTP servers and object stores",
		Long: `ferry transfers files between any two of: the local filesystem
(/path, file:///path), SFTP servers (sftp://user@host/path or user@host:path),
S3 buckets (s3://bucket/key) and in-process memory trees (mem://name/path).

Every upload is checksummed while it streams and is only committed once the
server's reply matches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	flags.StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")
	flags.StringVar(&a.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/ferry/config.toml)")
	flags.IntVarP(&a.workers, "workers", "n", 0, "concurrent transfers (default from config)")
	flags.StringVar(&a.bwlimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	flags.StringArrayVar(&a.vaults, "vault", nil, "unlock the vault at PATH before running (repeatable)")
	flags.BoolVar(&a.noProgress, "no-progress", false, "disable progress display")

	root.AddCommand(
		newLsCmd(a),
		newMkdirCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newRmCmd(a),
		newSearchCmd(a),
		newDuCmd(a),
		newAclCmd(a),
		newLocationCmd(a),
		newAccelerateCmd(a),
		newVaultCmd(a),
		newVersionCmd(a),
		newDocsCmd(),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintf(a.stdout, "ferry %s\n", version)
			return nil
		},
	}
}

// exitError carries a process exit code for failures already reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
