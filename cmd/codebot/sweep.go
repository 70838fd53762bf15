package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/isdmx/codebot/logger"
	"github.com/isdmx/codebot/sandbox"
)

var forceFlag bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove leftover sandbox containers",
	Long: `List every container whose name starts with "dockerbot-" and, with --force,
stop and remove them.

This command cannot see which sandboxes a running "codebot serve" still owns.
Without --force it only prints what would be removed; pass --force once no
server is using the same Docker host.

Examples:
  codebot sweep
  codebot sweep --force`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Remove the listed containers")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	daemon, err := sandbox.NewDaemon(cfg)
	if err != nil {
		return err
	}
	defer daemon.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return sweep(ctx, cmd.OutOrStdout(), sandbox.NewSweeperFromConfig(log, cfg, daemon, nil), forceFlag)
}

// sweep removes orphans when force is set and only lists them otherwise
func sweep(ctx context.Context, out io.Writer, sweeper *sandbox.Sweeper, force bool) error {
	if !force {
		orphans, err := sweeper.Orphans(ctx)
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			fmt.Fprintln(out, "No leftover containers.")
			return nil
		}
		fmt.Fprintln(out, sandbox.FormatContainers(orphans))
		fmt.Fprintf(out, "Would remove %d container(s). Re-run with --force to remove them.\n", len(orphans))
		return nil
	}

	removed, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %d container(s).\n", removed)
	return nil
}
