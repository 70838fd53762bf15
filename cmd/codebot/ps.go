package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isdmx/codebot/sandbox"
)

var allFlag bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List containers on the Docker host",
	RunE:  runPs,
}

func init() {
	psCmd.Flags().BoolVarP(&allFlag, "all", "a", false, "Include stopped containers")
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	daemon, err := sandbox.NewDaemon(cfg)
	if err != nil {
		return err
	}
	defer daemon.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	list, err := sandbox.ListContainers(ctx, daemon, allFlag)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), sandbox.FormatContainers(list))
	return nil
}
