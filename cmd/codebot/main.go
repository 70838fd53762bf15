package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isdmx/codebot/config"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "codebot",
	Short: "codebot - sandboxed code execution for chat",
	Long: `codebot compiles and runs code snippets in ephemeral Docker containers.

Each snippet gets a fresh, network-disabled, memory-capped container that is
removed once the output has been collected.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./config.yaml or ./config/config.yaml)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
