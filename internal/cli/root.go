// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the llist command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Query-farm/vgi-llist/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "llist",
		Short: "Operate on a remote large list",
		Long: `llist calls the "llist" remote function package to operate on one list
stored in a bin of a keyed record.

The record is addressed by --namespace, --set and --key; the list by --bin.
Settings also come from llist.yaml and LLIST_* environment variables.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./llist.yaml)")
	flags.String("transport", "", "transport to the server (http|exec)")
	flags.String("url", "", "server base URL for the http transport")
	flags.String("prefix", "", "URL path prefix of the server endpoints")
	flags.String("command", "", "worker command line for the exec transport")
	flags.Duration("timeout", 0, "timeout of each call")
	flags.String("log-level", "", "client log level (debug|info|warn|error)")
	flags.String("remote-log-level", "", "minimum level of server log messages to relay")
	flags.Int("compression-level", 0, "zstd level for HTTP request bodies (0 disables)")
	flags.Float64("rate-limit", 0, "maximum calls per second (0 disables)")
	flags.Int("rate-burst", 0, "rate limiter burst")
	flags.StringP("namespace", "n", "", "record namespace")
	flags.StringP("set", "s", "", "record set")
	flags.StringP("key", "k", "", "record user key (parsed like a value)")
	flags.StringP("bin", "b", "", "bin holding the list")
	flags.String("user-module", "", "module applied when the list is created")
	flags.Bool("trace", false, "print OpenTelemetry spans of each call to stderr")
	flags.StringP("output", "o", "", "output format (table|yaml|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.OutputTable, config.OutputYAML, config.OutputJSON}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("transport", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.TransportHTTP, config.TransportExec}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		NewAddCommand(),
		NewRemoveCommand(),
		NewFindCommand(),
		NewFilterCommand(),
		NewFindFilterCommand(),
		NewScanCommand(),
		NewDestroyCommand(),
		NewSizeCommand(),
		NewConfigCommand(),
		NewCapacityCommand(),
		NewDescribeCommand(),
		NewVersionCommand(Version),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg, _ := config.Load("", nil)
	return cfg
}
