// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Query-farm/vgi-llist/llist"
)

// NewAddCommand creates the add command.
func NewAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add VALUE...",
		Short: "Append values to the list",
		Long: `Append one or more values to the list, creating it if needed.

Values are parsed as integers, 0x-prefixed hex bytes, JSON lists, maps and
strings, or plain strings.`,
		Example: `  llist add --key user-1 42
  llist add --key user-1 1 2 3
  llist add --key user-1 '{"name": "x", "score": 7}' 0xcafe`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := ParseValues(args)
			if err != nil {
				return err
			}
			return withList(cmd, func(ctx context.Context, l *llist.List, _ *Renderer) error {
				if len(values) == 1 {
					return l.Add(ctx, values[0])
				}
				return l.AddAll(ctx, values...)
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove VALUE",
		Short: "Remove matching values from the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := ParseValue(args[0])
			if err != nil {
				return err
			}
			return withList(cmd, func(ctx context.Context, l *llist.List, _ *Renderer) error {
				return l.Remove(ctx, value)
			})
		},
	}
}

// NewFindCommand creates the find command.
func NewFindCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "find VALUE",
		Short: "List the values matching VALUE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := ParseValue(args[0])
			if err != nil {
				return err
			}
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				found, err := l.Find(ctx, value)
				if err != nil {
					return err
				}
				return r.Values(found)
			})
		},
	}
}

// NewFilterCommand creates the filter command.
func NewFilterCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "filter NAME [ARG...]",
		Short:   "Scan the list through a server-side filter",
		Example: `  llist filter --key user-1 ge 10`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filterArgs, err := ParseValues(args[1:])
			if err != nil {
				return err
			}
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				values, err := l.Filter(ctx, args[0], filterArgs...)
				if err != nil {
					return err
				}
				return r.Values(values)
			})
		},
	}
}

// NewFindFilterCommand creates the find-filter command.
func NewFindFilterCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "find-filter VALUE NAME [ARG...]",
		Short:   "Find values matching VALUE, then apply a filter",
		Example: `  llist find-filter --key user-1 7 kind int`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := ParseValue(args[0])
			if err != nil {
				return err
			}
			filterArgs, err := ParseValues(args[2:])
			if err != nil {
				return err
			}
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				values, err := l.FindThenFilter(ctx, value, args[1], filterArgs...)
				if err != nil {
					return err
				}
				return r.Values(values)
			})
		},
	}
}

// NewScanCommand creates the scan command.
func NewScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List every value in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				values, err := l.Scan(ctx)
				if err != nil {
					return err
				}
				return r.Values(values)
			})
		},
	}
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Delete the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withList(cmd, func(ctx context.Context, l *llist.List, _ *Renderer) error {
				return l.Destroy(ctx)
			})
		},
	}
}

// NewSizeCommand creates the size command.
func NewSizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the number of values in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				size, err := l.Size(ctx)
				if err != nil {
					return err
				}
				return r.Scalar("size", size)
			})
		},
	}
}

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the list's configuration map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				m, err := l.Config(ctx)
				if err != nil {
					return err
				}
				return r.Map(m)
			})
		},
	}
}

// NewCapacityCommand creates the capacity command.
func NewCapacityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capacity [N]",
		Short: "Print or set the list's capacity",
		Long: `Without an argument, print the maximum number of values the list may hold.
With N, set it. A capacity of 0 means unlimited.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var capacity int64
			if len(args) == 1 {
				n, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid capacity %q: %w", args[0], err)
				}
				capacity = n
			}
			return withList(cmd, func(ctx context.Context, l *llist.List, r *Renderer) error {
				if len(args) == 1 {
					return l.SetCapacity(ctx, capacity)
				}
				n, err := l.Capacity(ctx)
				if err != nil {
					return err
				}
				return r.Scalar("capacity", n)
			})
		},
	}
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "List the functions the server provides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *Session) error {
				functions, err := s.Client.Describe(ctx)
				if err != nil {
					return err
				}
				return s.Renderer.Functions(functions)
			})
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display llist version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "llist v%s (%s)\n", version, GitCommit)
		},
	}
}
