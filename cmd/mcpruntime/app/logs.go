// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// nopWriteCloser lets stdout serve as a log-stream sink.
type nopWriteCloser struct{ *os.File }

func (nopWriteCloser) Close() error { return nil }

func logsCmd() *cobra.Command {
	var (
		follow bool
		tail   int64
	)

	cmd := &cobra.Command{
		Use:   "logs <server-id>",
		Short: "Fetch or follow the logs of one MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}

			if follow {
				return manager.StreamServerLogs(cmd.Context(), args[0], nopWriteCloser{os.Stdout}, tail)
			}

			out, err := manager.ServerLogs(cmd.Context(), args[0], tail)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the log stream")
	cmd.Flags().Int64Var(&tail, "tail", 100, "Number of lines to show from the end of the logs")
	addClusterFlags(cmd)
	return cmd
}
