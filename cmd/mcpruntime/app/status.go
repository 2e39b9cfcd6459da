// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of every configured MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}

			// Load every known server so workloads created by other
			// replicas show up too.
			records, err := manager.AllServerIDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range records {
				if _, err := manager.GetOrLoadController(cmd.Context(), id); err != nil {
					return err
				}
			}

			out, err := json.MarshalIndent(manager.StatusSummary(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	addClusterFlags(cmd)
	return cmd
}
