// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcpruntime command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcpruntime/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mcpruntime",
	DisableAutoGenTag: true,
	Short:             "mcpruntime manages MCP server workloads on Kubernetes",
	Long: `mcpruntime is the runtime orchestration layer for MCP (Model Context Protocol)
servers on Kubernetes. It turns declarative server descriptions into live
Deployments, Secrets and Services, keeps an in-memory view of their state,
and exposes operations to start, stop, restart, inspect and stream logs
from them.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the mcpruntime CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logsCmd())

	return rootCmd
}
