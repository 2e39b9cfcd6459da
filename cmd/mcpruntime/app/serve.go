// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stacklok/mcpruntime/pkg/catalog"
	"github.com/stacklok/mcpruntime/pkg/logger"
	"github.com/stacklok/mcpruntime/pkg/runtime"
	"github.com/stacklok/mcpruntime/pkg/secrets"
)

var (
	catalogFile string
	kubeconfig  string
	namespace   string
)

func addClusterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&catalogFile, "catalog-file", "", "Path to the JSON catalog of servers")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to a kubeconfig file (defaults to in-cluster credentials)")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to manage servers in (defaults to autodetection)")
}

// newManager wires the manager from flags and environment configuration.
func newManager() (*runtime.Manager, error) {
	if catalogFile == "" {
		return nil, fmt.Errorf("--catalog-file is required")
	}
	store, err := catalog.NewFileStore(catalogFile)
	if err != nil {
		return nil, err
	}

	cfg := runtime.LoadConfig()
	if kubeconfig != "" {
		cfg.KubeconfigPath = kubeconfig
	}
	if namespace != "" {
		cfg.Namespace = namespace
	}

	manager := runtime.NewManager(cfg, store, secrets.NewInMemoryVault())
	if !manager.Enabled() {
		return nil, fmt.Errorf("kubernetes connection could not be established")
	}
	return manager, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start all configured MCP servers and keep them running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := newManager()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := manager.Start(ctx); err != nil {
				return err
			}
			logger.Infof("Runtime started in namespace %s, waiting for shutdown signal", manager.Namespace())

			<-ctx.Done()
			stop()

			logger.Info("Shutting down, stopping all managed servers")
			manager.Shutdown(context.Background())
			return nil
		},
	}
	addClusterFlags(cmd)
	return cmd
}
