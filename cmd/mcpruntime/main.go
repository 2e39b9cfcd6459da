// Package main is the entry point for the mcpruntime control plane.
package main

import (
	"os"

	"github.com/stacklok/mcpruntime/cmd/mcpruntime/app"
	"github.com/stacklok/mcpruntime/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
