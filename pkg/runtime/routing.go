// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/stacklok/mcpruntime/pkg/deployment"
	"github.com/stacklok/mcpruntime/pkg/errors"
)

// controllerFor routes an operation to the tracked (or lazily loaded)
// controller, converting absence into a server-not-found error.
func (m *Manager) controllerFor(ctx context.Context, serverID string) (*deployment.Controller, error) {
	controller, err := m.GetOrLoadController(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if controller == nil {
		return nil, errors.NewServerNotFoundError(
			fmt.Sprintf("no deployment tracked for server %s", serverID), nil)
	}
	return controller, nil
}

// ServerLogs returns the last tailLines log lines of a server's pod.
func (m *Manager) ServerLogs(ctx context.Context, serverID string, tailLines int64) (string, error) {
	controller, err := m.controllerFor(ctx, serverID)
	if err != nil {
		return "", err
	}
	return controller.RecentLogs(ctx, tailLines)
}

// StreamServerLogs follows a server's logs into sink until ctx is
// cancelled. The sink is closed when the stream ends.
func (m *Manager) StreamServerLogs(ctx context.Context, serverID string, sink io.WriteCloser, tailLines int64) error {
	controller, err := m.controllerFor(ctx, serverID)
	if err != nil {
		sink.Close()
		return err
	}
	return controller.StreamLogs(ctx, sink, tailLines)
}

// ServerEndpoint resolves the HTTP endpoint of a streamable-http server.
func (m *Manager) ServerEndpoint(ctx context.Context, serverID string) (string, error) {
	controller, err := m.controllerFor(ctx, serverID)
	if err != nil {
		return "", err
	}
	return controller.Endpoint(ctx)
}

// ServerPodEndpoint resolves an endpoint pinned to one running pod,
// preserving session affinity across control plane replicas.
func (m *Manager) ServerPodEndpoint(ctx context.Context, serverID string) (*deployment.PodEndpoint, error) {
	controller, err := m.controllerFor(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return controller.RunningPodEndpoint(ctx)
}

// ServerDiagnostics returns the shell command strings a human can use to
// inspect a server's workload. Informational only.
func (m *Manager) ServerDiagnostics(ctx context.Context, serverID string) (logTail, describePods string, err error) {
	controller, err := m.controllerFor(ctx, serverID)
	if err != nil {
		return "", "", err
	}
	return controller.LogTailCommand(), controller.DescribePodsCommand(), nil
}
