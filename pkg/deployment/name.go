// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"github.com/stacklok/mcpruntime/pkg/labels"
)

const (
	// namePrefix is prepended to every derived deployment name.
	namePrefix = "mcp-server-"

	// maxNameLength is the Kubernetes limit for resource names.
	maxNameLength = 253

	// secretSuffix is appended to the deployment name to derive the managed
	// secret name.
	secretSuffix = "-secrets"
)

// Name derives the workload name for a server. The result is a pure
// function of the server name: RFC 1123 safe, prefixed and bounded. When
// the server name sanitizes to nothing, the id is used instead.
func Name(serverName, serverID string) string {
	slug := labels.SanitizeValue(serverName)
	if slug == "" {
		slug = labels.SanitizeValue(serverID)
	}
	name := namePrefix + slug
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// SecretName derives the managed secret name for a deployment.
func SecretName(deploymentName string) string {
	name := deploymentName + secretSuffix
	if len(name) > maxNameLength {
		name = name[:maxNameLength-len(secretSuffix)] + secretSuffix
	}
	return name
}

// ServiceName derives the network-exposure service name for a deployment.
// It matches the deployment name so DNS-based endpoints stay predictable.
func ServiceName(deploymentName string) string {
	return deploymentName
}
