// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package deployment

// State is the lifecycle state of one managed workload.
type State string

const (
	// StateNotCreated means no workload exists in the cluster.
	StateNotCreated State = "not_created"

	// StatePending means the workload exists but has no available replica
	// yet.
	StatePending State = "pending"

	// StateRunning means a readiness poll observed an available replica and
	// a running pod.
	StateRunning State = "running"

	// StateFailed means an unrecoverable error was classified during
	// creation or readiness polling.
	StateFailed State = "failed"

	// StateSucceeded is reserved for future batch-style workloads; nothing
	// drives this transition today.
	StateSucceeded State = "succeeded"
)

// Status is a point-in-time snapshot of a controller's view of its
// workload.
type Status struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace"`
	State      State  `json:"state"`

	// Message carries the last recorded error, empty when healthy.
	Message string `json:"message,omitempty"`

	// Port and Endpoint are set for HTTP transports once resolved.
	Port     int    `json:"port,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}
