// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries the runtime manager settings, bound to environment
// variables via viper.
type Config struct {
	// KubeconfigPath optionally points at a kubeconfig file used when
	// in-cluster credentials are unavailable.
	KubeconfigPath string

	// Namespace overrides namespace autodetection when non-empty.
	Namespace string

	// PodName is the controlling process's own pod name, used to inherit
	// node scheduling hints. Empty outside a cluster.
	PodName string

	// DefaultImage is the container image used when a catalog item declares
	// none.
	DefaultImage string

	// HostBridgeHost replaces loopback hosts in env URLs when running
	// outside the cluster.
	HostBridgeHost string

	// NodeHost is the hostname used in NodePort endpoint URLs.
	NodeHost string

	// RestartDelay is the pause between stop and start during a restart.
	RestartDelay time.Duration

	// ReadyMaxAttempts and ReadyInterval bound the readiness poll.
	ReadyMaxAttempts int
	ReadyInterval    time.Duration
}

// LoadConfig reads the runtime configuration from the environment.
func LoadConfig() Config {
	v := viper.New()
	v.SetEnvPrefix("MCP_RUNTIME")
	v.AutomaticEnv()

	v.SetDefault("kubeconfig", "")
	v.SetDefault("namespace", "")
	v.SetDefault("pod_name", "")
	v.SetDefault("default_image", "")
	v.SetDefault("host_bridge_host", "host.docker.internal")
	v.SetDefault("node_host", "localhost")
	v.SetDefault("restart_delay", "1s")
	v.SetDefault("ready_max_attempts", 60)
	v.SetDefault("ready_interval", "2s")

	return Config{
		KubeconfigPath:   v.GetString("kubeconfig"),
		Namespace:        v.GetString("namespace"),
		PodName:          v.GetString("pod_name"),
		DefaultImage:     v.GetString("default_image"),
		HostBridgeHost:   v.GetString("host_bridge_host"),
		NodeHost:         v.GetString("node_host"),
		RestartDelay:     v.GetDuration("restart_delay"),
		ReadyMaxAttempts: v.GetInt("ready_max_attempts"),
		ReadyInterval:    v.GetDuration("ready_interval"),
	}
}
