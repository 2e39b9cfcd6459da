// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package k8s

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// kubeconfigFile is the subset of the kubeconfig schema checked before the
// file is handed to client-go. Validation happens up front so that a broken
// file fails bootstrap with a clear error instead of surfacing later as an
// opaque connection failure.
type kubeconfigFile struct {
	Clusters []struct {
		Name    string `yaml:"name"`
		Cluster struct {
			Server string `yaml:"server"`
		} `yaml:"cluster"`
	} `yaml:"clusters"`
	Contexts []struct {
		Name string `yaml:"name"`
	} `yaml:"contexts"`
	Users []struct {
		Name string `yaml:"name"`
	} `yaml:"users"`
}

// ValidateKubeconfigFile checks that the file at path parses as a kubeconfig
// and contains non-empty clusters, contexts and users sections, with the
// first cluster carrying a name and server URL.
func ValidateKubeconfigFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator configuration
	if err != nil {
		return fmt.Errorf("failed to read kubeconfig: %w", err)
	}
	return ValidateKubeconfig(data)
}

// ValidateKubeconfig checks raw kubeconfig bytes. See ValidateKubeconfigFile.
func ValidateKubeconfig(data []byte) error {
	var cfg kubeconfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	if len(cfg.Clusters) == 0 {
		return fmt.Errorf("kubeconfig clusters section missing or empty")
	}
	if len(cfg.Contexts) == 0 {
		return fmt.Errorf("kubeconfig contexts section missing or empty")
	}
	if len(cfg.Users) == 0 {
		return fmt.Errorf("kubeconfig users section missing or empty")
	}

	first := cfg.Clusters[0]
	if first.Name == "" {
		return fmt.Errorf("kubeconfig first cluster has no name")
	}
	if first.Cluster.Server == "" {
		return fmt.Errorf("kubeconfig first cluster has no server")
	}

	return nil
}
