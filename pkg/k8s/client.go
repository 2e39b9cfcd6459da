// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package k8s provides the Kubernetes client bootstrap used by the runtime.
package k8s

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// GetConfig builds a rest.Config, trying sources in priority order:
// in-cluster credentials first, then an explicitly configured kubeconfig
// file (validated structurally before use), then the ambient default
// loading rules.
func GetConfig(kubeconfigPath string) (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	if kubeconfigPath != "" {
		if err := ValidateKubeconfigFile(kubeconfigPath); err != nil {
			return nil, fmt.Errorf("invalid kubeconfig %s: %w", kubeconfigPath, err)
		}
		config, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", kubeconfigPath, err)
		}
		return config, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load default kubernetes config: %w", err)
	}
	return config, nil
}

// NewClient creates a standard Kubernetes clientset using GetConfig.
func NewClient(kubeconfigPath string) (kubernetes.Interface, *rest.Config, error) {
	config, err := GetConfig(kubeconfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return clientset, config, nil
}

// InCluster reports whether the process is running inside a Kubernetes
// cluster with service-account credentials available.
func InCluster() bool {
	_, err := rest.InClusterConfig()
	return err == nil
}
