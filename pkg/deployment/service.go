// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/stacklok/mcpruntime/pkg/labels"
	"github.com/stacklok/mcpruntime/pkg/logger"
)

// PodEndpoint is an HTTP endpoint pinned to one pod, used to preserve
// session affinity across control plane replicas.
type PodEndpoint struct {
	URL     string `json:"url"`
	PodName string `json:"pod_name"`
}

// ensureExposure creates the network-exposure service for HTTP transports.
// Non-HTTP transports need no exposure.
func (c *Controller) ensureExposure(ctx context.Context) error {
	if !c.transport.Type.IsHTTP() {
		return nil
	}
	_, err := c.ensureService(ctx)
	return err
}

// ensureService creates the service if it does not exist, tolerating a
// concurrent create by a peer replica. In-cluster deployments get a
// ClusterIP service reachable via DNS; out-of-cluster ones get a NodePort
// service so the control plane can reach the workload from outside.
func (c *Controller) ensureService(ctx context.Context) (*corev1.Service, error) {
	services := c.clientset.CoreV1().Services(c.namespace)

	existing, err := services.Get(ctx, ServiceName(c.name), metav1.GetOptions{})
	if err == nil {
		return existing, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up service %s: %w", ServiceName(c.name), err)
	}

	created, err := services.Create(ctx, c.buildService(), metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return services.Get(ctx, ServiceName(c.name), metav1.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create service %s: %w", ServiceName(c.name), err)
	}
	logger.Infof("Created service %s for deployment %s", created.Name, c.name)
	return created, nil
}

// buildService constructs the service object for the workload.
func (c *Controller) buildService() *corev1.Service {
	port := c.transport.EffectivePort()

	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ServiceName(c.name),
			Namespace: c.namespace,
			Labels:    labels.StandardLabels(c.serverID, c.serverName),
		},
		Spec: corev1.ServiceSpec{
			Selector: labels.StandardLabels(c.serverID, c.serverName),
			Type:     corev1.ServiceTypeClusterIP,
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       int32(port), //nolint:gosec // G115: ports are validated well below int32 range
				TargetPort: intstr.FromInt(port),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}

	if !c.inCluster {
		service.Spec.Type = corev1.ServiceTypeNodePort
		if c.transport.NodePort > 0 {
			service.Spec.Ports[0].NodePort = int32(c.transport.NodePort) //nolint:gosec // G115: ports are validated well below int32 range
		}
	}

	return service
}

// DeleteService removes the network-exposure service, tolerating absence.
func (c *Controller) DeleteService(ctx context.Context) error {
	err := c.clientset.CoreV1().Services(c.namespace).Delete(ctx, ServiceName(c.name), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete service %s: %w", ServiceName(c.name), err)
	}
	return nil
}

// resolveEndpoint computes the HTTP endpoint of the workload. In cluster
// the service DNS name is used; outside, the node port is read back from
// the service object.
func (c *Controller) resolveEndpoint(ctx context.Context) (string, int, error) {
	if !c.transport.Type.IsHTTP() {
		return "", 0, nil
	}

	service, err := c.ensureService(ctx)
	if err != nil {
		return "", 0, err
	}

	if c.inCluster {
		port := c.transport.EffectivePort()
		url := fmt.Sprintf("http://%s.%s.svc.cluster.local:%d%s",
			service.Name, c.namespace, port, c.transport.Path)
		return url, port, nil
	}

	if len(service.Spec.Ports) == 0 || service.Spec.Ports[0].NodePort == 0 {
		return "", 0, fmt.Errorf("service %s has no node port assigned yet", service.Name)
	}
	nodePort := int(service.Spec.Ports[0].NodePort)
	url := fmt.Sprintf("http://%s:%d%s", c.nodeHost, nodePort, c.transport.Path)
	return url, nodePort, nil
}

// Endpoint returns the resolved HTTP endpoint, resolving it on demand when
// the cached value is empty.
func (c *Controller) Endpoint(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.endpoint
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	endpoint, port, err := c.resolveEndpoint(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.endpoint = endpoint
	c.port = port
	c.mu.Unlock()
	return endpoint, nil
}

// RunningPodEndpoint returns an endpoint addressing one running pod
// directly by IP, plus the pod name, so callers can keep HTTP sessions
// pinned to a single pod.
func (c *Controller) RunningPodEndpoint(ctx context.Context) (*PodEndpoint, error) {
	if !c.transport.Type.IsHTTP() {
		return nil, fmt.Errorf("server %s does not use an HTTP transport", c.serverName)
	}

	pod, err := c.runningPod(ctx)
	if err != nil {
		return nil, err
	}
	if pod == nil || pod.Status.PodIP == "" {
		return nil, fmt.Errorf("no running pod with an assigned IP for %s", c.name)
	}

	return &PodEndpoint{
		URL:     fmt.Sprintf("http://%s:%d%s", pod.Status.PodIP, c.transport.EffectivePort(), c.transport.Path),
		PodName: pod.Name,
	}, nil
}
