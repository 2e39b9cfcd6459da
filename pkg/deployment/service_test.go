// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/stacklok/mcpruntime/pkg/transport"
)

func newHTTPController(t *testing.T, inCluster bool, objects ...runtime.Object) (*Controller, *fake.Clientset) {
	t.Helper()
	clientset := fake.NewSimpleClientset(objects...)
	controller := NewController(
		clientset, testNamespace, testServerID, testServerName,
		transport.Config{Type: transport.TypeStreamableHTTP, Port: 9090, Path: "/mcp"},
		inCluster,
		WithPolling(3, time.Millisecond),
	)
	return controller, clientset
}

func TestEnsureServiceInCluster(t *testing.T) {
	t.Parallel()

	controller, _ := newHTTPController(t, true)
	service, err := controller.ensureService(context.Background())
	require.NoError(t, err)

	assert.Equal(t, corev1.ServiceTypeClusterIP, service.Spec.Type)
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, int32(9090), service.Spec.Ports[0].Port)
	assert.Equal(t, "mcp-server", service.Spec.Selector["app"])

	// Second call returns the existing object without another create.
	again, err := controller.ensureService(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.Name, again.Name)
}

func TestEnsureServiceOutOfClusterNodePort(t *testing.T) {
	t.Parallel()

	controller, _ := newHTTPController(t, false)
	controller.transport.NodePort = 30090

	service, err := controller.ensureService(context.Background())
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeNodePort, service.Spec.Type)
	assert.Equal(t, int32(30090), service.Spec.Ports[0].NodePort)
}

func TestEnsureServiceConcurrentCreate(t *testing.T) {
	t.Parallel()

	existing := &corev1.Service{}
	controller, clientset := newHTTPController(t, true)
	*existing = *controller.buildService()

	missed := false
	clientset.PrependReactor("get", "services", func(clienttesting.Action) (bool, runtime.Object, error) {
		if !missed {
			missed = true
			return true, nil, apiNotFound()
		}
		return true, existing, nil
	})
	clientset.PrependReactor("create", "services", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apiAlreadyExists()
	})

	service, err := controller.ensureService(context.Background())
	require.NoError(t, err)
	assert.Equal(t, existing.Name, service.Name)
}

func TestEndpointInCluster(t *testing.T) {
	t.Parallel()

	controller, _ := newHTTPController(t, true)
	endpoint, err := controller.Endpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://mcp-server-github.mcp-servers.svc.cluster.local:9090/mcp", endpoint)
}

func TestEndpointOutOfClusterReadsNodePortBack(t *testing.T) {
	t.Parallel()

	controller, clientset := newHTTPController(t, false)

	// The fake API does not allocate node ports, so simulate the cluster
	// assigning one on create.
	clientset.PrependReactor("create", "services", func(action clienttesting.Action) (bool, runtime.Object, error) {
		service := action.(clienttesting.CreateAction).GetObject().(*corev1.Service)
		service = service.DeepCopy()
		service.Spec.Ports[0].NodePort = 31234
		return true, service, nil
	})

	endpoint, err := controller.Endpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:31234/mcp", endpoint)
	assert.Equal(t, 31234, controller.Status().Port)
}

func TestDeleteServiceIdempotent(t *testing.T) {
	t.Parallel()

	controller, _ := newHTTPController(t, true)
	assert.NoError(t, controller.DeleteService(context.Background()))
}

func TestRunningPodEndpoint(t *testing.T) {
	t.Parallel()

	controller, _ := newHTTPController(t, true, runningPod("mcp-server-github-abc"))
	endpoint, err := controller.RunningPodEndpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.7:9090/mcp", endpoint.URL)
	assert.Equal(t, "mcp-server-github-abc", endpoint.PodName)
}

func TestRunningPodEndpointNoPod(t *testing.T) {
	t.Parallel()

	controller, _ := newHTTPController(t, true)
	_, err := controller.RunningPodEndpoint(context.Background())
	assert.Error(t, err)
}

func TestRunningPodEndpointRejectsStdio(t *testing.T) {
	t.Parallel()

	controller, _ := newTestController(t, runningPod("mcp-server-github-abc"))
	_, err := controller.RunningPodEndpoint(context.Background())
	assert.Error(t, err)
}
