// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	"github.com/stacklok/mcpruntime/pkg/labels"
)

const overrideTemplate = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: my-custom-name
  namespace: wrong-namespace
  labels:
    app: user-app
    team: platform
spec:
  replicas: 3
  template:
    spec:
      containers:
        - name: mcp
          image: ${system.docker_image}
          env:
            - name: CUSTOM_FLAG
              value: "on"
          resources:
            limits:
              memory: 1Gi
`

func allowAllSecrets(string) bool { return true }

func TestRenderFromOverrideProtectedFields(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	deployment := RenderFromOverride(overrideTemplate, ctx, nil, allowAllSecrets)
	require.NotNil(t, deployment)

	assert.Equal(t, "mcp-server-github", deployment.Name)
	assert.Equal(t, "mcp-servers", deployment.Namespace)

	wantLabels := labels.StandardLabels("srv-123", "github")
	assert.Equal(t, wantLabels, deployment.Spec.Selector.MatchLabels)
	for k, v := range wantLabels {
		assert.Equal(t, v, deployment.Labels[k])
		assert.Equal(t, v, deployment.Spec.Template.Labels[k])
	}
	// User labels without a system conflict survive.
	assert.Equal(t, "platform", deployment.Labels["team"])
	// The system value wins the "app" conflict.
	assert.Equal(t, labels.LabelAppValue, deployment.Labels["app"])
}

func TestRenderFromOverridePreservesUserCustomization(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	deployment := RenderFromOverride(overrideTemplate, ctx, nil, allowAllSecrets)
	require.NotNil(t, deployment)

	require.NotNil(t, deployment.Spec.Replicas)
	assert.Equal(t, int32(3), *deployment.Spec.Replicas)

	container := deployment.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "ghcr.io/example/github-mcp:1.0", container.Image)
	assert.Equal(t, "1Gi", container.Resources.Limits.Memory().String())

	// The user's env entry stays, the resolved ones are appended.
	custom := envByName(container.Env, "CUSTOM_FLAG")
	require.NotNil(t, custom)
	assert.Equal(t, "on", custom.Value)
	assert.NotNil(t, envByName(container.Env, "REGION"))
	assert.NotNil(t, envByName(container.Env, "API_TOKEN"))
}

func TestRenderFromOverrideUserEnvWins(t *testing.T) {
	t.Parallel()

	template := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: x
spec:
  template:
    spec:
      containers:
        - name: mcp
          image: img
          env:
            - name: REGION
              value: user-pinned
`
	deployment := RenderFromOverride(template, testContext(), nil, allowAllSecrets)
	require.NotNil(t, deployment)

	entry := envByName(deployment.Spec.Template.Spec.Containers[0].Env, "REGION")
	require.NotNil(t, entry)
	assert.Equal(t, "user-pinned", entry.Value)
}

func TestRenderFromOverrideUnparseableReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, RenderFromOverride("a: {{{", testContext(), nil, allowAllSecrets))
}

func TestRenderFromOverrideNoContainers(t *testing.T) {
	t.Parallel()

	template := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: x
spec:
  replicas: 2
`
	deployment := RenderFromOverride(template, testContext(), nil, allowAllSecrets)
	require.NotNil(t, deployment)

	require.Len(t, deployment.Spec.Template.Spec.Containers, 1)
	container := deployment.Spec.Template.Spec.Containers[0]
	assert.Equal(t, ContainerName, container.Name)
	assert.Equal(t, "ghcr.io/example/github-mcp:1.0", container.Image)
	assert.Equal(t, []string{"node"}, container.Command)
	assert.Equal(t, ptr.To(int32(2)), deployment.Spec.Replicas)
}

func TestRenderFromOverrideDropsDanglingSecretRefs(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	hasValue := func(key string) bool { return key == "API_TOKEN" }

	template := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: x
spec:
  template:
    spec:
      containers:
        - name: mcp
          image: img
          env:
            - name: MISSING_SECRET
              valueFrom:
                secretKeyRef:
                  name: mcp-server-github-secrets
                  key: NO_SUCH_KEY
`
	deployment := RenderFromOverride(template, ctx, nil, hasValue)
	require.NotNil(t, deployment)

	env := deployment.Spec.Template.Spec.Containers[0].Env
	assert.Nil(t, envByName(env, "MISSING_SECRET"))
	assert.NotNil(t, envByName(env, "API_TOKEN"))
	assert.NotNil(t, envByName(env, "REGION"))
}

func TestRenderFromOverridePlaceholderSubstitution(t *testing.T) {
	t.Parallel()

	template := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: ${system.deployment_name}
spec:
  template:
    spec:
      containers:
        - name: mcp
          image: ${system.docker_image}
          env:
            - name: REGION
              value: ${env.REGION}
            - name: UNKNOWN
              value: ${system.not_a_key}
`
	deployment := RenderFromOverride(template, testContext(),
		map[string]string{"REGION": "eu-west-1"}, allowAllSecrets)
	require.NotNil(t, deployment)

	container := deployment.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "ghcr.io/example/github-mcp:1.0", container.Image)
	assert.Equal(t, "eu-west-1", envByName(container.Env, "REGION").Value)
	assert.Equal(t, "", envByName(container.Env, "UNKNOWN").Value)
}

func TestRenderFromOverrideNodeScheduling(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	ctx.NodeSelector = map[string]string{"kubernetes.io/arch": "arm64", "pool": "inherited"}

	template := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: x
spec:
  template:
    spec:
      nodeSelector:
        pool: user-choice
      containers:
        - name: mcp
          image: img
`
	deployment := RenderFromOverride(template, ctx, nil, allowAllSecrets)
	require.NotNil(t, deployment)

	selector := deployment.Spec.Template.Spec.NodeSelector
	assert.Equal(t, "user-choice", selector["pool"])
	assert.Equal(t, "arm64", selector["kubernetes.io/arch"])
}

func envByName(envVars []corev1.EnvVar, name string) *corev1.EnvVar {
	for i := range envVars {
		if envVars[i].Name == name {
			return &envVars[i]
		}
	}
	return nil
}
