// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package templates renders the Kubernetes Deployment specification for an
// MCP server, either from structured catalog configuration or by merging a
// user-supplied override template, and keeps system-owned fields intact in
// both paths.
package templates

import (
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/yaml"

	"github.com/stacklok/mcpruntime/pkg/labels"
	"github.com/stacklok/mcpruntime/pkg/transport"
)

const (
	// ExpectedAPIVersion is the apiVersion every rendered document carries.
	ExpectedAPIVersion = "apps/v1"

	// ExpectedKind is the kind every rendered document carries.
	ExpectedKind = "Deployment"

	// ContainerName is the name of the MCP container in the pod template.
	ContainerName = "mcp"

	// MountedSecretsVolumeName is the volume exposing file-mounted secrets.
	MountedSecretsVolumeName = "mcp-mounted-secrets"

	// MountedSecretsPath is where file-mounted secrets appear in the
	// container.
	MountedSecretsPath = "/etc/mcp/secrets"

	// replicas is fixed: this runtime manages exactly one workload per
	// logical server.
	replicas = int32(1)

	// terminationGracePeriodSeconds is shortened from the platform default
	// of 30 so stop and restart feel immediate.
	terminationGracePeriodSeconds = int64(5)

	// defaultCPURequest is the fixed CPU request of the MCP container.
	defaultCPURequest = "100m"

	// defaultMemoryRequest is the fixed memory request of the MCP container.
	defaultMemoryRequest = "256Mi"
)

// Context carries everything the renderer needs to produce a deployment
// document for one server.
type Context struct {
	DeploymentName string
	ServerID       string
	ServerName     string
	Namespace      string
	DockerImage    string
	SecretName     string
	Command        string
	Args           []string
	ServiceAccount string
	Transport      transport.Config

	// EnvVars is the resolved container environment (literal values and
	// secret references) produced by the environment resolver.
	EnvVars []corev1.EnvVar

	// MountedSecretKeys lists secret keys exposed as files.
	MountedSecretKeys []string

	// NodeSelector and Affinity are inherited from the controlling
	// process's own pod so servers schedule alongside it.
	NodeSelector map[string]string
	Affinity     *corev1.Affinity
}

// systemValue resolves one ${system.KEY} placeholder against the context.
// Unknown keys resolve to the empty string.
func (c *Context) systemValue(key string) string {
	switch key {
	case SystemKeyDeploymentName:
		return c.DeploymentName
	case SystemKeyServerID:
		return c.ServerID
	case SystemKeyServerName:
		return c.ServerName
	case SystemKeyNamespace:
		return c.Namespace
	case SystemKeyDockerImage:
		return c.DockerImage
	case SystemKeySecretName:
		return c.SecretName
	case SystemKeyCommand:
		return c.Command
	case SystemKeyArguments:
		return strings.Join(c.Args, " ")
	case SystemKeyServiceAccount:
		return c.ServiceAccount
	default:
		return ""
	}
}

// standardLabels returns the system label set for the context's server.
func (c *Context) standardLabels() map[string]string {
	return labels.StandardLabels(c.ServerID, c.ServerName)
}

// buildContainer constructs the MCP container from structured
// configuration.
func buildContainer(ctx *Context) corev1.Container {
	container := corev1.Container{
		Name:  ContainerName,
		Image: ctx.DockerImage,
		Env:   ctx.EnvVars,
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(defaultCPURequest),
				corev1.ResourceMemory: resource.MustParse(defaultMemoryRequest),
			},
		},
	}

	if ctx.Command != "" {
		container.Command = []string{ctx.Command}
	}
	if len(ctx.Args) > 0 {
		container.Args = ctx.Args
	}

	if ctx.Transport.Type.IsHTTP() {
		container.Ports = []corev1.ContainerPort{{
			ContainerPort: int32(ctx.Transport.EffectivePort()), //nolint:gosec // G115: ports are validated well below int32 range
			Protocol:      corev1.ProtocolTCP,
		}}
	} else {
		container.Stdin = true
		container.TTY = false
	}

	return container
}

// RenderFromConfig produces the deployment document from structured
// configuration alone. This path is used when the catalog item carries no
// override template. The output always passes Validate.
func RenderFromConfig(ctx *Context) *appsv1.Deployment {
	container := buildContainer(ctx)

	volumes, mounts := mountedSecretVolumes(ctx.SecretName, ctx.MountedSecretKeys)
	container.VolumeMounts = mounts

	systemLabels := ctx.standardLabels()

	deployment := &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{
			APIVersion: ExpectedAPIVersion,
			Kind:       ExpectedKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      ctx.DeploymentName,
			Namespace: ctx.Namespace,
			Labels:    systemLabels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{MatchLabels: systemLabels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: systemLabels},
				Spec: corev1.PodSpec{
					TerminationGracePeriodSeconds: ptr.To(terminationGracePeriodSeconds),
					ServiceAccountName:            ctx.ServiceAccount,
					NodeSelector:                  ctx.NodeSelector,
					Affinity:                      ctx.Affinity,
					Containers:                    []corev1.Container{container},
					Volumes:                       volumes,
				},
			},
		},
	}

	return deployment
}

// RenderYAML serializes a deployment document to YAML.
func RenderYAML(deployment *appsv1.Deployment) (string, error) {
	data, err := yaml.Marshal(deployment)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// mountedSecretVolumes builds the volume and mount exposing file-mounted
// secret keys, one projected path per key. Returns nothing when no keys are
// mounted.
func mountedSecretVolumes(secretName string, keys []string) ([]corev1.Volume, []corev1.VolumeMount) {
	if len(keys) == 0 || secretName == "" {
		return nil, nil
	}

	items := make([]corev1.KeyToPath, 0, len(keys))
	for _, key := range keys {
		items = append(items, corev1.KeyToPath{Key: key, Path: key})
	}

	volume := corev1.Volume{
		Name: MountedSecretsVolumeName,
		VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{
				SecretName: secretName,
				Items:      items,
			},
		},
	}

	mount := corev1.VolumeMount{
		Name:      MountedSecretsVolumeName,
		MountPath: MountedSecretsPath,
		ReadOnly:  true,
	}

	return []corev1.Volume{volume}, []corev1.VolumeMount{mount}
}
