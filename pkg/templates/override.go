// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"dario.cat/mergo"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/stacklok/mcpruntime/pkg/logger"
)

// transform is one step of the override-merge pipeline. Each step takes and
// returns the same typed document so the "protected fields always win"
// invariant stays auditable as a sequence of small, testable functions.
type transform func(*appsv1.Deployment, *Context)

// overridePipeline is the ordered list of transformations applied to a
// parsed override template. Apart from the protected fields, every step
// uses set-if-absent semantics so user customization survives.
var overridePipeline = []transform{
	applyProtectedFields,
	applyNodeScheduling,
	applyEnvironment,
	applyMountedSecrets,
	applyCommandAndArgs,
	applyTransportFields,
}

// RenderFromOverride resolves placeholders in a user-authored template,
// parses it, and re-applies the system-owned configuration. It returns nil
// when the resolved text is not a parseable document; callers then fall
// back to RenderFromConfig. hasSecretValue reports whether a secret key has
// a resolved value; env entries referencing keys without one are dropped.
func RenderFromOverride(
	rawTemplate string,
	ctx *Context,
	plainValues map[string]string,
	hasSecretValue func(key string) bool,
) *appsv1.Deployment {
	resolved := substituteTokens(rawTemplate, func(token Token) (string, bool) {
		switch token.Prefix {
		case PrefixSystem:
			// Unknown system keys resolve to the empty string.
			return ctx.systemValue(token.Key), true
		case PrefixEnv:
			return plainValues[token.Key], true
		default:
			// ${secret.*} placeholders and unknown prefixes are left for
			// the cluster (or validation warnings) to deal with.
			return "", false
		}
	})

	deployment := &appsv1.Deployment{}
	if err := yaml.Unmarshal([]byte(resolved), deployment); err != nil {
		logger.Warnf("Override template for %s does not parse, falling back to config rendering: %v",
			ctx.ServerName, err)
		return nil
	}

	for _, step := range overridePipeline {
		step(deployment, ctx)
	}
	filterDanglingSecretRefs(deployment, hasSecretValue)

	return deployment
}

// applyProtectedFields force-overwrites the fields users may not change:
// the workload name and namespace, the label sets (system labels win on
// conflict) and the selector (replaced entirely so it always matches the
// managed pods).
func applyProtectedFields(d *appsv1.Deployment, ctx *Context) {
	systemLabels := ctx.standardLabels()

	d.TypeMeta = metav1.TypeMeta{APIVersion: ExpectedAPIVersion, Kind: ExpectedKind}
	d.Name = ctx.DeploymentName
	d.Namespace = ctx.Namespace
	d.Labels = mergeLabels(d.Labels, systemLabels)
	d.Spec.Selector = &metav1.LabelSelector{MatchLabels: systemLabels}
	d.Spec.Template.Labels = mergeLabels(d.Spec.Template.Labels, systemLabels)

	if d.Spec.Replicas == nil {
		r := replicas
		d.Spec.Replicas = &r
	}
	if d.Spec.Template.Spec.TerminationGracePeriodSeconds == nil {
		g := terminationGracePeriodSeconds
		d.Spec.Template.Spec.TerminationGracePeriodSeconds = &g
	}
}

// mergeLabels merges system labels into user labels, with system labels
// taking precedence on key conflicts.
func mergeLabels(user, system map[string]string) map[string]string {
	merged := make(map[string]string, len(user)+len(system))
	for k, v := range user {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, system, mergo.WithOverride); err != nil {
		// Merge of two flat string maps cannot fail; fall back to the
		// system set if it somehow does.
		return system
	}
	return merged
}

// applyNodeScheduling merges the inherited node selector (user keys win)
// and sets the affinity when the template declares none.
func applyNodeScheduling(d *appsv1.Deployment, ctx *Context) {
	podSpec := &d.Spec.Template.Spec

	if len(ctx.NodeSelector) > 0 {
		if podSpec.NodeSelector == nil {
			podSpec.NodeSelector = make(map[string]string, len(ctx.NodeSelector))
		}
		if err := mergo.Merge(&podSpec.NodeSelector, ctx.NodeSelector); err != nil {
			logger.Warnf("Failed to merge node selector for %s: %v", ctx.ServerName, err)
		}
	}

	if podSpec.Affinity == nil && ctx.Affinity != nil {
		podSpec.Affinity = ctx.Affinity.DeepCopy()
	}
}

// applyEnvironment appends resolved env entries the template does not
// already name. Existing entries are user customization and stay untouched.
func applyEnvironment(d *appsv1.Deployment, ctx *Context) {
	container := primaryContainer(d, ctx)
	if container == nil {
		return
	}

	existing := make(map[string]bool, len(container.Env))
	for _, env := range container.Env {
		existing[env.Name] = true
	}

	for _, env := range ctx.EnvVars {
		if !existing[env.Name] {
			container.Env = append(container.Env, env)
		}
	}

	if container.Image == "" {
		container.Image = ctx.DockerImage
	}
}

// applyMountedSecrets installs the mounted-secrets volume and mount,
// replacing any same-named entries the template declared.
func applyMountedSecrets(d *appsv1.Deployment, ctx *Context) {
	volumes, mounts := mountedSecretVolumes(ctx.SecretName, ctx.MountedSecretKeys)
	if len(volumes) == 0 {
		return
	}

	podSpec := &d.Spec.Template.Spec
	podSpec.Volumes = replaceVolume(podSpec.Volumes, volumes[0])

	container := primaryContainer(d, ctx)
	if container == nil {
		return
	}
	container.VolumeMounts = replaceVolumeMount(container.VolumeMounts, mounts[0])
}

// applyCommandAndArgs sets the command and args when the template leaves
// them empty.
func applyCommandAndArgs(d *appsv1.Deployment, ctx *Context) {
	container := primaryContainer(d, ctx)
	if container == nil {
		return
	}

	if len(container.Command) == 0 && ctx.Command != "" {
		container.Command = []string{ctx.Command}
	}
	if len(container.Args) == 0 && len(ctx.Args) > 0 {
		container.Args = ctx.Args
	}
}

// applyTransportFields adds the HTTP port declaration or the stdio
// stdin/tty settings when the template omits them.
func applyTransportFields(d *appsv1.Deployment, ctx *Context) {
	container := primaryContainer(d, ctx)
	if container == nil {
		return
	}

	if ctx.Transport.Type.IsHTTP() {
		if len(container.Ports) == 0 {
			container.Ports = []corev1.ContainerPort{{
				ContainerPort: int32(ctx.Transport.EffectivePort()), //nolint:gosec // G115: ports are validated well below int32 range
				Protocol:      corev1.ProtocolTCP,
			}}
		}
		return
	}

	if !container.Stdin {
		container.Stdin = true
	}
	container.TTY = false
}

// filterDanglingSecretRefs drops env entries referencing secret keys that
// resolved no value, so pods never fail to start over a nonexistent key.
func filterDanglingSecretRefs(d *appsv1.Deployment, hasSecretValue func(string) bool) {
	if hasSecretValue == nil {
		return
	}

	for i := range d.Spec.Template.Spec.Containers {
		container := &d.Spec.Template.Spec.Containers[i]
		kept := container.Env[:0]
		for _, env := range container.Env {
			if env.ValueFrom != nil && env.ValueFrom.SecretKeyRef != nil &&
				!hasSecretValue(env.ValueFrom.SecretKeyRef.Key) {
				continue
			}
			kept = append(kept, env)
		}
		container.Env = kept
	}
}

// primaryContainer returns the container the system configuration applies
// to: the one named ContainerName if present, else the first container. A
// template with no containers gets a fully configured one appended.
func primaryContainer(d *appsv1.Deployment, ctx *Context) *corev1.Container {
	containers := d.Spec.Template.Spec.Containers
	for i := range containers {
		if containers[i].Name == ContainerName {
			return &containers[i]
		}
	}
	if len(containers) > 0 {
		return &containers[0]
	}

	d.Spec.Template.Spec.Containers = append(d.Spec.Template.Spec.Containers, buildContainer(ctx))
	return &d.Spec.Template.Spec.Containers[0]
}

// replaceVolume swaps in volume, replacing a same-named prior entry.
func replaceVolume(volumes []corev1.Volume, volume corev1.Volume) []corev1.Volume {
	for i := range volumes {
		if volumes[i].Name == volume.Name {
			volumes[i] = volume
			return volumes
		}
	}
	return append(volumes, volume)
}

// replaceVolumeMount swaps in mount, replacing a same-named prior entry.
func replaceVolumeMount(mounts []corev1.VolumeMount, mount corev1.VolumeMount) []corev1.VolumeMount {
	for i := range mounts {
		if mounts[i].Name == mount.Name {
			mounts[i] = mount
			return mounts
		}
	}
	return append(mounts, mount)
}
