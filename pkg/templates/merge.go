// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"

	"github.com/stacklok/mcpruntime/pkg/logger"
)

// MergeEnvironment rewrites the environment-derived parts of a stored
// override template after the server's configuration changed: the env
// entries the system manages, the mounted-secrets volume and its mount.
// Everything else in the document, including comments and user-added
// entries, is preserved verbatim. previouslyManagedKeys names the env
// entries earlier merges wrote; entries under those names are replaced or
// dropped, never duplicated. On any parse failure the original text is
// returned unchanged.
func MergeEnvironment(rawTemplate string, ctx *Context, previouslyManagedKeys []string) string {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(rawTemplate), &root); err != nil {
		logger.Warnf("Cannot merge environment into template for %s, keeping it unchanged: %v",
			ctx.ServerName, err)
		return rawTemplate
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return rawTemplate
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return rawTemplate
	}

	podSpec := mappingPath(doc, "spec", "template", "spec")
	if podSpec == nil {
		return rawTemplate
	}
	container := primaryContainerNode(podSpec)
	if container == nil {
		return rawTemplate
	}

	managed := make(map[string]bool, len(previouslyManagedKeys)+len(ctx.EnvVars))
	for _, key := range previouslyManagedKeys {
		managed[key] = true
	}
	for _, env := range ctx.EnvVars {
		managed[env.Name] = true
	}

	mergeEnvSequence(container, ctx, managed)
	mergeMountedSecrets(podSpec, container, ctx)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		logger.Warnf("Cannot re-serialize template for %s, keeping it unchanged: %v",
			ctx.ServerName, err)
		return rawTemplate
	}
	_ = encoder.Close()
	return buf.String()
}

// mergeEnvSequence rebuilds the container's env list: user entries stay as
// their original nodes, managed entries are regenerated from the resolved
// environment, and managed entries no longer resolved disappear.
func mergeEnvSequence(container *yaml.Node, ctx *Context, managed map[string]bool) {
	var kept []*yaml.Node
	if envSeq := mappingValue(container, "env"); envSeq != nil && envSeq.Kind == yaml.SequenceNode {
		for _, entry := range envSeq.Content {
			if name := entryName(entry); !managed[name] {
				kept = append(kept, entry)
			}
		}
	}

	for _, env := range ctx.EnvVars {
		kept = append(kept, envVarNode(env))
	}

	if len(kept) == 0 {
		removeMappingKey(container, "env")
		return
	}
	setMappingValue(container, "env", &yaml.Node{Kind: yaml.SequenceNode, Content: kept})
}

// mergeMountedSecrets replaces or removes the mounted-secrets volume and
// its mount to match the current mounted key set.
func mergeMountedSecrets(podSpec, container *yaml.Node, ctx *Context) {
	if len(ctx.MountedSecretKeys) == 0 || ctx.SecretName == "" {
		removeNamedEntry(podSpec, "volumes", MountedSecretsVolumeName)
		removeNamedEntry(container, "volumeMounts", MountedSecretsVolumeName)
		return
	}

	setNamedEntry(podSpec, "volumes", mountedVolumeNode(ctx.SecretName, ctx.MountedSecretKeys))
	setNamedEntry(container, "volumeMounts", mountNode())
}

// primaryContainerNode returns the container mapping the system writes to:
// the one named ContainerName when present, else the first.
func primaryContainerNode(podSpec *yaml.Node) *yaml.Node {
	containers := mappingValue(podSpec, "containers")
	if containers == nil || containers.Kind != yaml.SequenceNode || len(containers.Content) == 0 {
		return nil
	}
	for _, c := range containers.Content {
		if entryName(c) == ContainerName {
			return c
		}
	}
	return containers.Content[0]
}

// mappingPath walks nested mappings by key, returning nil when any step is
// missing or not a mapping.
func mappingPath(node *yaml.Node, keys ...string) *yaml.Node {
	for _, key := range keys {
		node = mappingValue(node, key)
		if node == nil || node.Kind != yaml.MappingNode {
			return nil
		}
	}
	return node
}

// mappingValue returns the value node for key in a mapping, or nil.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// setMappingValue sets key to value in a mapping, appending the pair when
// the key is absent.
func setMappingValue(node *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			node.Content[i+1] = value
			return
		}
	}
	node.Content = append(node.Content, scalarNode(key), value)
}

// removeMappingKey drops a key/value pair from a mapping.
func removeMappingKey(node *yaml.Node, key string) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			node.Content = append(node.Content[:i], node.Content[i+2:]...)
			return
		}
	}
}

// entryName returns the "name" field of a mapping entry in a sequence.
func entryName(entry *yaml.Node) string {
	if v := mappingValue(entry, "name"); v != nil {
		return v.Value
	}
	return ""
}

// setNamedEntry replaces the entry with a matching "name" in the sequence
// under key, appending when absent. The sequence is created when missing.
func setNamedEntry(node *yaml.Node, key string, entry *yaml.Node) {
	seq := mappingValue(node, key)
	if seq == nil || seq.Kind != yaml.SequenceNode {
		seq = &yaml.Node{Kind: yaml.SequenceNode}
		setMappingValue(node, key, seq)
	}
	name := entryName(entry)
	for i, existing := range seq.Content {
		if entryName(existing) == name {
			seq.Content[i] = entry
			return
		}
	}
	seq.Content = append(seq.Content, entry)
}

// removeNamedEntry drops the entry with the given name from the sequence
// under key; an emptied sequence is removed entirely.
func removeNamedEntry(node *yaml.Node, key, name string) {
	seq := mappingValue(node, key)
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return
	}
	for i, existing := range seq.Content {
		if entryName(existing) == name {
			seq.Content = append(seq.Content[:i], seq.Content[i+1:]...)
			break
		}
	}
	if len(seq.Content) == 0 {
		removeMappingKey(node, key)
	}
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func boolNode(value bool) *yaml.Node {
	s := "false"
	if value {
		s = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: s}
}

func mappingNode(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: pairs}
}

// envVarNode builds the YAML node for one resolved env entry, emitting a
// secretKeyRef block for secret-backed values.
func envVarNode(env corev1.EnvVar) *yaml.Node {
	if env.ValueFrom != nil && env.ValueFrom.SecretKeyRef != nil {
		ref := env.ValueFrom.SecretKeyRef
		return mappingNode(
			scalarNode("name"), scalarNode(env.Name),
			scalarNode("valueFrom"), mappingNode(
				scalarNode("secretKeyRef"), mappingNode(
					scalarNode("name"), scalarNode(ref.Name),
					scalarNode("key"), scalarNode(ref.Key),
				),
			),
		)
	}
	node := mappingNode(
		scalarNode("name"), scalarNode(env.Name),
		scalarNode("value"), scalarNode(env.Value),
	)
	// Force quoting of values YAML would otherwise reinterpret.
	if env.Value == "" || looksAmbiguous(env.Value) {
		node.Content[3].Style = yaml.DoubleQuotedStyle
	}
	return node
}

// looksAmbiguous reports values that would change type when re-parsed as
// bare YAML scalars.
func looksAmbiguous(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no", "null", "~", "on", "off":
		return true
	}
	return strings.IndexAny(value, "0123456789") == 0
}

// mountedVolumeNode builds the mounted-secrets volume node.
func mountedVolumeNode(secretName string, keys []string) *yaml.Node {
	items := &yaml.Node{Kind: yaml.SequenceNode}
	for _, key := range keys {
		items.Content = append(items.Content, mappingNode(
			scalarNode("key"), scalarNode(key),
			scalarNode("path"), scalarNode(key),
		))
	}
	return mappingNode(
		scalarNode("name"), scalarNode(MountedSecretsVolumeName),
		scalarNode("secret"), mappingNode(
			scalarNode("secretName"), scalarNode(secretName),
			scalarNode("items"), items,
		),
	)
}

// mountNode builds the mounted-secrets volume mount node.
func mountNode() *yaml.Node {
	return mappingNode(
		scalarNode("name"), scalarNode(MountedSecretsVolumeName),
		scalarNode("mountPath"), scalarNode(MountedSecretsPath),
		scalarNode("readOnly"), boolNode(true),
	)
}
