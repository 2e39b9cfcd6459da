// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package environment resolves the layered environment configuration of an
// MCP server — catalog definitions, caller-supplied values and vault
// secrets — into the container environment, the managed secret data and the
// set of file-mounted secrets.
package environment

import (
	"net/url"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/stacklok/mcpruntime/pkg/catalog"
)

// userConfigPrefix is the placeholder prefix recognized inside static
// catalog values, e.g. "${user_config.REGION}".
const userConfigPrefix = "user_config."

// Input carries the layered sources fed into Resolve.
type Input struct {
	// Definitions are the catalog environment variable definitions.
	Definitions []catalog.EnvironmentVariableDefinition

	// Overrides are caller-supplied values, keyed by definition key. They
	// answer promptOnInstallation definitions and feed ${user_config.*}
	// interpolation.
	Overrides map[string]string

	// ConfigValues is the secondary interpolation source consulted when a
	// ${user_config.KEY} placeholder has no override.
	ConfigValues map[string]string

	// SecretBundle is the flat map fetched from the vault for the server,
	// consulted when a secret definition resolves no other value.
	SecretBundle map[string]string

	// SecretName is the name of the managed secret object that
	// secret-reference env entries point at.
	SecretName string

	// InCluster disables the localhost-to-host-bridge URL rewrite applied
	// during local development.
	InCluster bool

	// HostBridgeHost is the hostname replacing localhost in HTTP(S) URLs
	// when running out of cluster.
	HostBridgeHost string
}

// Resolution is the output of Resolve, feeding template rendering and
// managed secret creation.
type Resolution struct {
	// SecretData holds the key/value pairs destined for the managed secret
	// object. Only non-blank values appear here.
	SecretData map[string]string

	// EnvVars is the container environment: literal values for plain
	// variables and secret references for secret-backed ones.
	EnvVars []corev1.EnvVar

	// MountedSecretKeys lists secret keys exposed as files via volumes
	// instead of environment variables.
	MountedSecretKeys []string

	// PlainValues maps keys to their resolved literal values and is used
	// to substitute ${env.KEY} placeholders in override templates.
	PlainValues map[string]string
}

// HasSecretValue reports whether the resolution produced a value for the
// given secret key. Used by the renderer to filter dangling secret
// references out of override templates.
func (r *Resolution) HasSecretValue(key string) bool {
	_, ok := r.SecretData[key]
	return ok
}

// Resolve merges the layered sources into the final container environment.
// Secret definitions without any resolvable value are dropped silently: no
// env entry, no mount, no secret data.
func Resolve(in Input) *Resolution {
	res := &Resolution{
		SecretData:  make(map[string]string),
		PlainValues: make(map[string]string),
	}

	secretTracked := make(map[string]bool)
	mountTracked := make(map[string]bool)
	defined := make(map[string]bool)
	values := make(map[string]string)
	var order []string

	for _, def := range in.Definitions {
		if def.Key == "" {
			continue
		}
		defined[def.Key] = true

		if def.IsSecret() {
			secretTracked[def.Key] = true
			if def.Mounted {
				mountTracked[def.Key] = true
			}
		}

		value := resolveRawValue(def, in)
		if value == "" && def.IsSecret() {
			value = in.SecretBundle[def.Key]
		}

		// Secret variables are kept even without a value so that secret
		// reference wiring still happens; they are skipped at emission
		// time when the value is still blank.
		if value != "" || def.IsSecret() {
			if _, seen := values[def.Key]; !seen {
				order = append(order, def.Key)
			}
			values[def.Key] = value
		}
	}

	// Caller-supplied values with no catalog definition are injected under
	// normalized names. This covers servers configured without a catalog
	// item.
	overrideKeys := make([]string, 0, len(in.Overrides))
	for key := range in.Overrides {
		overrideKeys = append(overrideKeys, key)
	}
	sort.Strings(overrideKeys)
	for _, key := range overrideKeys {
		value := in.Overrides[key]
		if defined[key] || value == "" {
			continue
		}
		normalized := NormalizeKey(key)
		if _, seen := values[normalized]; seen {
			continue
		}
		order = append(order, normalized)
		values[normalized] = value
	}

	for _, key := range order {
		value := values[key]
		switch {
		case mountTracked[key]:
			if value == "" {
				continue
			}
			res.SecretData[key] = value
			res.MountedSecretKeys = append(res.MountedSecretKeys, key)
		case secretTracked[key]:
			// Never emit a reference to an empty secret key.
			if value == "" {
				continue
			}
			res.SecretData[key] = value
			res.EnvVars = append(res.EnvVars, corev1.EnvVar{
				Name: key,
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: in.SecretName},
						Key:                  key,
					},
				},
			})
		default:
			literal := stripMatchingQuotes(value)
			if !in.InCluster && in.HostBridgeHost != "" {
				literal = rewriteLoopbackURL(literal, in.HostBridgeHost)
			}
			res.PlainValues[key] = literal
			res.EnvVars = append(res.EnvVars, corev1.EnvVar{Name: key, Value: literal})
		}
	}

	return res
}

// resolveRawValue determines the pre-normalization value of one definition.
func resolveRawValue(def catalog.EnvironmentVariableDefinition, in Input) string {
	if def.PromptOnInstallation {
		return in.Overrides[def.Key]
	}
	return interpolateUserConfig(def.Value, in.Overrides, in.ConfigValues)
}

// interpolateUserConfig substitutes ${user_config.KEY} placeholders from the
// override map first, then the config value map. Unresolved placeholders
// pass through literally.
func interpolateUserConfig(value string, overrides, configValues map[string]string) string {
	if !strings.Contains(value, "${") {
		return value
	}

	var sb strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start

		sb.WriteString(rest[:start])
		token := rest[start+2 : end]
		if key, ok := strings.CutPrefix(token, userConfigPrefix); ok {
			if v, found := overrides[key]; found && v != "" {
				sb.WriteString(v)
			} else if v, found := configValues[key]; found && v != "" {
				sb.WriteString(v)
			} else {
				sb.WriteString(rest[start : end+1])
			}
		} else {
			sb.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	return sb.String()
}

// NormalizeKey converts an arbitrary config key into environment variable
// form: uppercase with non-alphanumerics collapsed to underscores.
func NormalizeKey(key string) string {
	var sb strings.Builder
	lastUnderscore := false
	for _, c := range strings.ToUpper(key) {
		if c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			sb.WriteRune(c)
			lastUnderscore = false
		} else if !lastUnderscore {
			sb.WriteRune('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(sb.String(), "_")
}

// stripMatchingQuotes removes one layer of surrounding matching single or
// double quotes, if present.
func stripMatchingQuotes(value string) string {
	if len(value) > 1 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '\'' || first == '"') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// rewriteLoopbackURL replaces a loopback host in an HTTP(S) URL with the
// host-bridge hostname so containers can reach services on the developer's
// machine. Non-URL values are returned unchanged.
func rewriteLoopbackURL(value, hostBridge string) string {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return value
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		return value
	}

	if port := parsed.Port(); port != "" {
		parsed.Host = hostBridge + ":" + port
	} else {
		parsed.Host = hostBridge
	}
	return parsed.String()
}
