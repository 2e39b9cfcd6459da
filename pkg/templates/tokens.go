// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"fmt"
	"strings"
)

// TokenPrefix classifies a template placeholder.
type TokenPrefix string

const (
	// PrefixEnv marks placeholders substituted with resolved plain
	// environment values.
	PrefixEnv TokenPrefix = "env"

	// PrefixSecret marks placeholders left for the cluster to resolve via
	// secret references.
	PrefixSecret TokenPrefix = "secret"

	// PrefixSystem marks placeholders substituted with system-owned
	// context values.
	PrefixSystem TokenPrefix = "system"
)

// System placeholder keys. Only these nine are recognized.
const (
	SystemKeyDeploymentName = "deployment_name"
	SystemKeyServerID       = "server_id"
	SystemKeyServerName     = "server_name"
	SystemKeyNamespace      = "namespace"
	SystemKeyDockerImage    = "docker_image"
	SystemKeySecretName     = "secret_name"
	SystemKeyCommand        = "command"
	SystemKeyArguments      = "arguments"
	SystemKeyServiceAccount = "service_account"
)

var systemKeys = map[string]bool{
	SystemKeyDeploymentName: true,
	SystemKeyServerID:       true,
	SystemKeyServerName:     true,
	SystemKeyNamespace:      true,
	SystemKeyDockerImage:    true,
	SystemKeySecretName:     true,
	SystemKeyCommand:        true,
	SystemKeyArguments:      true,
	SystemKeyServiceAccount: true,
}

// Token is one ${prefix.key} placeholder found in a template.
type Token struct {
	// Prefix is the part before the first dot.
	Prefix TokenPrefix

	// Key is the part after the first dot.
	Key string

	// Raw is the full placeholder text including the ${} delimiters.
	Raw string

	// Start is the byte offset of the placeholder in the scanned text.
	Start int
}

// ScanTokens finds every ${...} placeholder in text and returns them as
// structured tokens in order of appearance. Malformed or unknown
// placeholders are still returned so callers can surface warnings; use
// Token.Validate to classify them.
func ScanTokens(text string) []Token {
	var tokens []Token
	offset := 0
	rest := text
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			break
		}
		end += start

		raw := rest[start : end+1]
		inner := rest[start+2 : end]
		prefix, key, _ := strings.Cut(inner, ".")

		tokens = append(tokens, Token{
			Prefix: TokenPrefix(prefix),
			Key:    key,
			Raw:    raw,
			Start:  offset + start,
		})

		offset += end + 1
		rest = rest[end+1:]
	}
	return tokens
}

// Validate returns a human-readable warning when the token is not a
// well-formed, recognized placeholder, and an empty string otherwise.
// Warnings never fail template validation.
func (t Token) Validate() string {
	if t.Key == "" {
		return fmt.Sprintf("malformed placeholder %s: expected ${prefix.key}", t.Raw)
	}
	switch t.Prefix {
	case PrefixEnv, PrefixSecret:
		return ""
	case PrefixSystem:
		if !systemKeys[t.Key] {
			return fmt.Sprintf("unknown system placeholder key %q in %s", t.Key, t.Raw)
		}
		return ""
	default:
		return fmt.Sprintf("unknown placeholder prefix %q in %s", t.Prefix, t.Raw)
	}
}

// substituteTokens replaces every placeholder for which resolve returns true
// with the returned value, leaving other placeholders untouched.
func substituteTokens(text string, resolve func(Token) (string, bool)) string {
	tokens := ScanTokens(text)
	if len(tokens) == 0 {
		return text
	}

	var sb strings.Builder
	last := 0
	for _, token := range tokens {
		value, ok := resolve(token)
		if !ok {
			continue
		}
		sb.WriteString(text[last:token.Start])
		sb.WriteString(value)
		last = token.Start + len(token.Raw)
	}
	sb.WriteString(text[last:])
	return sb.String()
}
