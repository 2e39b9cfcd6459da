// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanTokens(t *testing.T) {
	t.Parallel()

	text := "image: ${system.docker_image}\nenv: ${env.REGION} and ${secret.API_KEY}"
	tokens := ScanTokens(text)

	require.Len(t, tokens, 3)
	assert.Equal(t, PrefixSystem, tokens[0].Prefix)
	assert.Equal(t, "docker_image", tokens[0].Key)
	assert.Equal(t, "${system.docker_image}", tokens[0].Raw)
	assert.Equal(t, PrefixEnv, tokens[1].Prefix)
	assert.Equal(t, "REGION", tokens[1].Key)
	assert.Equal(t, PrefixSecret, tokens[2].Prefix)
	assert.Equal(t, "API_KEY", tokens[2].Key)
}

func TestScanTokensNone(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ScanTokens("plain text without placeholders"))
	assert.Empty(t, ScanTokens("unterminated ${system.name"))
}

func TestTokenValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		text        string
		wantWarning bool
	}{
		{"known system key", "${system.namespace}", false},
		{"env placeholder", "${env.ANYTHING}", false},
		{"secret placeholder", "${secret.ANYTHING}", false},
		{"unknown system key", "${system.cluster_name}", true},
		{"unknown prefix", "${vault.KEY}", true},
		{"missing key", "${system}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tokens := ScanTokens(tt.text)
			require.Len(t, tokens, 1)
			warning := tokens[0].Validate()
			if tt.wantWarning {
				assert.NotEmpty(t, warning)
			} else {
				assert.Empty(t, warning)
			}
		})
	}
}

func TestSubstituteTokens(t *testing.T) {
	t.Parallel()

	out := substituteTokens("a=${env.A} b=${secret.B} c=${env.C}", func(token Token) (string, bool) {
		if token.Prefix == PrefixEnv {
			return "[" + token.Key + "]", true
		}
		return "", false
	})

	assert.Equal(t, "a=[A] b=${secret.B} c=[C]", out)
}
