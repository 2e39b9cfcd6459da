package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"stdio", TypeStdio, false},
		{"STDIO", TypeStdio, false},
		{"", TypeStdio, false},
		{"streamable-http", TypeStreamableHTTP, false},
		{"STREAMABLE-HTTP", TypeStreamableHTTP, false},
		{"sse", "", true},
		{"carrier-pigeon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectivePort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3000, Config{Type: TypeStreamableHTTP, Port: 3000}.EffectivePort())
	assert.Equal(t, DefaultHTTPPort, Config{Type: TypeStreamableHTTP}.EffectivePort())
	assert.Equal(t, 0, Config{Type: TypeStdio}.EffectivePort())
	assert.True(t, TypeStreamableHTTP.IsHTTP())
	assert.False(t, TypeStdio.IsHTTP())
}
