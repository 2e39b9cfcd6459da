package labels

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labelValueRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]*[a-z0-9])?$`)

func TestSanitizeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already valid", "github-mcp", "github-mcp"},
		{"uppercase", "GitHub MCP", "github-mcp"},
		{"whitespace runs", "my   server\tname", "my-server-name"},
		{"symbols stripped", "srv@2024!(beta)", "srv2024beta"},
		{"repeated hyphens collapsed", "a---b - c", "a-b-c"},
		{"leading trailing junk", "--hello world!--", "hello-world"},
		{"dots preserved", "v1.2.3", "v1.2.3"},
		{"underscores stripped", "MY_SERVER", "myserver"},
		{"only symbols", "@@@!!", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeValue(tt.input))
		})
	}
}

func TestSanitizeValueProperties(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Simple Name",
		"UPPER_CASE_WITH_UNDERSCORES",
		"unicode ✨ sparkles ✨",
		"  padded  ",
		"trailing.dot.",
		".leading.dot",
		"this is a very long server name that will certainly exceed the sixty three character limit imposed on label values",
		"mixed!@#$%^&*()chars",
	}

	for _, input := range inputs {
		got := SanitizeValue(input)
		require.LessOrEqual(t, len(got), 63, "input %q", input)
		if got != "" {
			assert.Regexp(t, labelValueRegex, got, "input %q", input)
		}
	}
}

func TestStandardLabels(t *testing.T) {
	t.Parallel()

	got := StandardLabels("abc-123", "My Server")
	assert.Equal(t, map[string]string{
		LabelApp:        LabelAppValue,
		LabelServerID:   "abc-123",
		LabelServerName: "my-server",
	}, got)
}

func TestSelectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "app=mcp-server,mcp-server-id=abc", SelectorForServer("abc"))
	assert.Equal(t, "app=mcp-server", AppSelector())
}
