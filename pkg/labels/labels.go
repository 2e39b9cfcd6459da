// Package labels provides utilities for managing the Kubernetes labels
// applied to MCP server workloads.
package labels

import (
	"fmt"
	"strings"
)

const (
	// LabelApp is the label key shared by all managed workloads.
	LabelApp = "app"

	// LabelAppValue is the value of the LabelApp label.
	LabelAppValue = "mcp-server"

	// LabelServerID is the label that contains the logical server id.
	LabelServerID = "mcp-server-id"

	// LabelServerName is the label that contains the server name.
	LabelServerName = "mcp-server-name"

	// maxLabelValueLength is the Kubernetes limit for label values.
	maxLabelValueLength = 63
)

// StandardLabels returns the label set applied to every managed workload,
// at both the selector and the pod template level.
func StandardLabels(serverID, serverName string) map[string]string {
	return map[string]string{
		LabelApp:        LabelAppValue,
		LabelServerID:   SanitizeValue(serverID),
		LabelServerName: SanitizeValue(serverName),
	}
}

// SelectorForServer formats a label selector matching the workload of a
// single server.
func SelectorForServer(serverID string) string {
	return fmt.Sprintf("%s=%s,%s=%s", LabelApp, LabelAppValue, LabelServerID, SanitizeValue(serverID))
}

// AppSelector formats a label selector matching all managed workloads.
func AppSelector() string {
	return fmt.Sprintf("%s=%s", LabelApp, LabelAppValue)
}

// SanitizeValue converts an arbitrary string into a valid Kubernetes label
// value: lowercase alphanumerics, '-' and '.', starting and ending with an
// alphanumeric, at most 63 characters. Whitespace becomes hyphens, other
// invalid characters are stripped, and repeated hyphens are collapsed.
func SanitizeValue(value string) string {
	value = strings.ToLower(value)

	var sb strings.Builder
	lastHyphen := false
	for _, c := range value {
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '.':
			sb.WriteRune(c)
			lastHyphen = false
		case c == '-' || c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if !lastHyphen {
				sb.WriteRune('-')
				lastHyphen = true
			}
		default:
			// Strip everything else.
		}
	}

	sanitized := strings.Trim(sb.String(), "-.")
	if len(sanitized) > maxLabelValueLength {
		sanitized = strings.Trim(sanitized[:maxLabelValueLength], "-.")
	}
	return sanitized
}
