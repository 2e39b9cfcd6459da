// Package transport defines the protocols a running MCP server can speak and
// how they map onto container and service configuration.
package transport

import (
	"fmt"
)

// Type represents the transport protocol spoken by an MCP server.
type Type string

const (
	// TypeStdio represents the stdio (process-pipe) transport.
	TypeStdio Type = "stdio"

	// TypeStreamableHTTP represents the streamable HTTP transport.
	TypeStreamableHTTP Type = "streamable-http"
)

// String returns the string representation of the transport type.
func (t Type) String() string {
	return string(t)
}

// IsHTTP reports whether the transport requires a network endpoint.
func (t Type) IsHTTP() bool {
	return t == TypeStreamableHTTP
}

// ParseType parses a string into a transport type. An empty string defaults
// to stdio, matching how catalog items omit the field.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "stdio", "STDIO":
		return TypeStdio, nil
	case "streamable-http", "STREAMABLE-HTTP":
		return TypeStreamableHTTP, nil
	default:
		return "", fmt.Errorf("unsupported transport type: %s", s)
	}
}

// Config describes the network requirements of a server's transport.
type Config struct {
	// Type is the transport protocol.
	Type Type

	// Port is the container port for HTTP transports.
	Port int

	// Path is the HTTP path of the MCP endpoint, e.g. "/mcp".
	Path string

	// NodePort optionally pins the NodePort used when exposing the server
	// outside the cluster. Zero lets the cluster allocate one.
	NodePort int
}

// DefaultHTTPPort is used when a catalog item declares an HTTP transport
// without an explicit port.
const DefaultHTTPPort = 8080

// EffectivePort returns the container port, falling back to the default for
// HTTP transports.
func (c Config) EffectivePort() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.Type.IsHTTP() {
		return DefaultHTTPPort
	}
	return 0
}
