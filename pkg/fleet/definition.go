package fleet

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TransportKind selects how a server's connection is established.
type TransportKind string

const (
	// TransportStdio launches the server as a child process and speaks the
	// protocol over its standard streams.
	TransportStdio TransportKind = "stdio"
	// TransportSSE connects to a persistent server-push event stream.
	TransportSSE TransportKind = "sse"
	// TransportStreamableHTTP uses the streamable HTTP request/response
	// transport.
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerDefinition declares one MCP server. Definitions are immutable values;
// a changed definition is applied by closing the old connection and opening a
// new one during Reconcile.
type ServerDefinition struct {
	// ID uniquely identifies the server and prefixes its tool names. It must
	// not contain whitespace or the catalog namespace separator "__".
	ID string `json:"id" yaml:"id"`
	// Name is an optional human-readable display name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Transport TransportKind `json:"transport" yaml:"transport"`

	// Stdio transport parameters.
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty"`

	// Network transport parameters.
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout bounds each call to this server. Zero falls back to the
	// registry default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Validate reports a ConfigError when the definition is malformed.
func (d ServerDefinition) Validate() error {
	if d.ID == "" {
		return &ConfigError{Reason: "missing server id"}
	}
	if strings.ContainsAny(d.ID, " \t\n") || strings.Contains(d.ID, "__") {
		return &ConfigError{ServerID: d.ID, Reason: "server id must not contain whitespace or \"__\""}
	}
	switch d.Transport {
	case TransportStdio:
		if d.Command == "" {
			return &ConfigError{ServerID: d.ID, Reason: "stdio transport requires a command"}
		}
	case TransportSSE, TransportStreamableHTTP:
		if d.URL == "" {
			return &ConfigError{ServerID: d.ID, Reason: fmt.Sprintf("%s transport requires a url", d.Transport)}
		}
	default:
		return &ConfigError{ServerID: d.ID, Reason: fmt.Sprintf("unsupported transport %q", d.Transport)}
	}
	return nil
}

// DisplayName returns Name when set, falling back to the ID.
func (d ServerDefinition) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Equal reports whether two definitions are identical, including transport
// parameters. Reconcile leaves servers with equal definitions untouched.
func (d ServerDefinition) Equal(other ServerDefinition) bool {
	return reflect.DeepEqual(d, other)
}
