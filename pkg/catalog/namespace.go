package catalog

import "strings"

// Namespace generates the externally visible identifiers for upstream tools.
// Implementations must be deterministic and collision-free for a given
// serverID/name pair, and Split must invert ToolName.
type Namespace interface {
	ToolName(serverID, toolName string) string
	Split(namespaced string) (serverID, toolName string, ok bool)
}

// ServerPrefixNamespace prefixes every tool name with the originating server
// ID, separating the fields with a configurable delimiter (defaults to "__"
// to stay within the MCP spec's character guidance). Server IDs must not
// contain the separator; fleet.ServerDefinition.Validate enforces this for
// the default.
type ServerPrefixNamespace struct {
	Separator string
}

func (s ServerPrefixNamespace) separator() string {
	if s.Separator == "" {
		return "__"
	}
	return s.Separator
}

func (s ServerPrefixNamespace) ToolName(serverID, toolName string) string {
	return serverID + s.separator() + toolName
}

func (s ServerPrefixNamespace) Split(namespaced string) (string, string, bool) {
	serverID, toolName, ok := strings.Cut(namespaced, s.separator())
	if !ok || serverID == "" || toolName == "" {
		return "", "", false
	}
	return serverID, toolName, true
}
