// Package catalog merges the tools exposed by every managed MCP server into
// one namespaced catalog and dispatches namespaced invocations back to the
// owning server through the fleet's resilience stack. One bad server is
// skipped for a pass, never hiding the others' tools.
package catalog
