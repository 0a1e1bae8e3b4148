// Package fleet supervises a set of Model Context Protocol (MCP) servers from
// a single Go process. It layers connection lifecycle tracking, per-server
// circuit breaking, bounded retries, and periodic health probing on top of the
// modelcontextprotocol/go-sdk client so callers can consume tools without
// rebuilding the MCP plumbing.
//
// # Core entry points
//
//   - Registry is the long-lived orchestration type. Construct it with
//     NewRegistry, then Register individual definitions or Reconcile a full
//     configuration snapshot against the live set.
//   - ServerDefinition declares how each MCP server is launched (stdio) or
//     contacted (SSE, streamable HTTP). Definitions are immutable values and
//     are replaced wholesale on reload.
//   - Monitor probes every managed server on a fixed interval, sharing the
//     breaker's failure accounting with live traffic and redialing servers
//     stuck in an error state.
//
// A failed open never evicts a server: the entry stays registered in an
// observable error state and is retried on the next reconcile or health
// probe. One wedged server fails fast behind its breaker and never blocks
// the others.
package fleet
