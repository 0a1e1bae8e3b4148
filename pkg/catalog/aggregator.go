package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpfleet/mcpfleet/pkg/abort"
	"github.com/mcpfleet/mcpfleet/pkg/fleet"
	"github.com/mcpfleet/mcpfleet/pkg/resilience"
)

// ErrToolNotFound is returned by Invoke for an unknown namespaced name,
// whether the server prefix or the local tool name is the unknown part.
var ErrToolNotFound = errors.New("catalog: tool not found")

// ErrUnknownServer is returned by ServerTools for an unregistered server id.
var ErrUnknownServer = errors.New("catalog: unknown server")

// ToolDescriptor is one catalog entry. Tool carries the namespaced clone of
// the upstream descriptor; the externally visible name is always
// serverID + separator + native name, so identically-named tools on
// different servers never collide.
type ToolDescriptor struct {
	Tool       *mcp.Tool
	ServerID   string
	NativeName string
}

// Options configure an Aggregator.
type Options struct {
	// Namespace customizes how upstream names are exposed. Defaults to
	// ServerPrefixNamespace.
	Namespace Namespace
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Namespace == nil {
		opts.Namespace = ServerPrefixNamespace{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Aggregator merges tools across every managed server and routes namespaced
// invocations. It holds no server state of its own; the fleet registry owns
// connections and the abort registry owns execution handles.
type Aggregator struct {
	registry *fleet.Registry
	aborts   *abort.Registry
	ns       Namespace
	logger   *slog.Logger
}

// NewAggregator builds an Aggregator over registry, registering every
// invocation with aborts for cancellation.
func NewAggregator(registry *fleet.Registry, aborts *abort.Registry, opts *Options) *Aggregator {
	options := opts.withDefaults()
	return &Aggregator{
		registry: registry,
		aborts:   aborts,
		ns:       options.Namespace,
		logger:   options.Logger,
	}
}

// Tools returns the namespaced catalog across every server whose breaker is
// not open. A server returning zero tools, a malformed descriptor, or an
// error is skipped for this pass; its failure never hides the other servers'
// tools.
func (a *Aggregator) Tools(ctx context.Context) []ToolDescriptor {
	var out []ToolDescriptor
	for _, client := range a.registry.All() {
		if client.CircuitState() == resilience.Open {
			continue
		}
		descs, err := a.serverTools(ctx, client)
		if err != nil {
			a.logger.Warn("skipping server for this catalog pass",
				"server", client.ID(), "error", err)
			continue
		}
		out = append(out, descs...)
	}
	return out
}

// ServerTools returns the namespaced tools of a single server.
func (a *Aggregator) ServerTools(ctx context.Context, serverID string) ([]ToolDescriptor, error) {
	client, ok := a.registry.Get(serverID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownServer, serverID)
	}
	return a.serverTools(ctx, client)
}

func (a *Aggregator) serverTools(ctx context.Context, client *fleet.ManagedClient) ([]ToolDescriptor, error) {
	tools, err := client.Tools(ctx)
	if err != nil {
		return nil, err
	}
	descs := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if tool == nil || tool.Name == "" {
			return nil, fmt.Errorf("malformed tool descriptor from %q", client.ID())
		}
		clone := *tool
		clone.Name = a.ns.ToolName(client.ID(), tool.Name)
		descs = append(descs, ToolDescriptor{
			Tool:       &clone,
			ServerID:   client.ID(),
			NativeName: tool.Name,
		})
	}
	return descs, nil
}

// Invoke splits the namespaced name, resolves the owning server, and
// dispatches the call through the breaker and retry executor. The execution
// is registered with the abort registry for the duration of the call; once
// aborted, any later resolution of the underlying call is discarded and the
// caller observes ErrAborted.
func (a *Aggregator) Invoke(ctx context.Context, namespacedName string, args map[string]any) (*mcp.CallToolResult, error) {
	serverID, localName, ok := a.ns.Split(namespacedName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, namespacedName)
	}
	client, found := a.registry.Get(serverID)
	if !found {
		return nil, fmt.Errorf("%w: unknown server %q", ErrToolNotFound, serverID)
	}
	tools, err := client.Tools(ctx)
	if err != nil {
		return nil, err
	}
	if !hasTool(tools, localName) {
		return nil, fmt.Errorf("%w: server %q has no tool %q", ErrToolNotFound, serverID, localName)
	}

	callID := uuid.NewString()
	callCtx, release := a.aborts.Register(ctx, callID, serverID)
	defer release()

	res, err := client.CallTool(callCtx, localName, args)
	if callCtx.Err() != nil && ctx.Err() == nil {
		// Abort always wins over a late resolution.
		return nil, fmt.Errorf("%w: call %s", abort.ErrAborted, callID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func hasTool(tools []*mcp.Tool, name string) bool {
	for _, tool := range tools {
		if tool != nil && tool.Name == name {
			return true
		}
	}
	return false
}
