package fleet

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcpfleet/mcpfleet/pkg/observability"
	"github.com/mcpfleet/mcpfleet/pkg/resilience"
)

// Options configure a Registry instance.
type Options struct {
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Dialer opens connections. Defaults to SDKDialer with the client
	// identity below.
	Dialer Dialer
	// ClientName and ClientVersion identify this process to MCP servers
	// during the handshake.
	ClientName    string
	ClientVersion string
	// DefaultCallTimeout bounds calls against servers whose definition does
	// not carry its own timeout.
	DefaultCallTimeout time.Duration
	// FailureThreshold and ResetTimeout tune each server's circuit breaker.
	FailureThreshold int
	ResetTimeout     time.Duration
	// MaxRetries, RetryBaseDelay, and RetryMaxDelay tune the retry executor
	// wrapped around every call.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// ToolCacheTTL is the freshness window for each server's cached tool
	// list.
	ToolCacheTTL time.Duration
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcpfleet"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.Dialer == nil {
		opts.Dialer = SDKDialer(opts.ClientName, opts.ClientVersion)
	}
	if opts.DefaultCallTimeout <= 0 {
		opts.DefaultCallTimeout = 30 * time.Second
	}
	if opts.ToolCacheTTL <= 0 {
		opts.ToolCacheTTL = time.Minute
	}
	return opts
}

// Registry owns one ManagedClient per configured server. It is constructed
// explicitly and passed by reference to dependents; there is no package-level
// state.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*ManagedClient
}

// NewRegistry constructs an empty Registry. Callers provide nil options to
// fall back to defaults.
func NewRegistry(opts *Options) *Registry {
	options := opts.withDefaults()
	return &Registry{
		opts:    options,
		logger:  options.Logger,
		clients: make(map[string]*ManagedClient),
	}
}

func (r *Registry) newClient(def ServerDefinition) *ManagedClient {
	serverID := def.ID
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: r.opts.FailureThreshold,
		ResetTimeout:     r.opts.ResetTimeout,
		OnTransition: func(from, to resilience.State) {
			observability.CircuitTransitionsTotal.WithLabelValues(serverID, to.String()).Inc()
			r.logger.Warn("circuit transition",
				"server", serverID, "from", from.String(), "to", to.String())
		},
	})
	return &ManagedClient{
		def:     def,
		dialer:  r.opts.Dialer,
		breaker: breaker,
		retry: resilience.Retryer{
			MaxRetries: r.opts.MaxRetries,
			BaseDelay:  r.opts.RetryBaseDelay,
			MaxDelay:   r.opts.RetryMaxDelay,
		},
		callTimeout: r.opts.DefaultCallTimeout,
		cacheTTL:    r.opts.ToolCacheTTL,
		logger:      r.logger,
	}
}

// Register validates def, adds a ManagedClient for it, and opens the
// connection. A malformed or duplicate definition is rejected atomically with
// a *ConfigError and the registry is left unchanged. A failed open returns a
// *ConnectionError but keeps the client registered in an error state, to be
// retried on the next reconcile or health probe.
func (r *Registry) Register(ctx context.Context, def ServerDefinition) (*ManagedClient, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	client := r.newClient(def)
	r.mu.Lock()
	if _, exists := r.clients[def.ID]; exists {
		r.mu.Unlock()
		return nil, &ConfigError{ServerID: def.ID, Reason: "duplicate server id"}
	}
	r.clients[def.ID] = client
	r.mu.Unlock()

	if err := client.dial(ctx); err != nil {
		r.logger.Warn("server open failed, kept in error state", "server", def.ID, "error", err)
		return client, err
	}
	return client, nil
}

// Get returns the ManagedClient for id.
func (r *Registry) Get(id string) (*ManagedClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[id]
	return client, ok
}

// All returns a point-in-time snapshot of every managed client, sorted by
// server id. It may race benignly with concurrent register and remove calls.
func (r *Registry) All() []*ManagedClient {
	r.mu.RLock()
	clients := make([]*ManagedClient, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.RUnlock()
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID() < clients[j].ID() })
	return clients
}

// Statuses returns admin-facing snapshots for every managed server.
func (r *Registry) Statuses() []ServerStatus {
	clients := r.All()
	statuses := make([]ServerStatus, 0, len(clients))
	for _, client := range clients {
		statuses = append(statuses, client.Status())
	}
	return statuses
}

// Remove closes the server's connection and evicts it from the registry.
// Removing an unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	client, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return client.close()
}

// Reconcile diffs defs against the live set: servers absent from defs or
// disabled are closed and removed, newly-added enabled definitions are
// opened, and servers whose definition is unchanged keep their ManagedClient
// identity. Open failures are collected and returned joined; they never
// abort the rest of the reconciliation.
func (r *Registry) Reconcile(ctx context.Context, defs []ServerDefinition) error {
	desired := make(map[string]ServerDefinition, len(defs))
	for _, def := range defs {
		if def.Enabled {
			desired[def.ID] = def
		}
	}

	var errs []error
	for _, client := range r.All() {
		if _, keep := desired[client.ID()]; keep {
			continue
		}
		if err := r.Remove(ctx, client.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		existing, ok := r.Get(def.ID)
		if ok && existing.Definition().Equal(def) {
			continue
		}
		if ok {
			// Definition changed: replaced wholesale.
			if err := r.Remove(ctx, def.ID); err != nil {
				errs = append(errs, err)
			}
		}
		if _, err := r.Register(ctx, def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TestDefinition dials a candidate definition without persisting it, returning
// the number of tools the server reports. The connection is closed before
// returning.
func (r *Registry) TestDefinition(ctx context.Context, def ServerDefinition) (int, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	conn, err := r.opts.Dialer(ctx, def)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	tools, err := conn.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	return len(tools), nil
}

// Close tears down every managed connection. The registry remains usable but
// empty afterwards.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, client := range r.All() {
		if err := r.Remove(ctx, client.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
