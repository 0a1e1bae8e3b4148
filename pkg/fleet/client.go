package fleet

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpfleet/mcpfleet/pkg/observability"
	"github.com/mcpfleet/mcpfleet/pkg/resilience"
)

// ServerStatus is the observable snapshot of one managed server, shaped for
// the admin control surface.
type ServerStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Transport    TransportKind `json:"transport"`
	CircuitState string        `json:"circuit_state"`
	Connected    bool          `json:"connected"`
	LastError    string        `json:"last_error,omitempty"`
	ToolCount    int           `json:"tool_count"`
	LastHealthy  time.Time     `json:"last_healthy"`
}

// ManagedClient pairs one server definition with its exclusively-owned
// connection, circuit breaker, and cached tool list. Instances are created by
// the Registry and keep their identity across reconciles as long as the
// definition is unchanged.
type ManagedClient struct {
	def         ServerDefinition
	dialer      Dialer
	breaker     *resilience.Breaker
	retry       resilience.Retryer
	callTimeout time.Duration
	cacheTTL    time.Duration
	logger      *slog.Logger

	mu           sync.Mutex
	conn         Connection
	lastErr      error
	lastHealthy  time.Time
	tools        []*mcp.Tool
	toolsFetched time.Time
}

// ID returns the server identifier.
func (c *ManagedClient) ID() string { return c.def.ID }

// Definition returns the immutable definition this client was opened with.
func (c *ManagedClient) Definition() ServerDefinition { return c.def }

// CircuitState returns the breaker's current state.
func (c *ManagedClient) CircuitState() resilience.State { return c.breaker.State() }

// LastError returns the most recent call or dial failure, nil after a
// success.
func (c *ManagedClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Status returns the admin-facing snapshot for this server.
func (c *ManagedClient) Status() ServerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := ServerStatus{
		ID:           c.def.ID,
		Name:         c.def.DisplayName(),
		Transport:    c.def.Transport,
		CircuitState: c.breaker.State().String(),
		Connected:    c.conn != nil,
		ToolCount:    len(c.tools),
		LastHealthy:  c.lastHealthy,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// dial opens the connection, replacing any previous one. A failure leaves the
// client in an observable error state without evicting it.
func (c *ManagedClient) dial(ctx context.Context) error {
	conn, err := c.dialer(ctx, c.def)
	if err != nil {
		var cerr *ConnectionError
		if !errors.As(err, &cerr) {
			err = &ConnectionError{ServerID: c.def.ID, Err: err}
		}
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		observability.ConnectsTotal.WithLabelValues(c.def.ID, "error").Inc()
		return err
	}
	c.mu.Lock()
	prev := c.conn
	c.conn = conn
	c.lastErr = nil
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	observability.ConnectsTotal.WithLabelValues(c.def.ID, "ok").Inc()
	c.logger.Info("server connected", "server", c.def.ID, "transport", c.def.Transport)
	return nil
}

// close tears down the connection and drops the cached tool list.
func (c *ManagedClient) close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.tools = nil
	c.toolsFetched = time.Time{}
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	observability.DisconnectsTotal.WithLabelValues(c.def.ID).Inc()
	c.logger.Info("server disconnected", "server", c.def.ID)
	return conn.Close()
}

func (c *ManagedClient) connection() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Tools lists the server's tools, serving the cached copy while it is fresh.
// The call is gated by the breaker and retried on transient failures.
func (c *ManagedClient) Tools(ctx context.Context) ([]*mcp.Tool, error) {
	c.mu.Lock()
	if c.tools != nil && c.cacheTTL > 0 && time.Since(c.toolsFetched) < c.cacheTTL {
		cached := append([]*mcp.Tool(nil), c.tools...)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var tools []*mcp.Tool
	err := c.do(ctx, func(ctx context.Context, conn Connection) error {
		listed, err := conn.ListTools(ctx)
		if err != nil {
			return err
		}
		tools = listed
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tools = append([]*mcp.Tool(nil), tools...)
	c.toolsFetched = time.Now()
	c.mu.Unlock()
	return tools, nil
}

// CallTool invokes a tool through the breaker and retry executor. Argument
// rejections surface as *ValidationError and are never retried.
func (c *ManagedClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	var res *mcp.CallToolResult
	err := c.do(ctx, func(ctx context.Context, conn Connection) error {
		called, err := conn.CallTool(ctx, name, args)
		if err != nil {
			if isInvalidParams(err) {
				return &ValidationError{Tool: name, Err: err}
			}
			return err
		}
		res = called
		return nil
	})
	if err != nil {
		observability.ToolInvocationsTotal.WithLabelValues(c.def.ID, "error").Inc()
		return nil, err
	}
	observability.ToolInvocationsTotal.WithLabelValues(c.def.ID, "ok").Inc()
	return res, nil
}

// HealthCheck probes the server once, sharing the breaker's failure
// accounting with live traffic. A client in an error state is redialed first.
func (c *ManagedClient) HealthCheck(ctx context.Context) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	conn := c.connection()
	if conn == nil {
		if err := c.dial(ctx); err != nil {
			c.recordFailure(err)
			return err
		}
		conn = c.connection()
	}
	start := time.Now()
	err := conn.HealthCheck(ctx)
	observability.HealthProbeDuration.WithLabelValues(c.def.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		c.recordFailure(err)
		return err
	}
	c.breaker.RecordSuccess()
	c.mu.Lock()
	c.lastHealthy = time.Now()
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// do gates one wrapped call behind the breaker, applies the per-call timeout,
// and executes it with retries. The whole wrapped call counts as at most one
// breaker failure; cancellations and validation errors count as none.
func (c *ManagedClient) do(ctx context.Context, op func(context.Context, Connection) error) error {
	if err := c.breaker.Allow(); err != nil {
		return err
	}
	conn := c.connection()
	if conn == nil {
		err := &ConnectionError{ServerID: c.def.ID, Err: errNotConnected}
		c.recordFailure(err)
		return err
	}
	timeout := c.callTimeout
	if c.def.Timeout > 0 {
		timeout = c.def.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return op(ctx, conn)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Aborted by the caller; not a server fault.
			c.breaker.Release()
			return err
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			c.breaker.Release()
			return err
		}
		c.recordFailure(err)
		return err
	}
	c.breaker.RecordSuccess()
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

func (c *ManagedClient) recordFailure(err error) {
	c.breaker.RecordFailure()
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func isInvalidParams(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "invalid params") ||
		strings.Contains(lower, "invalid arguments") ||
		strings.Contains(lower, "-32602")
}
