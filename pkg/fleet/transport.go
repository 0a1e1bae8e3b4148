package fleet

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Connection is one live transport-agnostic link to an MCP server. All three
// transport kinds honor the same contract so upstream code never branches on
// transport.
type Connection interface {
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Dialer opens a Connection for a definition. The registry's dialer is
// injectable so tests can substitute fakes.
type Dialer func(ctx context.Context, def ServerDefinition) (Connection, error)

// SDKDialer returns the production Dialer, establishing client sessions over
// the modelcontextprotocol/go-sdk transports. The stdio transport spawns and
// owns the child process; closing the session terminates it. Network
// transports own and close their underlying stream.
func SDKDialer(clientName, clientVersion string) Dialer {
	impl := &mcp.Implementation{Name: clientName, Version: clientVersion}
	return func(ctx context.Context, def ServerDefinition) (Connection, error) {
		transport, err := buildTransport(def)
		if err != nil {
			return nil, err
		}
		client := mcp.NewClient(impl, &mcp.ClientOptions{})
		session, err := client.Connect(ctx, transport, nil)
		if err != nil {
			return nil, &ConnectionError{ServerID: def.ID, Err: err}
		}
		return &sessionConn{session: session}, nil
	}
}

func buildTransport(def ServerDefinition) (mcp.Transport, error) {
	switch def.Transport {
	case TransportStdio:
		cmd := exec.Command(def.Command, def.Args...)
		cmd.Dir = def.Dir
		if len(def.Env) > 0 {
			env := os.Environ()
			for k, v := range def.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: def.URL, HTTPClient: httpClientFor(def)}, nil
	case TransportStreamableHTTP:
		return &mcp.StreamableClientTransport{Endpoint: def.URL, HTTPClient: httpClientFor(def)}, nil
	default:
		return nil, &ConfigError{ServerID: def.ID, Reason: fmt.Sprintf("unsupported transport %q", def.Transport)}
	}
}

func httpClientFor(def ServerDefinition) *http.Client {
	if len(def.Headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerRoundTripper{next: http.DefaultTransport, headers: def.Headers},
	}
}

// headerRoundTripper decorates every outbound request with the definition's
// static headers.
type headerRoundTripper struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.next.RoundTrip(req)
}

// sessionConn adapts an SDK client session to the Connection contract.
type sessionConn struct {
	session *mcp.ClientSession
}

func (c *sessionConn) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Tools, nil
}

func (c *sessionConn) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

func (c *sessionConn) HealthCheck(ctx context.Context) error {
	return c.session.Ping(ctx, nil)
}

func (c *sessionConn) Close() error {
	return c.session.Close()
}
