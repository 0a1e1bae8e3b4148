package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpfleet/mcpfleet/pkg/abort"
	"github.com/mcpfleet/mcpfleet/pkg/catalog"
	"github.com/mcpfleet/mcpfleet/pkg/fleet"
)

type stubConn struct {
	tools []*mcp.Tool
}

func (c *stubConn) ListTools(context.Context) ([]*mcp.Tool, error) { return c.tools, nil }
func (c *stubConn) CallTool(context.Context, string, map[string]any) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (c *stubConn) HealthCheck(context.Context) error { return nil }
func (c *stubConn) Close() error                      { return nil }

type stubSource struct {
	defs []fleet.ServerDefinition
	err  error
}

func (s stubSource) Definitions(context.Context) ([]fleet.ServerDefinition, error) {
	return s.defs, s.err
}

type stubInvalidator struct {
	calls int
	err   error
}

func (s *stubInvalidator) Invalidate(context.Context) error {
	s.calls++
	return s.err
}

func testServer(t *testing.T, source stubSource, invalidator CacheInvalidator) (*Server, *fleet.Registry, *abort.Registry) {
	t.Helper()
	registry := fleet.NewRegistry(&fleet.Options{
		Dialer: func(_ context.Context, def fleet.ServerDefinition) (fleet.Connection, error) {
			return &stubConn{tools: []*mcp.Tool{{Name: "read"}}}, nil
		},
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		MaxRetries:       1,
		RetryBaseDelay:   time.Millisecond,
	})
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	aborts := abort.NewRegistry(nil)
	aggregator := catalog.NewAggregator(registry, aborts, nil)
	server := NewServer(registry, aggregator, aborts, source, invalidator, nil)
	return server, registry, aborts
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListServersEndpoint(t *testing.T) {
	t.Parallel()

	server, registry, _ := testServer(t, stubSource{}, nil)
	def := fleet.ServerDefinition{ID: "files", Transport: fleet.TransportStdio, Command: "mcp-files", Enabled: true}
	if _, err := registry.Register(context.Background(), def); err != nil {
		t.Fatalf("Register() = %v", err)
	}

	rec := doRequest(t, server.Handler(), http.MethodGet, "/v1/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	var resp struct {
		Servers []fleet.ServerStatus `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Servers) != 1 || resp.Servers[0].ID != "files" {
		t.Fatalf("servers = %+v, expected the registered server", resp.Servers)
	}
	if !resp.Servers[0].Connected {
		t.Fatalf("server status not connected")
	}
}

func TestReconcileEndpointAppliesSource(t *testing.T) {
	t.Parallel()

	source := stubSource{defs: []fleet.ServerDefinition{
		{ID: "files", Transport: fleet.TransportStdio, Command: "mcp-files", Enabled: true},
	}}
	server, registry, _ := testServer(t, source, nil)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/v1/servers/reconcile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	if _, ok := registry.Get("files"); !ok {
		t.Fatalf("reconcile did not register the source's server")
	}
}

func TestReconcileEndpointSourceFailure(t *testing.T) {
	t.Parallel()

	server, _, _ := testServer(t, stubSource{err: errors.New("file unreadable")}, nil)
	rec := doRequest(t, server.Handler(), http.MethodPost, "/v1/servers/reconcile", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, expected 502 for a source failure", rec.Code)
	}
}

func TestTestServerEndpoint(t *testing.T) {
	t.Parallel()

	server, registry, _ := testServer(t, stubSource{}, nil)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/v1/servers/test",
		`{"id":"candidate","transport":"stdio","command":"mcp-candidate"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK        bool `json:"ok"`
		ToolCount int  `json:"tool_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.OK || resp.ToolCount != 1 {
		t.Fatalf("response = %+v, expected ok with one tool", resp)
	}
	if len(registry.All()) != 0 {
		t.Fatalf("test endpoint persisted the candidate")
	}
}

func TestTestServerEndpointRejectsMalformedDefinition(t *testing.T) {
	t.Parallel()

	server, _, _ := testServer(t, stubSource{}, nil)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/v1/servers/test", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for malformed JSON, expected 400", rec.Code)
	}

	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/servers/test",
		`{"id":"bad id","transport":"stdio","command":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for invalid definition, expected 400", rec.Code)
	}
}

func TestToolEndpoints(t *testing.T) {
	t.Parallel()

	server, registry, _ := testServer(t, stubSource{}, nil)
	def := fleet.ServerDefinition{ID: "files", Transport: fleet.TransportStdio, Command: "mcp-files", Enabled: true}
	if _, err := registry.Register(context.Background(), def); err != nil {
		t.Fatalf("Register() = %v", err)
	}

	rec := doRequest(t, server.Handler(), http.MethodGet, "/v1/tools", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("tools status = %d, expected 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "files__read") {
		t.Fatalf("tool listing missing namespaced name: %s", rec.Body.String())
	}

	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/tools/files__read/invoke",
		`{"arguments":{"path":"/tmp"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("invoke status = %d, expected 200, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/tools/files__missing/invoke", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("invoke unknown tool status = %d, expected 404", rec.Code)
	}
}

func TestAbortEndpoints(t *testing.T) {
	t.Parallel()

	server, _, aborts := testServer(t, stubSource{}, nil)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/v1/executions/ghost/abort", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("abort unknown execution status = %d, expected 404", rec.Code)
	}

	_, release := aborts.Register(context.Background(), "call-1", "files")
	defer release()
	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/executions/call-1/abort", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("abort live execution status = %d, expected 200", rec.Code)
	}

	_, release2 := aborts.Register(context.Background(), "call-2", "files")
	defer release2()
	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/servers/files/abort", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("server abort status = %d, expected 200", rec.Code)
	}
	var resp struct {
		Aborted int `json:"aborted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Aborted != 1 {
		t.Fatalf("aborted = %d, expected 1", resp.Aborted)
	}

	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/executions/abort", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("abort-all status = %d, expected 200", rec.Code)
	}
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	t.Parallel()

	invalidator := &stubInvalidator{}
	server, _, _ := testServer(t, stubSource{}, invalidator)

	rec := doRequest(t, server.Handler(), http.MethodPost, "/v1/cache/invalidate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	if invalidator.calls != 1 {
		t.Fatalf("invalidator calls = %d, expected 1", invalidator.calls)
	}

	// Without a configured cache the endpoint reports a no-op.
	server, _, _ = testServer(t, stubSource{}, nil)
	rec = doRequest(t, server.Handler(), http.MethodPost, "/v1/cache/invalidate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status without invalidator = %d, expected 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"invalidated":false`) {
		t.Fatalf("body = %s, expected invalidated:false", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server, _, _ := testServer(t, stubSource{}, nil)
	rec := doRequest(t, server.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, expected 200", rec.Code)
	}
}
