// Package admin exposes the fleet's inbound control surface over HTTP JSON:
// server status listing, reconciliation, candidate-definition testing,
// execution aborts, config-cache invalidation, and the aggregated tool
// catalog with invocation for an admin UI or CLI.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/mcpfleet/mcpfleet/pkg/abort"
	"github.com/mcpfleet/mcpfleet/pkg/catalog"
	"github.com/mcpfleet/mcpfleet/pkg/config"
	"github.com/mcpfleet/mcpfleet/pkg/fleet"
	"github.com/mcpfleet/mcpfleet/pkg/resilience"
)

// CacheInvalidator is the explicit external invalidation signal for the
// config cache.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Options configure the admin server.
type Options struct {
	// Addr is the listen address. Defaults to ":8700".
	Addr string
	// AllowedOrigins feeds the CORS policy for browser-based admin UIs.
	// Defaults to allowing every origin.
	AllowedOrigins []string
	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Server wires the control endpoints to the registry, aggregator, abort
// registry, and configuration source.
type Server struct {
	registry    *fleet.Registry
	aggregator  *catalog.Aggregator
	aborts      *abort.Registry
	source      config.Source
	invalidator CacheInvalidator
	opts        Options
	logger      *slog.Logger
}

// NewServer builds the admin server. invalidator may be nil when no cache
// layer is configured.
func NewServer(
	registry *fleet.Registry,
	aggregator *catalog.Aggregator,
	aborts *abort.Registry,
	source config.Source,
	invalidator CacheInvalidator,
	opts *Options,
) *Server {
	options := opts.withDefaults()
	return &Server{
		registry:    registry,
		aggregator:  aggregator,
		aborts:      aborts,
		source:      source,
		invalidator: invalidator,
		opts:        options,
		logger:      options.Logger,
	}
}

// Handler returns the CORS-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/servers", s.handleListServers)
	mux.HandleFunc("POST /v1/servers/reconcile", s.handleReconcile)
	mux.HandleFunc("POST /v1/servers/test", s.handleTestServer)
	mux.HandleFunc("POST /v1/servers/{id}/abort", s.handleAbortServer)
	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.HandleFunc("POST /v1/tools/{name}/invoke", s.handleInvoke)
	mux.HandleFunc("POST /v1/executions/{id}/abort", s.handleAbortExecution)
	mux.HandleFunc("POST /v1/executions/abort", s.handleAbortAll)
	mux.HandleFunc("POST /v1/cache/invalidate", s.handleInvalidateCache)
	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// ListenAndServe runs the admin server until ctx is cancelled or the server
// stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.registry.Statuses()})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	defs, err := s.source.Definitions(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("loading definitions: %w", err))
		return
	}
	if err := s.registry.Reconcile(r.Context(), defs); err != nil {
		// Partial failures leave servers in an observable error state; the
		// reconcile itself still applied.
		s.logger.Warn("reconcile finished with errors", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.registry.Statuses()})
}

func (s *Server) handleTestServer(w http.ResponseWriter, r *http.Request) {
	var def fleet.ServerDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed definition: " + err.Error()})
		return
	}
	count, err := s.registry.TestDefinition(r.Context(), def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tool_count": count})
}

func (s *Server) handleAbortServer(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("id")
	aborted := s.aborts.AbortServer(serverID)
	writeJSON(w, http.StatusOK, map[string]any{"aborted": aborted})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	descs := s.aggregator.Tools(r.Context())
	type toolView struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		ServerID    string `json:"server_id"`
	}
	tools := make([]toolView, 0, len(descs))
	for _, desc := range descs {
		tools = append(tools, toolView{
			Name:        desc.Tool.Name,
			Description: desc.Tool.Description,
			ServerID:    desc.ServerID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body: " + err.Error()})
		return
	}
	res, err := s.aggregator.Invoke(r.Context(), name, body.Arguments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

func (s *Server) handleAbortExecution(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	if s.aborts.Abort(callID) {
		writeJSON(w, http.StatusOK, map[string]any{"aborted": true})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"aborted": false})
}

func (s *Server) handleAbortAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"aborted": s.aborts.AbortAll()})
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	if s.invalidator == nil {
		writeJSON(w, http.StatusOK, map[string]any{"invalidated": false})
		return
	}
	if err := s.invalidator.Invalidate(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": true})
}

// statusFromError maps the fleet error taxonomy onto HTTP status codes.
func statusFromError(err error) int {
	var cfgErr *fleet.ConfigError
	var valErr *fleet.ValidationError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrToolNotFound), errors.Is(err, catalog.ErrUnknownServer):
		return http.StatusNotFound
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, abort.ErrAborted):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = "temporarily unavailable: " + msg
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
