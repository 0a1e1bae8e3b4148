// Package abort tracks cancellation tokens for in-flight tool executions. It
// maps call IDs to cancel functions so an admin request can abort one call,
// every call, or every call against one server. Entries carry a hard safety
// timeout so forgotten executions never accumulate.
package abort

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpfleet/mcpfleet/pkg/observability"
)

// ErrAborted marks an execution cancelled through the registry, distinct from
// an ordinary failure. It is never counted toward a circuit breaker.
var ErrAborted = errors.New("abort: execution aborted")

// DefaultSafetyTimeout force-removes entries whose execution never completed
// nor was explicitly aborted.
const DefaultSafetyTimeout = 5 * time.Minute

// Options configure a Registry.
type Options struct {
	SafetyTimeout time.Duration
	Logger        *slog.Logger
}

// Registry owns execution entries independently of the connection registry;
// it holds only id-based back-references to the originating servers. All
// methods are safe for concurrent use.
type Registry struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*execution
}

type execution struct {
	callID   string
	serverID string
	cancel   context.CancelFunc
	timer    *time.Timer
	created  time.Time
}

// NewRegistry constructs an empty Registry. Pass nil options for defaults.
func NewRegistry(opts *Options) *Registry {
	var options Options
	if opts != nil {
		options = *opts
	}
	if options.SafetyTimeout <= 0 {
		options.SafetyTimeout = DefaultSafetyTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Registry{
		timeout: options.SafetyTimeout,
		logger:  options.Logger,
		entries: make(map[string]*execution),
	}
}

// Register creates a cancellation token for one execution and returns the
// derived context plus a release function. The caller must invoke release
// when the call resolves; releasing removes the entry so a later Abort
// returns false.
func (r *Registry) Register(ctx context.Context, callID, serverID string) (context.Context, func()) {
	cctx, cancel := context.WithCancel(ctx)
	e := &execution{
		callID:   callID,
		serverID: serverID,
		cancel:   cancel,
		created:  time.Now(),
	}
	r.mu.Lock()
	r.entries[callID] = e
	e.timer = time.AfterFunc(r.timeout, func() { r.expire(callID) })
	r.mu.Unlock()

	release := func() {
		if taken := r.take(callID); taken != nil {
			taken.timer.Stop()
		}
		cancel()
	}
	return cctx, release
}

// Abort cancels one in-flight execution. It returns false when the call ID is
// unknown, already resolved, or already aborted.
func (r *Registry) Abort(callID string) bool {
	e := r.take(callID)
	if e == nil {
		return false
	}
	e.timer.Stop()
	e.cancel()
	observability.AbortsTotal.WithLabelValues("explicit").Inc()
	r.logger.Info("execution aborted", "call", callID, "server", e.serverID)
	return true
}

// AbortAll cancels every in-flight execution and returns how many were
// aborted. The registry is empty afterwards.
func (r *Registry) AbortAll() int {
	return r.abortWhere("all", func(*execution) bool { return true })
}

// AbortServer cancels every in-flight execution namespaced under serverID and
// returns how many were aborted.
func (r *Registry) AbortServer(serverID string) int {
	return r.abortWhere("server", func(e *execution) bool { return e.serverID == serverID })
}

// Len returns the number of tracked executions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) abortWhere(trigger string, match func(*execution) bool) int {
	r.mu.Lock()
	var victims []*execution
	for id, e := range r.entries {
		if match(e) {
			victims = append(victims, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	for _, e := range victims {
		e.timer.Stop()
		e.cancel()
		observability.AbortsTotal.WithLabelValues(trigger).Inc()
	}
	return len(victims)
}

func (r *Registry) take(callID string) *execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[callID]
	if !ok {
		return nil
	}
	delete(r.entries, callID)
	return e
}

// expire enforces the safety timeout: the entry is removed and its context
// cancelled even though nobody asked for an abort.
func (r *Registry) expire(callID string) {
	e := r.take(callID)
	if e == nil {
		return
	}
	e.cancel()
	observability.AbortsTotal.WithLabelValues("expired").Inc()
	r.logger.Warn("execution exceeded safety timeout, force-removed",
		"call", callID, "server", e.serverID, "age", time.Since(e.created))
}
