package fleet

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed or conflicting server definition. It is
// raised atomically at registration time: a rejected definition leaves the
// registry unchanged.
type ConfigError struct {
	ServerID string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.ServerID == "" {
		return "fleet: invalid definition: " + e.Reason
	}
	return fmt.Sprintf("fleet: invalid definition %q: %s", e.ServerID, e.Reason)
}

// ConnectionError reports a failed open or a call against a server without a
// live connection. The server stays registered in an error state and is
// retried on the next reconcile or health probe.
type ConnectionError struct {
	ServerID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("fleet: server %q: %v", e.ServerID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationError reports tool arguments rejected by the server's parameter
// schema. Validation failures are never retried and do not count toward the
// circuit breaker.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fleet: invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var errNotConnected = errors.New("not connected")
