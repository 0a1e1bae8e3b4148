// Package resilience provides the per-server failure gating used by the fleet
// registry: a circuit breaker with CLOSED/OPEN/HALF_OPEN semantics and a
// bounded exponential-backoff retry executor. The two compose so that a call
// is gated first (failing fast while the circuit is open) and then executed
// with retries, with the whole wrapped call counting as at most one failure
// toward the breaker.
package resilience
