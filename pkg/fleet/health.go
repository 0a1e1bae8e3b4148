package fleet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpfleet/mcpfleet/pkg/resilience"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 10 * time.Second
)

// MonitorOptions configure a Monitor.
type MonitorOptions struct {
	// Interval between probe rounds.
	Interval time.Duration
	// ProbeTimeout bounds each individual probe so one slow server never
	// delays the others.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

func (o *MonitorOptions) withDefaults() MonitorOptions {
	var opts MonitorOptions
	if o != nil {
		opts = *o
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Monitor periodically probes every managed server whose breaker is not open.
// Probe failures feed the same breaker accounting as live call failures, and
// probing also redials servers stuck in an error state.
type Monitor struct {
	registry *Registry
	opts     MonitorOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor constructs a Monitor for registry. Call Start to begin probing.
func NewMonitor(registry *Registry, opts *MonitorOptions) *Monitor {
	return &Monitor{registry: registry, opts: opts.withDefaults()}
}

// Start launches the probe loop. It is a no-op when already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	go m.run(ctx, done)
}

// Stop halts the probe loop and waits for in-flight probes to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll probes every eligible server once, concurrently, each with an
// independent timeout. It returns after all probes have finished.
func (m *Monitor) ProbeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, client := range m.registry.All() {
		if client.CircuitState() == resilience.Open {
			continue
		}
		wg.Add(1)
		go func(client *ManagedClient) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
			defer cancel()
			if err := client.HealthCheck(probeCtx); err != nil {
				m.opts.Logger.Warn("health probe failed", "server", client.ID(), "error", err)
			}
		}(client)
	}
	wg.Wait()
}
