// Package connectivity tracks whether the network is reachable and replays
// deferred work when it comes back.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/logging"
)

// DialFunc opens a probe connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Hook runs on a connectivity edge.
type Hook func(ctx context.Context)

// Monitor probes a TCP address and reports online state.
type Monitor struct {
	address  string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
	logger   *slog.Logger

	mu           sync.Mutex
	online       bool
	checked      bool
	reconnect    []Hook
	disconnect   []Hook
	checkRunning sync.Mutex
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithDialer replaces the TCP dialer used by probes.
func WithDialer(dial DialFunc) Option {
	return func(m *Monitor) {
		m.dial = dial
	}
}

// WithInterval overrides the probe interval.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		m.interval = interval
	}
}

// New constructs a Monitor. The state reads as online until the first probe.
func New(cfg config.Connectivity, logger *slog.Logger, opts ...Option) *Monitor {
	dialer := &net.Dialer{}
	m := &Monitor{
		address:  cfg.ProbeAddress,
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		dial:     dialer.DialContext,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
		online:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Second
	}
	if m.timeout <= 0 {
		m.timeout = 5 * time.Second
	}
	return m
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnReconnect registers fn to run after an offline to online edge. Hooks run
// sequentially in registration order on the probing goroutine.
func (m *Monitor) OnReconnect(fn Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = append(m.reconnect, fn)
}

// OnDisconnect registers fn to run after an online to offline edge.
func (m *Monitor) OnDisconnect(fn Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnect = append(m.disconnect, fn)
}

// Check probes once, updates the state and fires edge hooks.
func (m *Monitor) Check(ctx context.Context) bool {
	m.checkRunning.Lock()
	defer m.checkRunning.Unlock()

	up := m.probe(ctx)

	m.mu.Lock()
	prev, first := m.online, !m.checked
	m.online = up
	m.checked = true
	var hooks []Hook
	switch {
	case up && !prev && !first:
		hooks = append(hooks, m.reconnect...)
	case !up && prev:
		hooks = append(hooks, m.disconnect...)
	}
	m.mu.Unlock()

	if up != prev || first {
		m.logEdge(up, first)
	}
	for _, hook := range hooks {
		if ctx.Err() != nil {
			break
		}
		hook(ctx)
	}
	return up
}

// Run probes immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dial(probeCtx, "tcp", m.address)
	if err != nil {
		m.logger.Debug("connectivity probe failed", logging.String("address", m.address), logging.Error(err))
		return false
	}
	_ = conn.Close()
	return true
}

func (m *Monitor) logEdge(up, first bool) {
	if up {
		reason := "probe succeeded after outage"
		if first {
			reason = "initial probe"
		}
		m.logger.Info("network online",
			logging.Args(append(logging.DecisionAttrs("connectivity", "online", reason),
				logging.String(logging.FieldEventType, "connectivity_online"),
				logging.String("address", m.address))...)...,
		)
		return
	}
	logging.WarnWithContext(m.logger, "network offline", "connectivity_offline",
		logging.String("address", m.address),
		logging.String(logging.FieldImpact, "network steps are queued until connectivity returns"),
		logging.String(logging.FieldErrorHint, "check the network connection or connectivity.probe_address"),
	)
}
