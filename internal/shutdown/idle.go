// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// IdleMonitor signals when the server has served no traffic for a
// configurable duration, so platforms that stop idle machines can
// scale the gateway to zero. A zero timeout disables it.
type IdleMonitor struct {
	timeout      time.Duration
	excludePaths []string
	logger       *slog.Logger

	inflight     atomic.Int64
	lastActivity atomic.Int64 // unix nanos

	idle chan struct{}
	stop chan struct{}
}

// NewIdleMonitor creates an idle monitor.
func NewIdleMonitor(timeout time.Duration, excludePaths []string, logger *slog.Logger) *IdleMonitor {
	m := &IdleMonitor{
		timeout:      timeout,
		excludePaths: excludePaths,
		logger:       logger,
		idle:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
	m.lastActivity.Store(time.Now().UnixNano())
	return m
}

// Idle returns a channel that is closed when the idle timeout elapses.
func (m *IdleMonitor) Idle() <-chan struct{} {
	return m.idle
}

// Middleware tracks request activity. Excluded path prefixes (health
// probes) do not count as activity.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.excludePaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		m.inflight.Add(1)
		m.lastActivity.Store(time.Now().UnixNano())
		defer func() {
			m.inflight.Add(-1)
			m.lastActivity.Store(time.Now().UnixNano())
		}()
		next.ServeHTTP(w, r)
	})
}

// Start begins the watch loop.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout.String())
	go m.watch()
}

// Stop terminates the watch loop without signaling idle.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stop)
}

func (m *IdleMonitor) watch() {
	// Poll well under the timeout so the signal is timely.
	interval := m.timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.inflight.Load() > 0 {
				m.lastActivity.Store(time.Now().UnixNano())
				continue
			}
			idleFor := time.Since(time.Unix(0, m.lastActivity.Load()))
			if idleFor >= m.timeout {
				m.logger.Info("idle timeout reached, signaling shutdown", "idle_for", idleFor.String())
				close(m.idle)
				return
			}
		}
	}
}
