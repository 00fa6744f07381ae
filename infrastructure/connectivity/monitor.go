// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener is called on every online/offline edge.
type Listener func(ctx context.Context, online bool)

// Monitor holds the current connectivity state. It is set explicitly by the
// presentation layer or by the optional probe loop.
type Monitor struct {
	client *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	online    bool
	listeners map[int]Listener
	nextID    int
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(online bool, logger *zap.Logger) *Monitor {
	return &Monitor{
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    logger,
		online:    online,
		listeners: make(map[int]Listener),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a listener for state edges. The returned function
// removes it.
func (m *Monitor) OnChange(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SetOnline records the state and notifies listeners when it changed.
// It reports whether the state changed.
func (m *Monitor) SetOnline(ctx context.Context, online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range listeners {
		fn(ctx, online)
	}
	return true
}

// Probe reports whether url answers with a non-5xx status.
func (m *Monitor) Probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("Connectivity probe failed", zap.String("url", url), zap.Error(err))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes url every interval and updates the state until ctx is done.
func (m *Monitor) Run(ctx context.Context, url string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.SetOnline(ctx, m.Probe(ctx, url))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
