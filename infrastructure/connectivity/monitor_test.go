package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMonitor_SetOnline(t *testing.T) {
	ctx := context.Background()
	m := NewMonitor(true, zap.NewNop())

	var mu sync.Mutex
	var edges []bool
	m.OnChange(func(_ context.Context, online bool) {
		mu.Lock()
		defer mu.Unlock()
		edges = append(edges, online)
	})

	assert.False(t, m.SetOnline(ctx, true), "no edge when state is unchanged")
	assert.True(t, m.SetOnline(ctx, false))
	assert.False(t, m.IsOnline())
	assert.False(t, m.SetOnline(ctx, false))
	assert.True(t, m.SetOnline(ctx, true))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, edges)
}

func TestMonitor_OnChangeDispose(t *testing.T) {
	ctx := context.Background()
	m := NewMonitor(true, zap.NewNop())

	var calls atomic.Int32
	dispose := m.OnChange(func(context.Context, bool) { calls.Add(1) })

	m.SetOnline(ctx, false)
	dispose()
	dispose()
	m.SetOnline(ctx, true)

	assert.Equal(t, int32(1), calls.Load())
}

func TestMonitor_Probe(t *testing.T) {
	ctx := context.Background()
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	m := NewMonitor(false, zap.NewNop())

	assert.True(t, m.Probe(ctx, srv.URL))
	status.Store(http.StatusServiceUnavailable)
	assert.False(t, m.Probe(ctx, srv.URL))
	assert.False(t, m.Probe(ctx, "http://127.0.0.1:1"))
}

func TestMonitor_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(false, zap.NewNop())
	reconnected := make(chan struct{}, 1)
	m.OnChange(func(_ context.Context, online bool) {
		if online {
			reconnected <- struct{}{}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, srv.URL, time.Hour)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("probe loop never went online")
	}
	require.True(t, m.IsOnline())
}
