package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
)

func TestSlotObserver(t *testing.T) {
	m := New()
	mgr := resource.NewManager(2, 1)
	mgr.SetObserver(m)

	a, err := mgr.Acquire(1)
	require.NoError(t, err)
	_, err = mgr.Acquire(1)
	require.Error(t, err)
	b, err := mgr.Acquire(2)
	require.NoError(t, err)
	_, err = mgr.Acquire(3)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotsInUse))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeUsers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotRejections.WithLabelValues("user_limit_reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotRejections.WithLabelValues("global_limit_reached")))

	a.Release()
	b.Release()
	assert.Zero(t, testutil.ToFloat64(m.slotsInUse))
	assert.Zero(t, testutil.ToFloat64(m.activeUsers))
}

func TestTaskFinished(t *testing.T) {
	m := New()

	m.TaskFinished(supervisor.Outcome{Platform: platform.YouTube, State: supervisor.StateCompleted, Bytes: 3 << 20, Elapsed: 2 * time.Second})
	m.TaskFinished(supervisor.Outcome{Platform: platform.TikTok, State: supervisor.StateFailed, Kind: supervisor.KindRateLimited})
	m.TaskFinished(supervisor.Outcome{Platform: platform.TikTok, State: supervisor.StateTimedOut, Kind: supervisor.KindTimedOut})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("YouTube", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("TikTok", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("TikTok", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failuresTotal.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failuresTotal.WithLabelValues("timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
	assert.Equal(t, 1, testutil.CollectAndCount(m.fileSizeBytes))
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.SlotsChanged(3, 2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "aether_slots_in_use 3")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "ok"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
