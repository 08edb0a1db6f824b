package stats

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	assert.NotNil(t, su.registry, "expected registry to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /metrics to be set")
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "num_active_clients", metricName("NumActiveClients"))
	assert.Equal(t, "uptime", metricName("uptime"))
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric("NumActiveClients")
	su.RegisterMetric("NumActiveClients")
	su.Run()
	defer su.Stop()

	su.Incr("NumActiveClients")
	su.Incr("NumActiveClients")
	su.Decr("NumActiveClients")

	g := su.gauge("NumActiveClients")
	require.NotNil(t, g)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(g) == 1
	}, time.Second, 10*time.Millisecond, "expected gauge to settle at 1")

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "medchat_num_active_clients 1")
	assert.Contains(t, rr.Body.String(), "medchat_uptime_seconds")
}

func TestStatsUpdater_UpdatesAfterStop(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric("NumOnlineUsers")
	su.Run()

	su.Incr("NumOnlineUsers")
	g := su.gauge("NumOnlineUsers")
	require.NotNil(t, g)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(g) == 1
	}, time.Second, 10*time.Millisecond)

	su.Stop()
	su.Stop()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		assert.NotPanics(t, func() {
			for i := 0; i < 1024; i++ {
				su.Decr("NumOnlineUsers")
			}
		})
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("expected updates after stop to return without blocking")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(g), "expected updates after stop to be dropped")
}
