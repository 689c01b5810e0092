package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_CountsPerLabelSet(t *testing.T) {
	r := NewRecorder()

	const m = 7
	for i := 0; i < m; i++ {
		r.Observe(Sample{Method: "GET", Route: "/api/products", Status: 200, Duration: 30 * time.Millisecond})
	}
	r.Observe(Sample{Method: "GET", Route: "/api/products", Status: 502, Duration: time.Second})

	assert.Equal(t, float64(m), testutil.ToFloat64(r.requests.WithLabelValues("GET", "/api/products", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.requests.WithLabelValues("GET", "/api/products", "502")))
}

func TestObserve_ConcurrentIncrements(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Observe(Sample{Method: "POST", Route: "/api/orders", Status: 201})
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(100), testutil.ToFloat64(r.requests.WithLabelValues("POST", "/api/orders", "201")))
}

func TestObserve_EmptyRouteUsesSentinel(t *testing.T) {
	r := NewRecorder()
	r.Observe(Sample{Method: "GET", Status: 404})

	assert.Equal(t, float64(1), testutil.ToFloat64(r.requests.WithLabelValues("GET", UnmatchedRoute, "404")))
}

func TestRecord_CountsDecisions(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, domain.StatsEvent{Allowed: true}))
	require.NoError(t, r.Record(ctx, domain.StatsEvent{Allowed: false}))
	require.NoError(t, r.Record(ctx, domain.StatsEvent{Allowed: false}))

	assert.Equal(t, float64(1), testutil.ToFloat64(r.decisions.WithLabelValues("allowed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.decisions.WithLabelValues("denied")))
}

func TestHandler_ExposesTextFormat(t *testing.T) {
	r := NewRecorder()
	r.Observe(Sample{Method: "GET", Route: "/health", Status: 200, Duration: 2 * time.Second})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, text, `http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, text, `http_request_duration_seconds_bucket{method="GET",route="/health",status="200",le="2"} 1`)
	assert.Contains(t, text, `http_request_duration_seconds_bucket{method="GET",route="/health",status="200",le="1"} 0`)
	assert.Contains(t, text, "go_goroutines")
}
