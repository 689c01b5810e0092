// Package metrics records request counts and latencies for scraping. Each
// Recorder owns its registry; nothing is registered on the global one.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"api-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute labels requests that matched neither a proxy route nor a
// fixed endpoint, keeping label cardinality bounded.
const UnmatchedRoute = "unmatched"

// DurationBuckets are the latency histogram boundaries in seconds.
var DurationBuckets = []float64{0.1, 0.5, 1, 2, 5}

// Sample is the "request completed" event: one per request, whatever its outcome.
type Sample struct {
	Method   string
	Route    string
	Status   int
	Duration time.Duration
}

type Recorder struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	decisions *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: DurationBuckets,
		}, []string{"method", "route", "status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions by outcome",
		}, []string{"decision"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests,
		r.duration,
		r.decisions,
	)
	return r
}

// Observe records a completed request.
func (r *Recorder) Observe(s Sample) {
	route := s.Route
	if route == "" {
		route = UnmatchedRoute
	}
	status := strconv.Itoa(s.Status)

	r.requests.WithLabelValues(s.Method, route, status).Inc()
	r.duration.WithLabelValues(s.Method, route, status).Observe(s.Duration.Seconds())
}

// Record implements the rate limiter's StatsStore.
func (r *Recorder) Record(_ context.Context, ev domain.StatsEvent) error {
	decision := "denied"
	if ev.Allowed {
		decision = "allowed"
	}
	r.decisions.WithLabelValues(decision).Inc()
	return nil
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
