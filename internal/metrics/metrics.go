// Package metrics exposes Prometheus collectors for the HTTP surfaces of
// scrapectl: the operator console, the development backend and the client
// of the remote job API.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP holds request collectors registered on one registry.
type HTTP struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	remoteTotal     *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
}

// NewHTTP registers the collectors on reg. Collectors are namespaced so the
// console and the development backend can share a process.
func NewHTTP(reg prometheus.Registerer, namespace string) (*HTTP, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &HTTP{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		remoteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests sent to the remote job API, labeled by method and code.",
		}, []string{"method", "code"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of requests to the remote job API.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{h.requestsTotal, h.requestDuration, h.remoteTotal, h.remoteDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register http collector: %w", err)
		}
	}
	return h, nil
}

// ObserveRequest records one served request.
func (h *HTTP) ObserveRequest(method, route string, code int, duration time.Duration) {
	h.requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	h.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// InstrumentTransport wraps next so outgoing requests are counted and timed.
// A nil next uses http.DefaultTransport.
func (h *HTTP) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(h.remoteTotal,
		promhttp.InstrumentRoundTripperDuration(h.remoteDuration, next))
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
