package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payboard"

// Metrics owns a private Prometheus registry. Its observer methods match the
// hooks exposed by the indexer client, the cache, the producer and the
// refresher.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	rateLimited     prometheus.Counter
	indexerRequests *prometheus.CounterVec
	indexerDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	finalizeEvents  *prometheus.CounterVec
	refreshMessages *prometheus.CounterVec
	refreshFlushes  *prometheus.CounterVec
	refreshHandles  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
		indexerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexer_requests_total",
			Help:      "Indexer API calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		indexerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indexer_request_duration_seconds",
			Help:      "Indexer API latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		finalizeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_events_total",
			Help:      "payment_finalized events published by outcome.",
		}, []string{"outcome"}),
		refreshMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_messages_total",
			Help:      "Finalize events consumed by the refresher.",
		}, []string{"result"}),
		refreshFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_flushes_total",
			Help:      "Refresh batch flushes by outcome.",
		}, []string{"outcome"}),
		refreshHandles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_invalidated_handles_total",
			Help:      "Receiver caches invalidated by the refresher.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.httpInFlight,
		m.rateLimited,
		m.indexerRequests,
		m.indexerDuration,
		m.cacheLookups,
		m.finalizeEvents,
		m.refreshMessages,
		m.refreshFlushes,
		m.refreshHandles,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}


func (m *Metrics) ObserveIndexer(endpoint, outcome string, elapsed time.Duration) {
	m.indexerRequests.WithLabelValues(endpoint, outcome).Inc()
	m.indexerDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCache(kind, result string) {
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveFinalize(outcome string) {
	m.finalizeEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRefreshMessage(result string) {
	m.refreshMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRefreshFlush(handles int, err error) {
	if err != nil {
		m.refreshFlushes.WithLabelValues("error").Inc()
		return
	}
	m.refreshFlushes.WithLabelValues("ok").Inc()
	m.refreshHandles.Add(float64(handles))
}

func (m *Metrics) observeRateLimited() {
	m.rateLimited.Inc()
}

// Middleware records request count and latency labelled by the matched route
// template, so path variables do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		recorder := newStatusRecorder(w)
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
