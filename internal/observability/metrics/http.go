package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	throttledTotal  *prometheus.CounterVec

	retrievalTotal       *prometheus.CounterVec
	retrievalDuration    *prometheus.HistogramVec
	retrievedFragments   *prometheus.HistogramVec
	noContextTotal       *prometheus.CounterVec
	fallbackStageTotal   *prometheus.CounterVec
	referenceKindTotal   *prometheus.CounterVec
	fullFetchTruncations *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lca",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lca",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	throttledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Total requests rejected by rate limiting or backpressure.",
		},
		[]string{"service", "reason"},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total completed retrieval requests by mode.",
		},
		[]string{"service", "mode"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	retrievedFragments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "fragments",
			Help:      "Distribution of formatted fragments per retrieval request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		},
		[]string{"service", "mode"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "no_context_total",
			Help:      "Total retrieval requests that produced no fragments.",
		},
		[]string{"service", "mode"},
	)
	fallbackStageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "fallback_stage_total",
			Help:      "Total semantic searches by terminal fallback stage.",
		},
		[]string{"service", "stage"},
	)
	referenceKindTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "reference_kind_total",
			Help:      "Total resolved case-file references by kind.",
		},
		[]string{"service", "kind"},
	)
	fullFetchTruncations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lca",
			Subsystem: "retrieval",
			Name:      "full_fetch_truncations_total",
			Help:      "Total full case-file fetches truncated at the fragment cap.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		throttledTotal,
		retrievalTotal,
		retrievalDuration,
		retrievedFragments,
		noContextTotal,
		fallbackStageTotal,
		referenceKindTotal,
		fullFetchTruncations,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		throttledTotal:       throttledTotal,
		retrievalTotal:       retrievalTotal,
		retrievalDuration:    retrievalDuration,
		retrievedFragments:   retrievedFragments,
		noContextTotal:       noContextTotal,
		fallbackStageTotal:   fallbackStageTotal,
		referenceKindTotal:   referenceKindTotal,
		fullFetchTruncations: fullFetchTruncations,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordThrottled(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.throttledTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordRetrieval(service, mode string, fragmentCount int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, mode).Inc()
	m.retrievalDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	m.retrievedFragments.WithLabelValues(service, mode).Observe(float64(fragmentCount))

	if fragmentCount == 0 {
		m.noContextTotal.WithLabelValues(service, mode).Inc()
	}
}

func (m *HTTPServerMetrics) RecordFallbackStage(service string, stage int) {
	if stage <= 0 {
		return
	}
	m.fallbackStageTotal.WithLabelValues(service, strconv.Itoa(stage)).Inc()
}

func (m *HTTPServerMetrics) RecordReferenceKind(service, kind string) {
	if kind == "" {
		kind = "none"
	}
	m.referenceKindTotal.WithLabelValues(service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordFullFetchTruncation(service string) {
	m.fullFetchTruncations.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
