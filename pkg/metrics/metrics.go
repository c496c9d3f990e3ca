// Package metrics provides Prometheus metrics for the HTTP API and the
// companion's memory, sentiment and reply subsystems.
package metrics

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "companion"
)

var durationBuckets = []float64{0.1, 0.3, 0.5, 0.7, 1.0, 3.0, 5.0, 7.0, 10.0}

// Metrics owns a private registry. It satisfies the recorder interfaces of the
// memory manager, the sentiment analyzer and the companion service.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPDurationHistogram    prometheus.Histogram

	httpMu               sync.Mutex
	HTTPRequestsCounters map[int]prometheus.Counter

	MemoriesAdded        prometheus.Counter
	MemoryRetrievals     prometheus.Counter
	MemoriesReturned     prometheus.Histogram
	EmbeddingFallbacks   prometheus.Counter
	SnapshotFailures     *prometheus.CounterVec
	CachedUsersGauge     prometheus.Gauge
	SentimentFallbacks   prometheus.Counter
	RepliesCounter       *prometheus.CounterVec
	ReplyDurationSeconds *prometheus.HistogramVec

	log logger.Logger
}

// NewMetrics creates the collectors. HTTP collectors are only registered when
// httpCounters is set.
func NewMetrics(httpCounters bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.HTTPRequestsCounters = make(map[int]prometheus.Counter)
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   durationBuckets,
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPDurationHistogram)
	}

	m.MemoriesAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "memories_added_total",
		Help:      "Memories appended to user indexes",
	})
	m.MemoryRetrievals = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "memory_retrievals_total",
		Help:      "Memory retrieval calls",
	})
	m.MemoriesReturned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "memories_returned",
		Help:      "Memories returned per retrieval",
		Buckets:   []float64{0, 1, 2, 3, 5, 10},
	})
	m.EmbeddingFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "embedding_fallbacks_total",
		Help:      "Embedding failures that degraded a memory operation",
	})
	m.SnapshotFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "snapshot_failures_total",
		Help:      "Failed memory snapshot operations",
	}, []string{"op"})
	m.CachedUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "cached_users",
		Help:      "User memory states held in memory",
	})
	m.SentimentFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "sentiment_fallbacks_total",
		Help:      "Sentiment classifications that fell back to neutral",
	})
	m.RepliesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "replies_total",
		Help:      "Reply generations by provider and outcome",
	}, []string{"provider", "outcome"})
	m.ReplyDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "reply_duration_seconds",
		Help:      "Reply generation latency in seconds",
		Buckets:   durationBuckets,
	}, []string{"provider"})

	m.reg.MustRegister(
		m.MemoriesAdded,
		m.MemoryRetrievals,
		m.MemoriesReturned,
		m.EmbeddingFallbacks,
		m.SnapshotFailures,
		m.CachedUsersGauge,
		m.SentimentFallbacks,
		m.RepliesCounter,
		m.ReplyDurationSeconds,
	)
	return m
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen serves /metrics on port until ctx is cancelled.
func (m *Metrics) Listen(ctx context.Context, port int) error {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		m.log.Info("Stopping metrics listener")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	m.httpMu.Lock()
	defer m.httpMu.Unlock()

	counter, ok := m.HTTPRequestsCounters[code]
	if !ok {
		counter = newTotalHTTPReqMetric(code)
		m.reg.MustRegister(counter)
		m.HTTPRequestsCounters[code] = counter
	}
	counter.Inc()
}

func newTotalHTTPReqMetric(code int) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      fmt.Sprintf("total_%d_http_responses", code),
		Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
	})
}

// HTTPMiddleware returns a Chi-compatible middleware that tracks HTTP metrics.
// NewMetrics must have been called with httpCounters set.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

// MemoryAdded counts a stored memory.
func (m *Metrics) MemoryAdded() {
	m.MemoriesAdded.Inc()
}

// MemoriesRetrieved counts a retrieval and how many memories it returned.
func (m *Metrics) MemoriesRetrieved(results int) {
	m.MemoryRetrievals.Inc()
	m.MemoriesReturned.Observe(float64(results))
}

// EmbeddingFallback counts a degraded embedding.
func (m *Metrics) EmbeddingFallback() {
	m.EmbeddingFallbacks.Inc()
}

// SnapshotFailure counts a failed snapshot load or save.
func (m *Metrics) SnapshotFailure(op string) {
	m.SnapshotFailures.WithLabelValues(op).Inc()
}

// CachedUsers sets the in-memory user gauge.
func (m *Metrics) CachedUsers(n int) {
	m.CachedUsersGauge.Set(float64(n))
}

// SentimentFallback counts a neutral fallback.
func (m *Metrics) SentimentFallback() {
	m.SentimentFallbacks.Inc()
}

// ReplyGenerated records one generation attempt.
func (m *Metrics) ReplyGenerated(provider string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.RepliesCounter.WithLabelValues(provider, outcome).Inc()
	m.ReplyDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack allows websocket upgrades through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
