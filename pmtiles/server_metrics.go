package pmtiles

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var buildInfoMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pmtiles",
	Name:      "buildinfo",
}, []string{"version", "revision"})

var buildTimeMetric = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "pmtiles",
	Name:      "buildtime",
})

func init() {
	prometheus.MustRegister(buildInfoMetric, buildTimeMetric)
}

// SetBuildInfo initializes static metrics with version, git hash, and build time
func SetBuildInfo(version, commit, date string) {
	buildInfoMetric.WithLabelValues(version, commit).Set(1)
	time, err := time.Parse(time.RFC3339, date)
	if err == nil {
		buildTimeMetric.Set(float64(time.Unix()))
	} else {
		buildTimeMetric.Set(0)
	}
}

// Lookup results recorded by Metrics.
const (
	resultTile     = "tile"
	resultLeafTile = "leaf_tile"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics collects counters for archive lookups and the tile server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// archive lookups: # by result, duration, leaf directories decoded
	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	leafDecodes    prometheus.Counter
	// reads from the source: # by section and status, duration by section
	sourceReads        *prometheus.CounterVec
	sourceReadDuration *prometheus.HistogramVec
	// http requests: # requests, request duration, response size by handler/status code
	requests        *prometheus.CounterVec
	responseSize    *prometheus.HistogramVec
	requestDuration *prometheus.HistogramVec
}

func isCanceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// utility to time an overall http request
type requestTracker struct {
	finished bool
	start    time.Time
	metrics  *Metrics
}

func (m *Metrics) startRequest() *requestTracker {
	return &requestTracker{start: time.Now(), metrics: m}
}

func (r *requestTracker) finish(ctx context.Context, handler string, status, responseSize int) {
	if r.finished || r.metrics == nil {
		return
	}
	r.finished = true
	statusString := strconv.Itoa(status)
	if isCanceled(ctx) {
		statusString = "canceled"
	}
	r.metrics.requests.WithLabelValues(handler, statusString).Inc()
	r.metrics.responseSize.WithLabelValues(handler, statusString).Observe(float64(responseSize))
	r.metrics.requestDuration.WithLabelValues(handler, statusString).Observe(time.Since(r.start).Seconds())
}

// utility to time an individual read from the underlying source
type sourceReadTracker struct {
	finished bool
	start    time.Time
	metrics  *Metrics
	kind     string
}

func (m *Metrics) startSourceRead(kind string) *sourceReadTracker {
	return &sourceReadTracker{start: time.Now(), metrics: m, kind: kind}
}

func (r *sourceReadTracker) finish(ctx context.Context, err error) {
	if r.finished || r.metrics == nil {
		return
	}
	r.finished = true
	status := "ok"
	if isCanceled(ctx) {
		status = "canceled"
	} else if err != nil {
		status = "error"
	}
	r.metrics.sourceReads.WithLabelValues(r.kind, status).Inc()
	r.metrics.sourceReadDuration.WithLabelValues(r.kind).Observe(time.Since(r.start).Seconds())
}

func (m *Metrics) lookup(result string, start time.Time) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
	m.lookupDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) leafDecoded() {
	if m == nil {
		return
	}
	m.leafDecodes.Inc()
}

func register[K prometheus.Collector](logger *zap.Logger, reg prometheus.Registerer, metric K) K {
	if err := reg.Register(metric); err != nil {
		logger.Warn("registering metric", zap.Error(err))
	}
	return metric
}

// NewMetrics creates the collectors under the pmtiles_<scope> prefix and registers them with reg.
// Registration failures are logged and the unregistered collectors still count.
func NewMetrics(scope string, reg prometheus.Registerer, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	namespace := "pmtiles"
	durationBuckets := prometheus.DefBuckets
	kib := 1024.0
	mib := kib * kib
	sizeBuckets := []float64{1.0 * kib, 5.0 * kib, 10.0 * kib, 25.0 * kib, 50.0 * kib, 100 * kib, 250 * kib, 500 * kib, 1.0 * mib}

	return &Metrics{
		// archive lookups
		lookups: register(logger, reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "lookups_total",
			Help:      "Tile lookups by result (tile, leaf_tile, not_found, error)",
		}, []string{"result"})),
		lookupDuration: register(logger, reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "lookup_duration_seconds",
			Help:      "Time to resolve a tile id to a byte range",
			Buckets:   durationBuckets,
		})),
		leafDecodes: register(logger, reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "leaf_directory_decodes_total",
			Help:      "Number of leaf directories read and decoded",
		})),

		// source reads
		sourceReads: register(logger, reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "source_reads_total",
			Help:      "Reads from the underlying source by section and status",
		}, []string{"kind", "status"})),
		sourceReadDuration: register(logger, reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "source_read_duration_seconds",
			Help:      "Duration of individual reads from the underlying source",
			Buckets:   durationBuckets,
		}, []string{"kind"})),

		// http requests
		requests: register(logger, reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "requests_total",
			Help:      "Overall number of requests to the service",
		}, []string{"handler", "status"})),
		responseSize: register(logger, reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "response_size_bytes",
			Help:      "Overall response size in bytes",
			Buckets:   sizeBuckets,
		}, []string{"handler", "status"})),
		requestDuration: register(logger, reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: scope,
			Name:      "request_duration_seconds",
			Help:      "Overall request duration in seconds",
			Buckets:   durationBuckets,
		}, []string{"handler", "status"})),
	}
}
