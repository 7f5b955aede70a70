// Package metrics exposes the gateway's Prometheus collectors: HTTP
// request counters/histograms, resident-model-cache gauges, and
// generation-latency histograms, served at /metrics.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the collectors registered against a private registry
// (rather than the global default), so tests can build their own
// instance without colliding with a process-wide singleton.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
	requestDuration  prometheus.Histogram

	modelsResident   *prometheus.GaugeVec
	modelLoadsTotal  *prometheus.CounterVec
	modelEvictions   prometheus.Counter
	modelLoadSeconds *prometheus.HistogramVec

	generationTokens   prometheus.Counter
	generationSeconds  prometheus.Histogram
	generationGPUFault prometheus.Counter

	goroutines  prometheus.GaugeFunc
	heapAllocMB prometheus.GaugeFunc

	startTime time.Time

	// requestsInFlightRaw backs requestsInFlight with an atomic so
	// Increment/Decrement stay lock-free on the hot request path.
	requestsInFlightRaw int64
}

var globalMetrics = New()

// New builds a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "Total HTTP requests, partitioned by outcome.",
	}, []string{"outcome"})

	m.requestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})

	m.requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	m.modelsResident = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_models_resident",
		Help: "Number of resident model-cache entries, by kind (base or adapted).",
	}, []string{"kind"})

	m.modelLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_model_loads_total",
		Help: "Total model load attempts, partitioned by outcome.",
	}, []string{"outcome"})

	m.modelEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_model_evictions_total",
		Help: "Total resident entries evicted for memory pressure.",
	})

	m.modelLoadSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_model_load_duration_seconds",
		Help:    "Model load duration in seconds, by kind.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	m.generationTokens = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_generation_tokens_total",
		Help: "Total tokens generated across all requests.",
	})

	m.generationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_generation_duration_seconds",
		Help:    "End-to-end generation duration in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	m.generationGPUFault = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_generation_gpu_faults_total",
		Help: "Total generation requests that ended in a GPU fault.",
	})

	m.goroutines = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gateway_goroutines",
		Help: "Current number of goroutines.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.heapAllocMB = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gateway_heap_alloc_mb",
		Help: "Heap bytes allocated, in MB.",
	}, func() float64 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Alloc) / (1 << 20)
	})

	m.registry.MustRegister(
		m.requestsTotal, m.requestsInFlight, m.requestDuration,
		m.modelsResident, m.modelLoadsTotal, m.modelEvictions, m.modelLoadSeconds,
		m.generationTokens, m.generationSeconds, m.generationGPUFault,
		m.goroutines, m.heapAllocMB,
	)

	return m
}

// GetMetrics returns the process-wide Metrics instance the middleware
// and admin handlers share.
func GetMetrics() *Metrics { return globalMetrics }

// Handler returns the /metrics HTTP handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementRequestsInFlight() {
	atomic.AddInt64(&m.requestsInFlightRaw, 1)
	m.requestsInFlight.Inc()
}

func (m *Metrics) DecrementRequestsInFlight() {
	atomic.AddInt64(&m.requestsInFlightRaw, -1)
	m.requestsInFlight.Dec()
}

func (m *Metrics) RecordRequest(duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(duration.Seconds())
}

// SetResidentCount reports the current resident-set size per §4.3's
// two-tier cache, for the gateway_models_resident gauge served at /metrics.
func (m *Metrics) SetResidentCount(baseCount, adaptedCount int) {
	m.modelsResident.WithLabelValues("base").Set(float64(baseCount))
	m.modelsResident.WithLabelValues("adapted").Set(float64(adaptedCount))
}

func (m *Metrics) RecordModelLoad(kind string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.modelLoadsTotal.WithLabelValues(outcome).Inc()
	m.modelLoadSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordEviction() {
	m.modelEvictions.Inc()
}

func (m *Metrics) RecordGeneration(duration time.Duration, tokens int) {
	m.generationSeconds.Observe(duration.Seconds())
	m.generationTokens.Add(float64(tokens))
}

func (m *Metrics) RecordGPUFault() {
	m.generationGPUFault.Inc()
}

// StartCollection is a no-op retained for call-site compatibility with
// the teacher's startup sequence; the runtime gauges here are computed
// lazily by GaugeFunc on every scrape, so there is nothing to tick.
func (m *Metrics) StartCollection(ctx context.Context) {}
