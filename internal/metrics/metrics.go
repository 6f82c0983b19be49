package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RendersTotal    *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	RendersInFlight prometheus.Gauge
	StepDuration    *prometheus.HistogramVec

	FreezesDetected      prometheus.Counter
	FreezeSecondsRemoved prometheus.Counter

	EditsTotal *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// renderBuckets span a short clip to a long, slow software encode.
var renderBuckets = prometheus.ExponentialBuckets(0.5, 2, 12)

// NewMetrics returns the process-wide metrics, registering them with the
// default registry on first use.
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "democlip_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "democlip_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "democlip_renders_total",
			Help: "Finished renders by target and outcome",
		}, []string{"target", "status"}),

		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "democlip_render_duration_seconds",
			Help:    "Wall time of a whole render pipeline",
			Buckets: renderBuckets,
		}, []string{"target"}),

		RendersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "democlip_renders_in_flight",
			Help: "Renders currently executing",
		}),

		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "democlip_render_step_duration_seconds",
			Help:    "Wall time of each pipeline step",
			Buckets: renderBuckets,
		}, []string{"step"}),

		FreezesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "democlip_freezes_detected_total",
			Help: "Freeze intervals reported by the analyzer",
		}),

		FreezeSecondsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "democlip_freeze_seconds_removed_total",
			Help: "Seconds of frozen footage excised",
		}),

		EditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "democlip_edits_total",
			Help: "Edit operations by type and outcome",
		}, []string{"type", "status"}),
	}

	m.HTTPRequestTotal = registerOrGet(m.HTTPRequestTotal).(*prometheus.CounterVec)
	m.HTTPRequestDuration = registerOrGet(m.HTTPRequestDuration).(*prometheus.HistogramVec)
	m.RendersTotal = registerOrGet(m.RendersTotal).(*prometheus.CounterVec)
	m.RenderDuration = registerOrGet(m.RenderDuration).(*prometheus.HistogramVec)
	m.RendersInFlight = registerOrGet(m.RendersInFlight).(prometheus.Gauge)
	m.StepDuration = registerOrGet(m.StepDuration).(*prometheus.HistogramVec)
	m.FreezesDetected = registerOrGet(m.FreezesDetected).(prometheus.Counter)
	m.FreezeSecondsRemoved = registerOrGet(m.FreezeSecondsRemoved).(prometheus.Counter)
	m.EditsTotal = registerOrGet(m.EditsTotal).(*prometheus.CounterVec)

	globalMetrics = m
	return m
}

// registerOrGet registers c, returning the existing collector when one with
// the same descriptor is already registered.
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

// ObserveStep records how long a pipeline step took.
func (m *Metrics) ObserveStep(step string, start time.Time) {
	m.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// ObserveRender records a finished pipeline.
func (m *Metrics) ObserveRender(target string, start time.Time, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	m.RendersTotal.WithLabelValues(target, status).Inc()
	m.RenderDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
}

// ObserveFreezes counts analyzer findings.
func (m *Metrics) ObserveFreezes(count int, removedSeconds float64) {
	m.FreezesDetected.Add(float64(count))
	m.FreezeSecondsRemoved.Add(removedSeconds)
}

// ObserveEdit counts an edit request.
func (m *Metrics) ObserveEdit(opType string, err error) {
	status := "accepted"
	if err != nil {
		status = "rejected"
	}
	m.EditsTotal.WithLabelValues(opType, status).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
