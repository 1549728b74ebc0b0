package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics - prometheus-счётчики sink и batcher на собственном реестре.
// Методы безопасны на nil: sink без метрик просто ничего не считает.
type Metrics struct {
	registry *prometheus.Registry

	eventsEnqueued prometheus.Counter
	eventsDropped  prometheus.Counter
	rowsWritten    *prometheus.CounterVec
	flushFailures  *prometheus.CounterVec
	flushDuration  *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
}

// Стадии, по которым считаются ошибки
const (
	StageConnect  = "connect"
	StageSchema   = "schema"
	StageTable    = "table"
	StageEncode   = "encode"
	StageTransmit = "transmit"
)

var flushBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// New регистрирует коллекторы в новом реестре с данным namespace
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		eventsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueued_total",
			Help:      "Events accepted into the batch queue",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the batch queue was full",
		}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to PostgreSQL",
		}, []string{"mode"}),
		flushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Failed flushes by stage",
		}, []string{"stage"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of a flush including connection and provisioning",
			Buckets:   flushBuckets,
		}, []string{"mode"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting in the batch queue",
		}),
	}
	registry.MustRegister(m.eventsEnqueued, m.eventsDropped, m.rowsWritten, m.flushFailures, m.flushDuration, m.queueDepth)
	return m
}

func (m *Metrics) EventEnqueued() {
	if m != nil {
		m.eventsEnqueued.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) RowsWritten(mode string, n int) {
	if m != nil && n > 0 {
		m.rowsWritten.WithLabelValues(mode).Add(float64(n))
	}
}

func (m *Metrics) FlushFailed(stage string) {
	if m != nil {
		m.flushFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) ObserveFlush(mode string, started time.Time) {
	if m != nil {
		m.flushDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

// Registry - для тестов и встраивания в чужой /metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler отдаёт метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
