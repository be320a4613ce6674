package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the API process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	eventsTotal    *prometheus.CounterVec
	writeConflicts prometheus.Counter
	liveSessions   prometheus.Gauge
}

// New creates the collectors on a private registry.
func New(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "voice_events_total",
				Help:        "Voice pipeline events received, by event type and outcome",
				ConstLabels: labels,
			},
			[]string{"event", "outcome"},
		),
		writeConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name:        "voice_write_conflicts_total",
				Help:        "Conditional session writes that lost a race and were retried",
				ConstLabels: labels,
			},
		),
		liveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name:        "voice_live_sessions",
				Help:        "Call sessions created and not yet ended by this process",
				ConstLabels: labels,
			},
		),
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RecordEvent counts one inbound event. outcome is one of applied, ignored, rejected, failed.
func (m *Metrics) RecordEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordWriteConflict counts one lost conditional write.
func (m *Metrics) RecordWriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.liveSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.liveSessions.Dec()
}
