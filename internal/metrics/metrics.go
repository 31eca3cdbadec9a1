// Prometheus collectors for the publishing loop
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reasons used as the "reason" label.
const (
	ReasonTransport = "transport"
	ReasonTimeout   = "timeout"
	ReasonEncode    = "encode"
	ReasonSink      = "sink"
)

// Metrics holds the publisher collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	published       *prometheus.CounterVec
	anomalies       *prometheus.CounterVec
	failures        *prometheus.CounterVec
	connects        prometheus.Counter
	connected       prometheus.Gauge
	publishDuration prometheus.Histogram
}

// New registers the collectors, plus the Go and process collectors, on a
// private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_readings_published_total",
			Help: "Readings acknowledged by the broker, by sensor type.",
		}, []string{"sensor_type"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_anomalies_published_total",
			Help: "Injected out-of-range readings acknowledged by the broker, by sensor type.",
		}, []string{"sensor_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorsim_publish_failures_total",
			Help: "Failed publish attempts by reason.",
		}, []string{"reason"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorsim_broker_connects_total",
			Help: "Successful broker connects, including reconnects.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorsim_broker_connected",
			Help: "1 while the publisher holds a broker connection.",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorsim_publish_duration_seconds",
			Help:    "Time from send to broker acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.published,
		m.anomalies,
		m.failures,
		m.connects,
		m.connected,
		m.publishDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Published(sensorType string, anomalous bool, took time.Duration) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(sensorType).Inc()
	if anomalous {
		m.anomalies.WithLabelValues(sensorType).Inc()
	}
	m.publishDuration.Observe(took.Seconds())
}

func (m *Metrics) Failed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connects.Inc()
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
