package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pacer"

// PrometheusDestination exposes run statistics as Prometheus metrics on its
// own registry.
type PrometheusDestination struct {
	registry *prometheus.Registry

	iterations    prometheus.Counter
	failures      prometheus.Counter
	requestBytes  prometheus.Counter
	responseBytes prometheus.Counter
	serviceTime   prometheus.Histogram
	queueLatency  prometheus.Histogram

	threads    prometheus.Gauge
	percentage prometheus.Gauge
	throughput prometheus.Gauge
	phase      *prometheus.GaugeVec

	lastPhase Phase
}

// NewPrometheusDestination creates and registers the collectors.
func NewPrometheusDestination() *PrometheusDestination {
	d := &PrometheusDestination{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Reported sender task iterations",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Sender task iterations that recorded a failure",
		}),
		requestBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_bytes_total",
			Help:      "Sent payload bytes",
		}),
		responseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Received payload bytes",
		}),
		serviceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_time_seconds",
			Help:      "Measured send time per iteration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		queueLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_latency_seconds",
			Help:      "Time between admission and the first send",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		threads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "Configured worker count",
		}),
		percentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_percent",
			Help:      "Run progress in percent",
		}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_per_second",
			Help:      "Iterations per second since start",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current run phase, 1 for the active phase",
		}, []string{"phase"}),
	}

	d.registry.MustRegister(
		d.iterations, d.failures, d.requestBytes, d.responseBytes,
		d.serviceTime, d.queueLatency,
		d.threads, d.percentage, d.throughput, d.phase,
	)
	return d
}

// Observe records one measurement unit.
func (d *PrometheusDestination) Observe(mu *MeasurementUnit) {
	d.iterations.Inc()
	if mu.Failed() {
		d.failures.Inc()
	}
	d.requestBytes.Add(float64(mu.RequestSize()))
	d.responseBytes.Add(float64(mu.ResponseSize()))
	d.serviceTime.Observe(mu.TotalTime().Seconds())
	d.queueLatency.Observe(mu.QueueLatency().Seconds())
}

// Publish updates the gauges from a snapshot. Snapshots are published from
// a single goroutine.
func (d *PrometheusDestination) Publish(s *Snapshot) {
	d.threads.Set(float64(s.Threads))
	d.percentage.Set(s.Percentage)
	d.throughput.Set(s.Throughput)

	if s.CurrentPhase != d.lastPhase {
		if d.lastPhase != "" {
			d.phase.WithLabelValues(string(d.lastPhase)).Set(0)
		}
		d.lastPhase = s.CurrentPhase
	}
	d.phase.WithLabelValues(string(s.CurrentPhase)).Set(1)
}

// Registry returns the registry holding the collectors.
func (d *PrometheusDestination) Registry() *prometheus.Registry {
	return d.registry
}

// Handler returns an HTTP handler serving the metrics.
func (d *PrometheusDestination) Handler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}
