// Package metrics exposes kiosk counters and gauges on a private Prometheus
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kiosk"

// Metrics holds every kiosk collector.
type Metrics struct {
	registry *prometheus.Registry

	IdentifiersReceived *prometheus.CounterVec
	IdentifiersRejected *prometheus.CounterVec
	Toggles             *prometheus.CounterVec
	ItemsDropped        *prometheus.CounterVec
	GreetingAssets      *prometheus.CounterVec
	QueueDepth          prometheus.Gauge
	PresentMembers      prometheus.Gauge
	ProcessingSeconds   prometheus.Histogram
}

// New registers the kiosk collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IdentifiersReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifiers_received_total",
			Help:      "Normalized identifiers accepted from each source.",
		}, []string{"source"}),
		IdentifiersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifiers_rejected_total",
			Help:      "Raw inputs rejected during normalization.",
		}, []string{"source"}),
		Toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toggles_total",
			Help:      "Committed presence toggles by action.",
		}, []string{"action"}),
		ItemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_dropped_total",
			Help:      "Queue items dropped without a committed toggle.",
		}, []string{"reason"}),
		GreetingAssets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "greeting_assets_total",
			Help:      "Greeting cache lookups by outcome.",
		}, []string{"result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items waiting in the ingest queue.",
		}),
		PresentMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "present_members",
			Help:      "Identifiers currently marked present.",
		}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_processing_seconds",
			Help:      "Time from dequeue to the end of greeting playback.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
	m.registry.MustRegister(
		m.IdentifiersReceived,
		m.IdentifiersRejected,
		m.Toggles,
		m.ItemsDropped,
		m.GreetingAssets,
		m.QueueDepth,
		m.PresentMembers,
		m.ProcessingSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
