// Package metrics exposes pipeline counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/facewatch/internal/events"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame processing counters
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64 // taken while detection was disabled
	FramesDropped   atomic.Uint64 // replaced in the tracker mailbox before being taken
	DetectErrors    atomic.Uint64
	EncodeErrors    atomic.Uint64

	// Faces in the most recent processed frame
	Faces atomic.Int64

	// Preview clients
	StreamClients atomic.Int64
	EventClients  atomic.Int64

	events  *prometheus.CounterVec
	latency prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facewatch_events_total",
				Help: "Events published, by kind",
			},
			[]string{"kind"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "facewatch_detect_duration_seconds",
			Help:    "Time spent in feature extraction per frame",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.events, m.latency)

	counter := func(name, help string, v *atomic.Uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}
	gauge := func(name, help string, v *atomic.Int64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}

	counter("facewatch_frames_processed_total", "Frames passed through feature extraction", &m.FramesProcessed)
	counter("facewatch_frames_skipped_total", "Frames discarded while detection was disabled", &m.FramesSkipped)
	counter("facewatch_frames_dropped_total", "Frames replaced before the tracker could take them", &m.FramesDropped)
	counter("facewatch_detect_errors_total", "Feature extraction failures", &m.DetectErrors)
	counter("facewatch_encode_errors_total", "Face image JPEG encoding failures", &m.EncodeErrors)

	gauge("facewatch_faces", "Faces found in the last processed frame", &m.Faces)
	gauge("facewatch_stream_clients", "Connected MJPEG preview clients", &m.StreamClients)
	gauge("facewatch_event_clients", "Connected WebSocket event clients", &m.EventClients)

	// Every kind is pre-created so the series exist before the first event.
	for _, k := range events.Kinds() {
		m.events.WithLabelValues(k.String())
	}
}

// ObserveEvent counts a published event. It has the events.Handler signature.
func (m *Metrics) ObserveEvent(e events.Event) {
	m.events.WithLabelValues(e.Kind.String()).Inc()
}

// ObserveDetect records how long one Detect call took.
func (m *Metrics) ObserveDetect(d time.Duration) {
	m.latency.Observe(d.Seconds())
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
