// Package metrics exposes Prometheus instruments for the resize pipeline.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imgpack"

// Stage names a timed step of a batch.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageRasterize Stage = "rasterize"
	StageResize    Stage = "resize"
	StageAssemble  Stage = "assemble"
	StageArchive   Stage = "archive"
)

// Options configures the instruments.
type Options struct {
	Labels prometheus.Labels
}

// Instance holds the collectors. A nil *Instance is valid and records nothing.
type Instance struct {
	batches        *prometheus.CounterVec
	currentBatches prometheus.Gauge
	batchDuration  prometheus.Histogram
	stageDuration  *prometheus.HistogramVec
	filesProcessed *prometheus.CounterVec
	pagesRendered  prometheus.Counter
	bytesReceived  prometheus.Counter
	bytesSent      prometheus.Counter
}

// New creates unregistered collectors.
func New(o Options) *Instance {
	return &Instance{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "batches_total",
			Help:        "The total number of processed batches by outcome",
			ConstLabels: o.Labels,
		}, []string{"outcome"}),
		currentBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "current_batches",
			Help:        "The current number of batches in flight",
			ConstLabels: o.Labels,
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_duration_seconds",
			Help:        "The seconds spent processing whole batches",
			ConstLabels: o.Labels,
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "stage_duration_seconds",
			Help:        "The seconds spent in each pipeline stage",
			ConstLabels: o.Labels,
		}, []string{"stage"}),
		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "files_total",
			Help:        "The total number of uploaded files processed by kind",
			ConstLabels: o.Labels,
		}, []string{"kind"}),
		pagesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pdf_pages_total",
			Help:        "The total number of PDF pages rasterized",
			ConstLabels: o.Labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "received_bytes_total",
			Help:        "The total number of upload bytes accepted",
			ConstLabels: o.Labels,
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "archive_bytes_total",
			Help:        "The total number of archive bytes produced",
			ConstLabels: o.Labels,
		}),
	}
}

// Register adds every collector to r.
func (m *Instance) Register(r prometheus.Registerer) {
	if m == nil {
		return
	}
	r.MustRegister(
		m.batches,
		m.currentBatches,
		m.batchDuration,
		m.stageDuration,
		m.filesProcessed,
		m.pagesRendered,
		m.bytesReceived,
		m.bytesSent,
	)
}

func seconds(start time.Time) float64 {
	return float64(time.Since(start)/time.Millisecond) / 1000
}

// StartBatch marks a batch in flight; call the result with its outcome label.
func (m *Instance) StartBatch() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.currentBatches.Inc()

	return func(outcome string) {
		m.batches.WithLabelValues(outcome).Inc()
		m.currentBatches.Dec()
		m.batchDuration.Observe(seconds(start))
	}
}

// Stage times one step; call the result when it finishes.
func (m *Instance) Stage(s Stage) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()

	return func() {
		m.stageDuration.WithLabelValues(string(s)).Observe(seconds(start))
	}
}

func (m *Instance) FileProcessed(kind string) {
	if m == nil {
		return
	}
	m.filesProcessed.WithLabelValues(kind).Inc()
}

func (m *Instance) PagesRendered(n int) {
	if m == nil {
		return
	}
	m.pagesRendered.Add(float64(n))
}

func (m *Instance) BytesReceived(n int64) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

func (m *Instance) BytesSent(n int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
