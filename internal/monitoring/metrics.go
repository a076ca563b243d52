package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	UploadsTotal     *prometheus.CounterVec
	SearchesTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	GalleryAssets    prometheus.Gauge
}

// NewMetrics registers the pipeline metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visualsearch_uploads_total",
			Help: "The total number of image uploads by outcome",
		}, []string{"outcome"}),
		SearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visualsearch_searches_total",
			Help: "The total number of point searches by outcome",
		}, []string{"outcome"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visualsearch_state_transitions_total",
			Help: "Pipeline state transitions",
		}, []string{"from", "to"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "visualsearch_errors_total",
			Help: "User visible errors",
		}, []string{"kind"}), // e.g., 'upload_failed', 'invalid_server_path'
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visualsearch_request_duration_seconds",
			Help:    "Duration of requests to the search service",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		GalleryAssets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "visualsearch_gallery_assets",
			Help: "Number of assets in the last gallery refresh",
		}),
	}
}

func (m *Metrics) IncUploads(outcome string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSearches(outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncErrors(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRequest(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SetGalleryAssets(n int) {
	if m == nil {
		return
	}
	m.GalleryAssets.Set(float64(n))
}
