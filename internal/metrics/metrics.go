// Package metrics provides Prometheus metrics for face extraction and matching.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Image outcomes recorded by the batch driver.
const (
	ResultOK     = "ok"
	ResultNoFace = "no_face"
	ResultFailed = "failed"
)

// Metrics holds the face-finder collectors. A nil *Metrics is a no-op.
type Metrics struct {
	ImagesProcessed  *prometheus.CounterVec
	FacesExtracted   prometheus.Counter
	ExtractDuration  prometheus.Histogram
	RankQueries      *prometheus.CounterVec
	RankDuration     prometheus.Histogram
	ResultCache      *prometheus.CounterVec
	StoreEntries     prometheus.Gauge
	StoreSaveSeconds prometheus.Histogram
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ImagesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facefinder_images_processed_total",
			Help: "Images run through face extraction by outcome",
		}, []string{"result"}),
		FacesExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "facefinder_faces_extracted_total",
			Help: "Total number of face embeddings extracted",
		}),
		ExtractDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facefinder_extract_duration_seconds",
			Help:    "Duration of a single image extraction in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		RankQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facefinder_rank_queries_total",
			Help: "Ranking queries by status",
		}, []string{"status"}),
		RankDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facefinder_rank_duration_seconds",
			Help:    "Duration of ranking queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		ResultCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facefinder_result_cache_total",
			Help: "Ranking result cache lookups by outcome",
		}, []string{"result"}),
		StoreEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "facefinder_store_entries",
			Help: "Number of images in the face store",
		}),
		StoreSaveSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "facefinder_store_save_duration_seconds",
			Help:    "Duration of store saves in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

// ObserveImage records one extracted image.
func (m *Metrics) ObserveImage(result string, faces int, d time.Duration) {
	if m == nil {
		return
	}
	m.ImagesProcessed.WithLabelValues(result).Inc()
	m.FacesExtracted.Add(float64(faces))
	m.ExtractDuration.Observe(d.Seconds())
}

// ObserveRank records one ranking query.
func (m *Metrics) ObserveRank(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RankQueries.WithLabelValues(status).Inc()
	m.RankDuration.Observe(d.Seconds())
}

// ObserveCache records a result cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ResultCache.WithLabelValues("hit").Inc()
		return
	}
	m.ResultCache.WithLabelValues("miss").Inc()
}

// ObserveSave records a store save and the resulting entry count.
func (m *Metrics) ObserveSave(entries int, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreEntries.Set(float64(entries))
	m.StoreSaveSeconds.Observe(d.Seconds())
}

// SetEntries updates the store size gauge.
func (m *Metrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.StoreEntries.Set(float64(n))
}
