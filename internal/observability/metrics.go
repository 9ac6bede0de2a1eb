package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	extractionBatchesTotal   *prometheus.CounterVec
	extractionDuration       *prometheus.HistogramVec
	evaluationBatchesTotal   *prometheus.CounterVec
	evaluationDuration       prometheus.Histogram
	uploadRejectedTotal      *prometheus.CounterVec
	uploadLatencySeconds     prometheus.Histogram
	progressPublishesDropped prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		extractionBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidya_extraction_batches_total",
			Help: "Extraction batches processed, labelled by outcome.",
		}, []string{"outcome"})

		extractionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidya_extraction_duration_seconds",
			Help:    "Wall-clock duration of whole document extraction runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"})

		evaluationBatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidya_evaluation_batches_total",
			Help: "Evaluation batches dispatched, labelled by outcome.",
		}, []string{"outcome"})

		evaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidya_evaluation_duration_seconds",
			Help:    "Wall-clock duration of whole evaluation runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidya_upload_rejected_total",
			Help: "Uploads rejected during validation, labelled by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidya_upload_latency_seconds",
			Help:    "Latency distribution of document uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		progressPublishesDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidya_progress_publishes_dropped_total",
			Help: "Progress events that could not be published to NATS.",
		})

		prometheus.MustRegister(
			extractionBatchesTotal,
			extractionDuration,
			evaluationBatchesTotal,
			evaluationDuration,
			uploadRejectedTotal,
			uploadLatencySeconds,
			progressPublishesDropped,
		)
	})
}

// ExtractionBatches exposes the per-batch outcome counter.
func ExtractionBatches() *prometheus.CounterVec {
	RegisterMetrics()
	return extractionBatchesTotal
}

// ExtractionDuration exposes the extraction run histogram.
func ExtractionDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return extractionDuration
}

// EvaluationBatches exposes the evaluation batch outcome counter.
func EvaluationBatches() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationBatchesTotal
}

// EvaluationDuration exposes the evaluation run histogram.
func EvaluationDuration() prometheus.Histogram {
	RegisterMetrics()
	return evaluationDuration
}

// UploadRejected exposes the upload rejection counter.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency exposes the upload latency histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// ProgressPublishesDropped counts progress events lost on the NATS path.
func ProgressPublishesDropped() prometheus.Counter {
	RegisterMetrics()
	return progressPublishesDropped
}
