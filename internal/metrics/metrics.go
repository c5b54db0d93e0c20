// Package metrics provides Prometheus instrumentation for the converter.
// All metrics are prefixed with "vertical_converter_" and registered on the
// default registry through promauto; mount promhttp.Handler() to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertical_converter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vertical_converter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vertical_converter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertical_converter_conversions_total",
			Help: "Total number of transcodes by format, fit and status",
		},
		[]string{"format", "fit", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vertical_converter_conversion_duration_seconds",
			Help:    "Time spent in the transcoding engine in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"format"},
	)

	ConversionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vertical_converter_conversions_in_flight",
			Help: "Number of transcoding engine processes currently running",
		},
	)

	SourceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertical_converter_source_duration_seconds",
			Help:    "Playback duration of uploaded videos in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vertical_converter_upload_bytes",
			Help:    "Size of uploaded video files in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8), // 1 MiB .. 16 GiB
		},
	)

	OutputBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vertical_converter_output_bytes",
			Help:    "Size of converted video files in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8),
		},
		[]string{"format"},
	)
)

// Status label values for ConversionsTotal.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first scrape. Call it once at startup.
func InitializeMetrics() {
	for _, format := range []string{"mp4", "webm"} {
		ConversionDuration.WithLabelValues(format)
		OutputBytes.WithLabelValues(format)
		for _, fit := range []string{"cover", "contain"} {
			ConversionsTotal.WithLabelValues(format, fit, StatusSuccess)
			ConversionsTotal.WithLabelValues(format, fit, StatusError)
		}
	}
}
