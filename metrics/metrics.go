package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdrop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imgdrop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// outcome is "success" or the failure kind
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdrop",
			Subsystem: "uploads",
			Name:      "ingest_total",
			Help:      "Total ingest attempts by outcome",
		},
		[]string{"mime", "outcome"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdrop",
			Subsystem: "uploads",
			Name:      "bytes_total",
			Help:      "Total bytes stored",
		},
		[]string{"mime"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdrop",
			Subsystem: "uploads",
			Name:      "fetch_total",
			Help:      "Slug lookups by result",
		},
		[]string{"result"},
	)

	DeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imgdrop",
			Subsystem: "uploads",
			Name:      "delete_total",
			Help:      "Token deletions by result",
		},
		[]string{"result"},
	)

	ReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imgdrop",
			Subsystem: "uploads",
			Name:      "reaped_total",
			Help:      "Expired uploads physically removed by the cleaner",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordUpload records one ingest attempt
func RecordUpload(mime, outcome string, bytes int64) {
	UploadsTotal.WithLabelValues(mime, outcome).Inc()
	if outcome == "success" {
		UploadBytesTotal.WithLabelValues(mime).Add(float64(bytes))
	}
}

// RecordFetch records a slug lookup; hit is false for missing and expired slugs alike.
func RecordFetch(hit bool) {
	FetchesTotal.WithLabelValues(result(hit)).Inc()
}

// RecordDelete records a token deletion attempt.
func RecordDelete(deleted bool) {
	DeletesTotal.WithLabelValues(result(deleted)).Inc()
}

func RecordReap(n int) {
	ReapedTotal.Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}
