package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "enrollments_total",
		Help:      "Total number of enrollment attempts",
	}, []string{"result"})

	Authentications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "authentications_total",
		Help:      "Total number of face authentication attempts",
	}, []string{"result"})

	Retrains = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "retrains_total",
		Help:      "Total number of full classifier retrains",
	})

	RetrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "faceauth",
		Name:      "retrain_duration_seconds",
		Help:      "Duration of full classifier retrains",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	// StaleSamplesSkipped counts sample records whose backing crop file
	// was gone at retrain time. Skipping is tolerated, not silent.
	StaleSamplesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceauth",
		Name:      "stale_samples_skipped_total",
		Help:      "Sample records skipped during retrain because the crop file was missing",
	})

	EnrolledSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceauth",
		Name:      "enrolled_samples",
		Help:      "Number of face samples fed into the last retrain",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceauth",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceauth",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
