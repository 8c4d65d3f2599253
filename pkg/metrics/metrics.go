// Package metrics holds the Prometheus collectors for backup, remediation
// and controller HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ctrlcfg"

var (
	// BackupRuns counts device backups.
	// Labels: platform, result (success, partial, error)
	BackupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "runs_total",
		Help:      "Total device configuration backups",
	}, []string{"platform", "result"})

	// BackupDuration measures one device backup end to end.
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "duration_seconds",
		Help:      "Device backup duration in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"platform"})

	// FeaturesSkipped counts features left out of a backup artifact.
	// Labels: platform, reason (undeclared, template, empty, request)
	FeaturesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "features_skipped_total",
		Help:      "Total backup features skipped",
	}, []string{"platform", "reason"})

	// RemediationPushes counts remediation endpoint calls.
	// Labels: platform, result (success, error)
	RemediationPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remediation",
		Name:      "pushes_total",
		Help:      "Total remediation endpoint calls",
	}, []string{"platform", "result"})

	// HTTPRequests counts controller API requests.
	// Labels: method, code (status code or "error")
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total controller API requests",
	}, []string{"method", "code"})

	// HTTPDuration measures controller API latency including retries.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Controller API request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// ObserveRequest records one controller API request. A zero status means
// the request failed before a response arrived.
func ObserveRequest(method string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	HTTPRequests.WithLabelValues(method, code).Inc()
	HTTPDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveBackup records a finished backup.
func ObserveBackup(platform, result string, elapsed time.Duration) {
	BackupRuns.WithLabelValues(platform, result).Inc()
	BackupDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

// SkipFeature records a skipped backup feature.
func SkipFeature(platform, reason string) {
	FeaturesSkipped.WithLabelValues(platform, reason).Inc()
}

// ObservePush records remediation endpoint calls.
func ObservePush(platform string, succeeded, failed int) {
	if succeeded > 0 {
		RemediationPushes.WithLabelValues(platform, "success").Add(float64(succeeded))
	}
	if failed > 0 {
		RemediationPushes.WithLabelValues(platform, "error").Add(float64(failed))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
