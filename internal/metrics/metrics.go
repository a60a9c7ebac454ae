package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_triage_pages_processed_total",
			Help: "Pages handled by the controller, by outcome",
		},
		[]string{"outcome"}, // processed, recovered, no_emails, nothing_to_analyze, failed
	)

	EmailsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_triage_emails_classified_total",
			Help: "Emails stored with a recommendation, by recommended action",
		},
		[]string{"action"},
	)

	ProtectedSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_triage_protected_emails_skipped_total",
			Help: "Emails filtered out before classification because of a protected sender",
		},
	)

	EmailsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_triage_emails_deleted_total",
			Help: "Emails moved to trash after user approval",
		},
		[]string{"status"}, // success, failed
	)

	ClassifyLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_triage_classify_latency_seconds",
			Help:    "Recommendation engine call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"provider", "status"},
	)

	MailboxLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_triage_mailbox_latency_seconds",
			Help:    "Mailbox API call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"operation", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func IncrementPageOutcome(outcome string) {
	PagesProcessed.WithLabelValues(outcome).Inc()
}

func IncrementClassified(action string, n int) {
	EmailsClassified.WithLabelValues(action).Add(float64(n))
}

func IncrementProtectedSkipped(n int) {
	ProtectedSkipped.Add(float64(n))
}

func IncrementDeleted(status string, n int) {
	EmailsDeleted.WithLabelValues(status).Add(float64(n))
}

func RecordClassifyLatency(provider, status string, duration time.Duration) {
	ClassifyLatency.WithLabelValues(provider, status).Observe(duration.Seconds())
}

func RecordMailboxLatency(operation, status string, duration time.Duration) {
	MailboxLatency.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// Status maps an error to the status label used by the histograms.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
