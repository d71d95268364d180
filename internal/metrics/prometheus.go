package metrics

import (
	"fmt"
	"net/http"
	"time"
)

// PrometheusHandler writes the collector in Prometheus text exposition
// format (version 0.0.4).
func PrometheusHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := collector.Stats()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		writeMetric(w, "reportbrief_uploads_total",
			"Total number of accepted uploads.",
			"counter", stats.Uploads)

		writeMetric(w, "reportbrief_upload_conflicts_total",
			"Uploads rejected because the title already exists.",
			"counter", stats.UploadConflicts)

		writeMetric(w, "reportbrief_upload_suffixed_total",
			"Duplicate uploads stored under a timestamped title.",
			"counter", stats.UploadSuffixed)

		writeMetric(w, "reportbrief_summaries_total",
			"Total number of successful summarizations.",
			"counter", stats.Summaries)

		writeMetric(w, "reportbrief_summary_failures_total",
			"Total number of failed summarizations.",
			"counter", stats.SummaryFailures)

		writeMetric(w, "reportbrief_summary_timeouts_total",
			"Summarizations that exceeded the summarizer wait bound.",
			"counter", stats.SummaryTimeouts)

		writeMetric(w, "reportbrief_summary_tokens_total",
			"Tokens reported by the summarizer.",
			"counter", stats.SummaryTokens)

		writeMetric(w, "reportbrief_active_summaries",
			"Summarizations currently in flight.",
			"gauge", stats.ActiveSummaries)

		writeMetricFloat(w, "reportbrief_summarize_seconds_avg",
			"Mean summarization latency in seconds.",
			"gauge", stats.AvgSummarizeSecs)

		writeMetric(w, "reportbrief_quota_checks_total",
			"Total number of quota gating decisions.",
			"counter", stats.QuotaChecks)

		writeMetric(w, "reportbrief_quota_denials_total",
			"Quota gating decisions that denied the request.",
			"counter", stats.QuotaDenials)

		writeMetric(w, "reportbrief_audit_recorded_total",
			"Audit events written.",
			"counter", stats.AuditRecorded)

		writeMetric(w, "reportbrief_audit_dropped_total",
			"Audit events that failed to persist.",
			"counter", stats.AuditDropped)

		writeMetric(w, "reportbrief_rate_limited_total",
			"Requests refused by the rate limiter.",
			"counter", stats.RateLimited)

		writeMetricFloat(w, "reportbrief_uptime_seconds",
			"Number of seconds since the service started.",
			"gauge", time.Since(collector.startTime).Seconds())

		if len(stats.Errors) > 0 {
			fmt.Fprintf(w, "# HELP reportbrief_errors_total Error responses by kind.\n")
			fmt.Fprintf(w, "# TYPE reportbrief_errors_total counter\n")
			for _, kind := range sortedKeys(stats.Errors) {
				fmt.Fprintf(w, "reportbrief_errors_total{kind=%q} %d\n", kind, stats.Errors[kind])
			}
		}
	}
}

func writeMetric(w http.ResponseWriter, name, help, metricType string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func writeMetricFloat(w http.ResponseWriter, name, help, metricType string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %g\n", name, value)
}
