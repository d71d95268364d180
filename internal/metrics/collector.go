// Package metrics keeps in-process counters for the ReportBrief workflows
// and exposes them in Prometheus text format.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks live counters with atomic updates. A nil *Collector is a
// valid no-op sink.
type Collector struct {
	uploads         int64
	uploadConflicts int64
	uploadSuffixed  int64

	summaries        int64
	summaryFailures  int64
	summaryTimeouts  int64
	summaryTokens    int64
	activeSummaries  int64
	summarizeSeconds uint64 // float64 bits

	quotaChecks  int64
	quotaDenials int64

	auditRecorded int64
	auditDropped  int64

	rateLimited int64

	errMu  sync.Mutex
	errors map[string]int64 // by error kind

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector.
type Stats struct {
	Uptime           string           `json:"uptime"`
	Uploads          int64            `json:"uploads"`
	UploadConflicts  int64            `json:"upload_conflicts"`
	UploadSuffixed   int64            `json:"upload_suffixed"`
	Summaries        int64            `json:"summaries"`
	SummaryFailures  int64            `json:"summary_failures"`
	SummaryTimeouts  int64            `json:"summary_timeouts"`
	SummaryTokens    int64            `json:"summary_tokens"`
	ActiveSummaries  int64            `json:"active_summaries"`
	AvgSummarizeSecs float64          `json:"avg_summarize_seconds"`
	QuotaChecks      int64            `json:"quota_checks"`
	QuotaDenials     int64            `json:"quota_denials"`
	AuditRecorded    int64            `json:"audit_recorded"`
	AuditDropped     int64            `json:"audit_dropped"`
	RateLimited      int64            `json:"rate_limited"`
	Errors           map[string]int64 `json:"errors"`
}

// NewCollector returns a Collector with its start time set to now.
func NewCollector() *Collector {
	return &Collector{
		errors:    make(map[string]int64),
		startTime: time.Now(),
	}
}

// RecordUpload counts an accepted upload.
func (c *Collector) RecordUpload() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.uploads, 1)
}

// RecordUploadConflict counts an upload rejected as a duplicate title.
func (c *Collector) RecordUploadConflict() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.uploadConflicts, 1)
}

// RecordUploadSuffixed counts a duplicate upload stored under a
// timestamped title because the caller forced a new report.
func (c *Collector) RecordUploadSuffixed() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.uploadSuffixed, 1)
}

// SummarizeStarted marks a summarization in flight. The returned func must be
// called when it ends.
func (c *Collector) SummarizeStarted() func() {
	if c == nil {
		return func() {}
	}
	atomic.AddInt64(&c.activeSummaries, 1)
	return func() { atomic.AddInt64(&c.activeSummaries, -1) }
}

// RecordSummary counts a successful summarization.
func (c *Collector) RecordSummary(elapsed time.Duration, tokens int) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.summaries, 1)
	atomic.AddInt64(&c.summaryTokens, int64(tokens))
	addFloat64(&c.summarizeSeconds, elapsed.Seconds())
}

// RecordSummaryFailure counts a failed summarization.
func (c *Collector) RecordSummaryFailure(timeout bool) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.summaryFailures, 1)
	if timeout {
		atomic.AddInt64(&c.summaryTimeouts, 1)
	}
}

// RecordQuotaCheck counts a gating decision.
func (c *Collector) RecordQuotaCheck(allowed bool) {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.quotaChecks, 1)
	if !allowed {
		atomic.AddInt64(&c.quotaDenials, 1)
	}
}

// RecordAudit counts an audit write attempt.
func (c *Collector) RecordAudit(ok bool) {
	if c == nil {
		return
	}
	if ok {
		atomic.AddInt64(&c.auditRecorded, 1)
	} else {
		atomic.AddInt64(&c.auditDropped, 1)
	}
}

// RecordRateLimited counts a request refused by the rate limiter.
func (c *Collector) RecordRateLimited() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.rateLimited, 1)
}

// RecordError counts an error response by kind.
func (c *Collector) RecordError(kind string) {
	if c == nil {
		return
	}
	c.errMu.Lock()
	c.errors[kind]++
	c.errMu.Unlock()
}

// Stats returns a snapshot of all counters.
func (c *Collector) Stats() *Stats {
	summaries := atomic.LoadInt64(&c.summaries)
	var avg float64
	if summaries > 0 {
		avg = loadFloat64(&c.summarizeSeconds) / float64(summaries)
	}

	c.errMu.Lock()
	errs := make(map[string]int64, len(c.errors))
	for k, v := range c.errors {
		errs[k] = v
	}
	c.errMu.Unlock()

	return &Stats{
		Uptime:           formatDuration(time.Since(c.startTime)),
		Uploads:          atomic.LoadInt64(&c.uploads),
		UploadConflicts:  atomic.LoadInt64(&c.uploadConflicts),
		UploadSuffixed:   atomic.LoadInt64(&c.uploadSuffixed),
		Summaries:        summaries,
		SummaryFailures:  atomic.LoadInt64(&c.summaryFailures),
		SummaryTimeouts:  atomic.LoadInt64(&c.summaryTimeouts),
		SummaryTokens:    atomic.LoadInt64(&c.summaryTokens),
		ActiveSummaries:  atomic.LoadInt64(&c.activeSummaries),
		AvgSummarizeSecs: avg,
		QuotaChecks:      atomic.LoadInt64(&c.quotaChecks),
		QuotaDenials:     atomic.LoadInt64(&c.quotaDenials),
		AuditRecorded:    atomic.LoadInt64(&c.auditRecorded),
		AuditDropped:     atomic.LoadInt64(&c.auditDropped),
		RateLimited:      atomic.LoadInt64(&c.rateLimited),
		Errors:           errs,
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// addFloat64 atomically adds delta to the float64 stored in addr.
func addFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

func loadFloat64(addr *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(addr))
}

// formatDuration renders d compactly, e.g. "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
