package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector()

	stats := c.Stats()
	if stats.Uploads != 0 || stats.Summaries != 0 {
		t.Errorf("expected zero counters, got %+v", stats)
	}
	if stats.Uptime == "" {
		t.Error("Uptime is empty")
	}
}

func TestCollector_Summaries(t *testing.T) {
	c := NewCollector()

	done := c.SummarizeStarted()
	if got := c.Stats().ActiveSummaries; got != 1 {
		t.Errorf("ActiveSummaries: got %d, want 1", got)
	}
	c.RecordSummary(2*time.Second, 300)
	done()

	c.RecordSummary(4*time.Second, 100)
	c.RecordSummaryFailure(true)

	stats := c.Stats()
	if stats.ActiveSummaries != 0 {
		t.Errorf("ActiveSummaries: got %d, want 0", stats.ActiveSummaries)
	}
	if stats.Summaries != 2 || stats.SummaryTokens != 400 {
		t.Errorf("Summaries=%d SummaryTokens=%d", stats.Summaries, stats.SummaryTokens)
	}
	if stats.AvgSummarizeSecs != 3 {
		t.Errorf("AvgSummarizeSecs: got %f, want 3", stats.AvgSummarizeSecs)
	}
	if stats.SummaryFailures != 1 || stats.SummaryTimeouts != 1 {
		t.Errorf("failures=%d timeouts=%d", stats.SummaryFailures, stats.SummaryTimeouts)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RecordUpload()
	c.RecordAudit(false)
	c.RecordError("upstream")
	c.SummarizeStarted()()
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordQuotaCheck(false)
			c.RecordError("quota_exceeded")
		}()
	}
	wg.Wait()

	stats := c.Stats()
	if stats.QuotaDenials != 100 {
		t.Errorf("QuotaDenials: got %d, want 100", stats.QuotaDenials)
	}
	if stats.Errors["quota_exceeded"] != 100 {
		t.Errorf("Errors[quota_exceeded]: got %d, want 100", stats.Errors["quota_exceeded"])
	}
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollector()
	c.RecordUpload()
	c.RecordError("conflict")

	rec := httptest.NewRecorder()
	PrometheusHandler(c).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"reportbrief_uploads_total 1",
		`reportbrief_errors_total{kind="conflict"} 1`,
		"# TYPE reportbrief_active_summaries gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{50 * time.Hour, "2d 2h 0m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v): got %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestStatsHandler(t *testing.T) {
	c := NewCollector()
	c.RecordUploadConflict()

	rec := httptest.NewRecorder()
	StatsHandler(c).ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if stats.UploadConflicts != 1 {
		t.Errorf("UploadConflicts: got %d, want 1", stats.UploadConflicts)
	}
}
