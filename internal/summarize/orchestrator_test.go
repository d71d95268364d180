package summarize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/audit"
	"github.com/reportbrief/reportbrief/internal/lock"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
	"github.com/reportbrief/reportbrief/internal/store"
	"github.com/reportbrief/reportbrief/internal/summarizer"
	"github.com/reportbrief/reportbrief/internal/testutil"
)

// stubSummarizer returns a fixed result, an error, or blocks.
type stubSummarizer struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	gotRows int
	calls   int
}

func (s *stubSummarizer) Name() string { return "stub" }

func (s *stubSummarizer) Summarize(ctx context.Context, in summarizer.Input) (*summarizer.Output, error) {
	s.mu.Lock()
	s.calls++
	s.gotRows = len(in.Rows)
	s.mu.Unlock()

	if s.block != nil {
		<-s.block // ignores ctx on purpose
	}
	if s.err != nil {
		return nil, s.err
	}
	return &summarizer.Output{
		Result: model.SummaryResult{
			Summary:         "Two deals.",
			Metrics:         []string{"Total: 300"},
			Trends:          []string{},
			Recommendations: []string{},
		},
		Model:      "stub-model",
		TokensUsed: 99,
	}, nil
}

type failingSink struct{}

func (failingSink) InsertAuditEvent(context.Context, *model.AuditEvent) error {
	return errors.New("audit store offline")
}

func newTestOrchestrator(t *testing.T, s summarizer.Summarizer, opts Options) (*Orchestrator, *store.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	rec := audit.NewRecorder(st, zerolog.Nop(), nil)
	return New(st, s, lock.NewLocal(), rec, metrics.NewCollector(), zerolog.Nop(), opts), st
}

func countEvents(t *testing.T, st *store.Store, userID string, et model.EventType) int {
	t.Helper()
	n, err := st.CountAuditEvents(context.Background(), userID, et, time.Time{})
	if err != nil {
		t.Fatalf("CountAuditEvents: %v", err)
	}
	return n
}

func TestSummarize_Success(t *testing.T) {
	stub := &stubSummarizer{}
	o, st := newTestOrchestrator(t, stub, Options{})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	sum, err := o.Summarize(context.Background(), report.ID, "user-1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.ID == "" || sum.Model != "stub-model" || sum.TokensUsed != 99 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if stub.gotRows != 2 {
		t.Errorf("rows passed to summarizer: got %d, want 2", stub.gotRows)
	}

	got, err := st.GetReport(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Status != model.StatusSummarized || got.SummaryID != sum.ID {
		t.Errorf("report: status=%s summary_id=%s, want summarized/%s", got.Status, got.SummaryID, sum.ID)
	}
	if n := countEvents(t, st, "user-1", model.EventReportSummarized); n != 1 {
		t.Errorf("report_summarized events: got %d, want 1", n)
	}
}

func TestSummarize_TwiceKeepsBothSummaries(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubSummarizer{}, Options{})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	first, err := o.Summarize(context.Background(), report.ID, "user-1")
	if err != nil {
		t.Fatalf("first Summarize: %v", err)
	}
	second, err := o.Summarize(context.Background(), report.ID, "user-1")
	if err != nil {
		t.Fatalf("second Summarize: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct summary ids")
	}

	got, _ := st.GetReport(context.Background(), report.ID)
	if got.SummaryID != second.ID {
		t.Errorf("summary_id: got %s, want second %s", got.SummaryID, second.ID)
	}
	n, err := st.CountSummaries(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("CountSummaries: %v", err)
	}
	if n != 2 {
		t.Errorf("summaries: got %d, want 2", n)
	}
}

func TestSummarize_CapsSampleRows(t *testing.T) {
	stub := &stubSummarizer{}
	o, st := newTestOrchestrator(t, stub, Options{SampleRows: 1})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	if _, err := o.Summarize(context.Background(), report.ID, "user-1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if stub.gotRows != 1 {
		t.Errorf("rows passed: got %d, want 1", stub.gotRows)
	}
}

func TestSummarize_UpstreamFailureMarksFailed(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubSummarizer{err: errors.New("model overloaded")}, Options{})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	_, err := o.Summarize(context.Background(), report.ID, "user-1")
	var upErr *model.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *model.UpstreamError, got %T: %v", err, err)
	}
	if upErr.Timeout {
		t.Error("plain failure should not be flagged as timeout")
	}

	got, _ := st.GetReport(context.Background(), report.ID)
	if got.Status != model.StatusFailed || got.SummaryID != "" {
		t.Errorf("report: status=%s summary_id=%q, want failed with no summary", got.Status, got.SummaryID)
	}
	if n := countEvents(t, st, "user-1", model.EventReportFailed); n != 1 {
		t.Errorf("report_failed events: got %d, want 1", n)
	}
	if n := countEvents(t, st, "user-1", model.EventError); n != 1 {
		t.Errorf("error events: got %d, want 1", n)
	}
	events, _ := st.ListAuditEvents(context.Background(), "user-1", 10)
	for _, ev := range events {
		if ev.EventType == model.EventError && (ev.Payload["operation"] != "summarize" || ev.Payload["report_id"] != report.ID) {
			t.Errorf("error event payload: got %v", ev.Payload)
		}
	}
	if n := countEvents(t, st, "user-1", model.EventReportSummarized); n != 0 {
		t.Errorf("failed run must not count toward quota, got %d events", n)
	}
}

func TestSummarize_Timeout(t *testing.T) {
	stub := &stubSummarizer{block: make(chan struct{})}
	defer close(stub.block)

	o, st := newTestOrchestrator(t, stub, Options{Timeout: 50 * time.Millisecond})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	start := time.Now()
	_, err := o.Summarize(context.Background(), report.ID, "user-1")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Summarize did not honour the wait bound: %v", elapsed)
	}

	var upErr *model.UpstreamError
	if !errors.As(err, &upErr) || !upErr.Timeout {
		t.Fatalf("expected timeout UpstreamError, got %v", err)
	}
	got, _ := st.GetReport(context.Background(), report.ID)
	if got.Status != model.StatusFailed {
		t.Errorf("status: got %s, want failed", got.Status)
	}
}

func TestSummarize_CallerCancellationIgnored(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubSummarizer{}, Options{})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Summarize(ctx, report.ID, "user-1"); err != nil {
		t.Fatalf("Summarize with cancelled caller: %v", err)
	}
}

func TestSummarize_AuditOutageStillSucceeds(t *testing.T) {
	st := testutil.NewTestStore(t)
	collector := metrics.NewCollector()
	rec := audit.NewRecorder(failingSink{}, zerolog.Nop(), collector)
	o := New(st, &stubSummarizer{}, nil, rec, collector, zerolog.Nop(), Options{})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	sum, err := o.Summarize(context.Background(), report.ID, "user-1")
	if err != nil {
		t.Fatalf("Summarize should succeed despite audit failure: %v", err)
	}
	if sum.ID == "" {
		t.Error("expected a summary id")
	}
	if collector.Stats().AuditDropped == 0 {
		t.Error("dropped audit write should be counted")
	}
}

func TestSummarize_Errors(t *testing.T) {
	o, st := newTestOrchestrator(t, &stubSummarizer{}, Options{})
	report := testutil.SeedReport(t, st, "owner", "deals.csv")

	tests := []struct {
		name     string
		reportID string
		userID   string
		check    func(error) bool
	}{
		{"missing id", "", "owner", func(err error) bool {
			var e *model.ValidationError
			return errors.As(err, &e)
		}},
		{"unknown report", "nope", "owner", func(err error) bool {
			var e *model.NotFoundError
			return errors.As(err, &e)
		}},
		{"other user's report", report.ID, "intruder", func(err error) bool {
			var e *model.NotFoundError
			return errors.As(err, &e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Summarize(context.Background(), tt.reportID, tt.userID)
			if !tt.check(err) {
				t.Errorf("unexpected error: %T %v", err, err)
			}
		})
	}

	got, _ := st.GetReport(context.Background(), report.ID)
	if got.Status != model.StatusParsed {
		t.Errorf("rejected calls must not touch the report, status=%s", got.Status)
	}
}

func TestSummarize_ConcurrentCallRejected(t *testing.T) {
	stub := &stubSummarizer{block: make(chan struct{})}
	o, st := newTestOrchestrator(t, stub, Options{Timeout: 5 * time.Second})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.Summarize(context.Background(), report.ID, "user-1")
		firstDone <- err
	}()

	// Wait for the first call to reach the summarizer.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stub.mu.Lock()
		calls := stub.calls
		stub.mu.Unlock()
		if calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first call never reached the summarizer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := o.Summarize(context.Background(), report.ID, "user-1")
	var conflict *model.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("expected *model.ConflictError, got %v", err)
	}

	close(stub.block)
	if err := <-firstDone; err != nil {
		t.Errorf("first call: %v", err)
	}
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func (brokenLocker) Close() error { return nil }

func TestSummarize_LockBackendFailureProceeds(t *testing.T) {
	st := testutil.NewTestStore(t)
	o := New(st, &stubSummarizer{}, brokenLocker{}, nil, nil, zerolog.Nop(), Options{})
	report := testutil.SeedReport(t, st, "user-1", "deals.csv")

	if _, err := o.Summarize(context.Background(), report.ID, "user-1"); err != nil {
		t.Fatalf("Summarize should proceed without the guard: %v", err)
	}
}
