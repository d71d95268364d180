package upload

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/audit"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
	"github.com/reportbrief/reportbrief/internal/store"
	"github.com/reportbrief/reportbrief/internal/testutil"
)

type failingFinder struct{}

func (failingFinder) FindReportsByTitle(context.Context, string, string) ([]*model.Report, error) {
	return nil, errors.New("connection reset")
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	rec := audit.NewRecorder(st, zerolog.Nop(), nil)
	return NewService(st, rec, nil, zerolog.Nop()), st
}

func TestSuffixedTitle(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 123_000_000, time.UTC)
	tests := []struct {
		in, want string
	}{
		{"deals.csv", "deals_20261016-093000.123.csv"},
		{"DEALS.CSV", "DEALS_20261016-093000.123.CSV"},
		{"export", "export_20261016-093000.123"},
		{".csv", "_20261016-093000.123.csv"},
	}
	for _, tt := range tests {
		if got := SuffixedTitle(tt.in, at); got != tt.want {
			t.Errorf("SuffixedTitle(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSuffixedTitle_Sortable(t *testing.T) {
	a := SuffixedTitle("x.csv", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	b := SuffixedTitle("x.csv", time.Date(2026, 1, 2, 3, 4, 5, 1_000_000, time.UTC))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
}

func TestResolve_LookupFailureProceeds(t *testing.T) {
	r := NewResolver(failingFinder{}, zerolog.Nop())
	res := r.Resolve(context.Background(), "user-1", "deals.csv", false)
	if res.Outcome != OutcomeCreated || res.Title != "deals.csv" {
		t.Errorf("got %+v, want created with literal title", res)
	}
}

func TestUpload_Fresh(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV)})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Errorf("Outcome: got %s", res.Outcome)
	}
	r := res.Report
	if r.Title != "deals.csv" || r.RowCount != 2 || len(r.Columns) != 4 || r.Status != model.StatusParsed {
		t.Errorf("report: %+v", r)
	}

	sample, err := st.GetRowSample(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRowSample: %v", err)
	}
	if len(sample.Rows) != 2 {
		t.Errorf("sample rows: got %d, want 2", len(sample.Rows))
	}

	events, _ := st.ListAuditEvents(ctx, "user-1", 10)
	if len(events) != 1 || events[0].EventType != model.EventReportUploaded {
		t.Errorf("audit events: %+v", events)
	}
}

func TestUpload_DefaultFilename(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.Upload(context.Background(), Request{UserID: "user-1", Body: strings.NewReader(testutil.DealsCSV)})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Report.Title != DefaultFilename {
		t.Errorf("Title: got %q, want %q", res.Report.Title, DefaultFilename)
	}
}

func TestUpload_SamplesAreCapped(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "big.csv", Body: strings.NewReader(testutil.LargeCSV(500))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Report.RowCount != 500 {
		t.Errorf("RowCount: got %d, want 500", res.Report.RowCount)
	}
	sample, _ := st.GetRowSample(ctx, res.Report.ID)
	if len(sample.Rows) != model.MaxSampleRows {
		t.Errorf("sample rows: got %d, want %d", len(sample.Rows), model.MaxSampleRows)
	}
}

func TestUpload_NoUsableRows(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "empty.csv", Body: strings.NewReader("Amount,Stage\n\n")})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	list, _ := st.ListReports(ctx, "user-1", 0, 0)
	if len(list) != 0 {
		t.Errorf("expected nothing persisted, got %d reports", len(list))
	}
}

func TestUpload_DuplicateConflict(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV)})
	if err != nil {
		t.Fatalf("first Upload: %v", err)
	}

	_, err = svc.Upload(ctx, Request{UserID: "user-1", Filename: "Deals.CSV", Body: strings.NewReader(testutil.DealsCSV)})
	var ce *model.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Existing == nil || ce.Existing.ID != first.Report.ID || ce.Existing.Title != "deals.csv" {
		t.Errorf("Existing: %+v", ce.Existing)
	}

	list, _ := st.ListReports(ctx, "user-1", 0, 0)
	if len(list) != 1 {
		t.Errorf("reports: got %d, want 1", len(list))
	}
}

func TestUpload_ForceNew(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV)}); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	res, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV), ForceNew: true})
	if err != nil {
		t.Fatalf("forced Upload: %v", err)
	}
	if res.Outcome != OutcomeCreatedWithSuffix {
		t.Errorf("Outcome: got %s", res.Outcome)
	}
	if res.Report.Title == "deals.csv" || !strings.HasPrefix(res.Report.Title, "deals_") || !strings.HasSuffix(res.Report.Title, ".csv") {
		t.Errorf("Title: got %q", res.Report.Title)
	}

	list, _ := st.ListReports(ctx, "user-1", 0, 0)
	if len(list) != 2 {
		t.Errorf("reports: got %d, want 2", len(list))
	}
}

func TestUpload_TitlesScopedPerOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, user := range []string{"user-1", "user-2"} {
		res, err := svc.Upload(ctx, Request{UserID: user, Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV)})
		if err != nil {
			t.Fatalf("Upload for %s: %v", user, err)
		}
		if res.Outcome != OutcomeCreated {
			t.Errorf("%s: Outcome %s", user, res.Outcome)
		}
	}
}

type failingCreateStore struct {
	*store.Store
}

func (failingCreateStore) CreateReport(context.Context, *model.Report, *model.RowSample) error {
	return errors.New("disk full")
}

func TestUpload_StoreFailureRecordsError(t *testing.T) {
	st := testutil.NewTestStore(t)
	rec := audit.NewRecorder(st, zerolog.Nop(), nil)
	svc := NewService(failingCreateStore{st}, rec, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Upload(ctx, Request{UserID: "user-1", Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV)})
	var perr *model.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *model.PersistenceError, got %T: %v", err, err)
	}

	events, err := st.ListAuditEvents(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1", len(events))
	}
	ev := events[0]
	if ev.EventType != model.EventError || ev.Payload["operation"] != "upload" || ev.Payload["error"] != "disk full" {
		t.Errorf("event: got %+v", ev)
	}
	if ev.Payload["title"] != "deals.csv" {
		t.Errorf("expected title in payload, got %v", ev.Payload)
	}
}

func TestUpload_DuplicateCounters(t *testing.T) {
	st := testutil.NewTestStore(t)
	collector := metrics.NewCollector()
	svc := NewService(st, audit.NewRecorder(st, zerolog.Nop(), nil), collector, zerolog.Nop())
	ctx := context.Background()

	upload := func(force bool) {
		svc.Upload(ctx, Request{UserID: "user-1", Filename: "deals.csv", Body: strings.NewReader(testutil.DealsCSV), ForceNew: force})
	}
	upload(false)
	upload(false) // 409
	upload(true)

	stats := collector.Stats()
	if stats.Uploads != 2 || stats.UploadConflicts != 1 || stats.UploadSuffixed != 1 {
		t.Errorf("got uploads=%d conflicts=%d suffixed=%d, want 2/1/1",
			stats.Uploads, stats.UploadConflicts, stats.UploadSuffixed)
	}
}
