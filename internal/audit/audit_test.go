package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
)

type memorySink struct {
	mu     sync.Mutex
	events []*model.AuditEvent
	err    error
	panic  bool
	ctxErr error
}

func (m *memorySink) InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error {
	if m.panic {
		panic("sink exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func TestRecord_Writes(t *testing.T) {
	sink := &memorySink{}
	collector := metrics.NewCollector()
	rec := NewRecorder(sink, zerolog.Nop(), collector)

	rec.Record(context.Background(), model.EventReportUploaded, "user-1", map[string]any{"report_id": "r1"})

	if len(sink.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.EventType != model.EventReportUploaded || ev.UserID != "user-1" || ev.Payload["report_id"] != "r1" {
		t.Errorf("event: got %+v", ev)
	}
	if got := collector.Stats().AuditRecorded; got != 1 {
		t.Errorf("AuditRecorded: got %d, want 1", got)
	}
}

func TestRecord_SwallowsFailures(t *testing.T) {
	tests := []struct {
		name string
		sink *memorySink
	}{
		{"error", &memorySink{err: errors.New("disk full")}},
		{"panic", &memorySink{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := metrics.NewCollector()
			rec := NewRecorder(tt.sink, zerolog.Nop(), collector)

			rec.Record(context.Background(), model.EventReportSummarized, "user-1", nil)

			if got := collector.Stats().AuditDropped; got != 1 {
				t.Errorf("AuditDropped: got %d, want 1", got)
			}
		})
	}
}

func TestRecord_DetachedFromCancellation(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, model.EventUserLogin, "user-1", nil)

	if len(sink.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(sink.events))
	}
	if sink.ctxErr != nil {
		t.Errorf("write context already done: %v", sink.ctxErr)
	}
}

func TestRecord_NilRecorder(t *testing.T) {
	var rec *Recorder
	rec.Record(context.Background(), model.EventError, "", nil)
}

func TestTrack(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink, zerolog.Nop(), nil)
	boom := errors.New("boom")

	err := rec.Track(context.Background(), "user-1", "summarize", map[string]any{"report_id": "r-1"}, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Track: got %v, want boom", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.EventType != model.EventError || ev.Payload["operation"] != "summarize" || ev.Payload["error"] != "boom" || ev.Payload["report_id"] != "r-1" {
		t.Errorf("event: got %+v", ev)
	}

	if err := rec.Track(context.Background(), "user-1", "noop", nil, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Track success: %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("success should not record, got %d events", len(sink.events))
	}
}

func TestSafe(t *testing.T) {
	if !Safe(zerolog.Nop(), "ok", func() error { return nil }) {
		t.Error("expected ok")
	}
	if Safe(zerolog.Nop(), "err", func() error { return errors.New("x") }) {
		t.Error("expected failure on error")
	}
	if Safe(zerolog.Nop(), "panic", func() error { panic("x") }) {
		t.Error("expected failure on panic")
	}
}
