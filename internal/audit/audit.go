// Package audit records best-effort business events. Recording never fails
// the caller: write errors and panics are logged, counted and dropped.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
)

// DefaultWriteTimeout bounds a single audit write.
const DefaultWriteTimeout = 5 * time.Second

// Sink persists audit events.
type Sink interface {
	InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error
}

// Safe runs fn and swallows its outcome. An error or a panic is logged with
// op and reported as false.
func Safe(logger zerolog.Logger, op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("op", op).Interface("panic", r).Msg("recovered panic in best-effort operation")
			ok = false
		}
	}()
	if err := fn(); err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("best-effort operation failed")
		return false
	}
	return true
}

// Recorder writes audit events to a Sink.
type Recorder struct {
	sink      Sink
	logger    zerolog.Logger
	collector *metrics.Collector
	timeout   time.Duration
}

// NewRecorder returns a Recorder. collector may be nil.
func NewRecorder(sink Sink, logger zerolog.Logger, collector *metrics.Collector) *Recorder {
	return &Recorder{
		sink:      sink,
		logger:    logger.With().Str("component", "audit").Logger(),
		collector: collector,
		timeout:   DefaultWriteTimeout,
	}
}

// Record appends an event. It returns nothing: a failed write is logged and
// counted as dropped. The write is detached from ctx's cancellation so that
// events for already-finished requests still land.
func (r *Recorder) Record(ctx context.Context, eventType model.EventType, userID string, payload map[string]any) {
	if r == nil || r.sink == nil {
		return
	}
	ev := &model.AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Payload:   payload,
	}

	logger := r.logger.With().Str("event_type", string(eventType)).Str("user_id", userID).Logger()
	ok := Safe(logger, "audit.record", func() error {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.sink.InsertAuditEvent(wctx, ev)
	})
	r.collector.RecordAudit(ok)
}

// Error records an "error" event whose payload is extra plus the message.
func (r *Recorder) Error(ctx context.Context, userID, message string, extra map[string]any) {
	payload := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		payload[k] = v
	}
	payload["error"] = message
	r.Record(ctx, model.EventError, userID, payload)
}

// Track runs fn and, when it fails, records an "error" event naming op
// with extra merged into the payload. fn's error is returned unchanged.
func (r *Recorder) Track(ctx context.Context, userID, op string, extra map[string]any, fn func(context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		payload := make(map[string]any, len(extra)+1)
		for k, v := range extra {
			payload[k] = v
		}
		payload["operation"] = op
		r.Error(ctx, userID, err.Error(), payload)
	}
	return err
}
