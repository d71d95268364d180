// Package summarize runs the summarization workflow for a stored report:
// fetch its row sample, call the summarizer, persist the Summary and point
// the Report at it, or mark the Report failed.
//
// Calling Summarize twice for one report stores two summaries and leaves
// the report pointing at the second. Superseded summaries are kept.
package summarize

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/audit"
	"github.com/reportbrief/reportbrief/internal/ingest"
	"github.com/reportbrief/reportbrief/internal/lock"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
	"github.com/reportbrief/reportbrief/internal/summarizer"
	"github.com/reportbrief/reportbrief/internal/tracing"
)

// DefaultTimeout bounds a single summarizer call.
const DefaultTimeout = 30 * time.Second

// DefaultLockTTL is how long a per-report guard survives a crashed holder.
const DefaultLockTTL = 90 * time.Second

// Store is the persistence the workflow needs.
type Store interface {
	GetReport(ctx context.Context, id string) (*model.Report, error)
	GetRowSample(ctx context.Context, reportID string) (*model.RowSample, error)
	InsertSummary(ctx context.Context, sum *model.Summary) error
	MarkReportSummarized(ctx context.Context, reportID, summaryID string) error
	MarkReportFailed(ctx context.Context, reportID string) error
}

// Options tunes an Orchestrator. Zero values take defaults.
type Options struct {
	Timeout    time.Duration
	SampleRows int
	LockTTL    time.Duration
}

// Orchestrator runs summarizations.
type Orchestrator struct {
	store      Store
	summarizer summarizer.Summarizer
	locker     lock.Locker
	recorder   *audit.Recorder
	collector  *metrics.Collector
	logger     zerolog.Logger

	timeout    time.Duration
	sampleRows int
	lockTTL    time.Duration
}

// New returns an Orchestrator. locker, recorder and collector may be nil.
func New(store Store, s summarizer.Summarizer, locker lock.Locker, recorder *audit.Recorder, collector *metrics.Collector, logger zerolog.Logger, opts Options) *Orchestrator {
	if locker == nil {
		locker = lock.Nop{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SampleRows <= 0 || opts.SampleRows > model.MaxSampleRows {
		opts.SampleRows = model.MaxSampleRows
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &Orchestrator{
		store:      store,
		summarizer: s,
		locker:     locker,
		recorder:   recorder,
		collector:  collector,
		logger:     logger.With().Str("component", "summarize").Logger(),
		timeout:    opts.Timeout,
		sampleRows: opts.SampleRows,
		lockTTL:    opts.LockTTL,
	}
}

// Summarize summarizes reportID on behalf of userID.
//
// Errors:
//   - *model.ValidationError: empty reportID
//   - *model.NotFoundError: no such report for userID, or no row sample
//   - *model.ConflictError: another summarization of the report is running
//   - *model.UpstreamError: the summarizer failed or exceeded its wait bound
//   - *model.PersistenceError: a store read or write failed
//
// Upstream and persistence failures after the sample is fetched mark the
// report failed. The caller's cancellation is not propagated: once started,
// the workflow runs to completion or to the summarizer timeout.
func (o *Orchestrator) Summarize(ctx context.Context, reportID, userID string) (*model.Summary, error) {
	ctx, span := tracing.StartWorkflowSpan(ctx, "summarize", userID)
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	if reportID == "" {
		return nil, &model.ValidationError{Message: "Missing reportId"}
	}

	logger := o.logger.With().Str("report_id", reportID).Str("user_id", userID).Logger()

	report, err := o.store.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &model.NotFoundError{Resource: "report", ID: reportID}
		}
		return nil, &model.PersistenceError{Op: "get report", Err: err}
	}
	// Reports owned by someone else are reported as missing.
	if report.UserID != userID {
		return nil, &model.NotFoundError{Resource: "report", ID: reportID}
	}

	release, err := o.acquire(ctx, reportID, logger)
	if err != nil {
		return nil, err
	}
	defer release()

	sample, err := o.store.GetRowSample(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &model.NotFoundError{Resource: "row sample", ID: reportID}
		}
		return nil, &model.PersistenceError{Op: "get row sample", Err: err}
	}

	start := time.Now()
	var sum *model.Summary
	err = o.recorder.Track(ctx, userID, "summarize", map[string]any{"report_id": reportID}, func(ctx context.Context) error {
		var err error
		sum, err = o.generate(ctx, report, sample)
		return err
	})
	if err != nil {
		o.fail(ctx, report, userID, err, logger)
		return nil, err
	}

	o.collector.RecordSummary(time.Since(start), sum.TokensUsed)
	o.recorder.Record(ctx, model.EventReportSummarized, userID, map[string]any{
		"report_id":   reportID,
		"summary_id":  sum.ID,
		"model":       sum.Model,
		"tokens_used": sum.TokensUsed,
	})
	tracing.SetReportAttributes(ctx, reportID, string(model.StatusSummarized))
	tracing.SetSummaryAttributes(ctx, sum.ID, sum.Model, sum.TokensUsed)

	logger.Info().
		Str("summary_id", sum.ID).
		Str("model", sum.Model).
		Int("tokens", sum.TokensUsed).
		Dur("elapsed", time.Since(start)).
		Msg("report summarized")

	return sum, nil
}

// generate calls the summarizer and stores a new summary as the report's
// active one.
func (o *Orchestrator) generate(ctx context.Context, report *model.Report, sample *model.RowSample) (*model.Summary, error) {
	out, err := o.call(ctx, report, sample)
	if err != nil {
		return nil, err
	}

	sum := &model.Summary{
		ReportID:   report.ID,
		UserID:     report.UserID,
		Result:     out.Result,
		Model:      out.Model,
		TokensUsed: out.TokensUsed,
	}
	if err := o.store.InsertSummary(ctx, sum); err != nil {
		return nil, &model.PersistenceError{Op: "insert summary", Err: err}
	}
	if err := o.store.MarkReportSummarized(ctx, report.ID, sum.ID); err != nil {
		return nil, &model.PersistenceError{Op: "update report status", Err: err}
	}
	return sum, nil
}

// acquire takes the per-report guard. A guard backend failure is logged and
// the workflow proceeds unguarded.
func (o *Orchestrator) acquire(ctx context.Context, reportID string, logger zerolog.Logger) (func(), error) {
	release, ok, err := o.locker.Acquire(ctx, lock.Key(reportID), o.lockTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("summarize guard unavailable, proceeding without it")
		return func() {}, nil
	}
	if !ok {
		return nil, &model.ConflictError{Message: "A summary for this report is already being generated"}
	}
	return release, nil
}

type callResult struct {
	out *summarizer.Output
	err error
}

// call invokes the summarizer under the wait bound. A reply arriving after
// the bound is discarded.
func (o *Orchestrator) call(ctx context.Context, report *model.Report, sample *model.RowSample) (*summarizer.Output, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	in := summarizer.Input{
		Columns: report.Columns,
		Rows:    ingest.Sample(sample.Rows, o.sampleRows),
	}

	done := o.collector.SummarizeStarted()
	defer done()

	ch := make(chan callResult, 1)
	go func() {
		out, err := o.summarizer.Summarize(callCtx, in)
		ch <- callResult{out: out, err: err}
	}()

	var res callResult
	select {
	case res = <-ch:
	case <-callCtx.Done():
		res = callResult{err: callCtx.Err()}
	}

	if res.err == nil && res.out == nil {
		res.err = errors.New("summarizer returned no output")
	}
	if res.err != nil {
		timeout := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		o.collector.RecordSummaryFailure(timeout)
		return nil, &model.UpstreamError{Err: res.err, Timeout: timeout}
	}
	return res.out, nil
}

// fail marks the report failed and records report_failed. The error event
// itself is written by Track. Neither step can replace cause as the error
// the caller sees.
func (o *Orchestrator) fail(ctx context.Context, report *model.Report, userID string, cause error, logger zerolog.Logger) {
	tracing.RecordError(ctx, cause)
	tracing.SetReportAttributes(ctx, report.ID, string(model.StatusFailed))

	if err := o.store.MarkReportFailed(ctx, report.ID); err != nil {
		logger.Error().Err(err).Msg("failed to mark report failed")
	}

	logger.Error().Err(cause).Msg("summarization failed")
	o.recorder.Record(ctx, model.EventReportFailed, userID, map[string]any{
		"report_id": report.ID,
		"error":     cause.Error(),
	})
}
