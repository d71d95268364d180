// Package upload accepts CSV uploads: it parses them, resolves duplicate
// titles per owner and persists a Report together with its RowSample.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/audit"
	"github.com/reportbrief/reportbrief/internal/ingest"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
)

// DefaultFilename is used when the upload carries no filename.
const DefaultFilename = "report.csv"

// Store is the persistence the upload workflow needs.
type Store interface {
	ReportFinder
	CreateReport(ctx context.Context, r *model.Report, sample *model.RowSample) error
}

// Request is one upload.
type Request struct {
	UserID   string
	Filename string
	Body     io.Reader
	ForceNew bool
}

// Result describes a created report.
type Result struct {
	Report  *model.Report
	Outcome Outcome
}

// Service runs the upload workflow.
type Service struct {
	store      Store
	resolver   *Resolver
	recorder   *audit.Recorder
	collector  *metrics.Collector
	logger     zerolog.Logger
	sampleRows int
}

// NewService wires an upload Service. recorder and collector may be nil.
func NewService(store Store, recorder *audit.Recorder, collector *metrics.Collector, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "upload").Logger()
	return &Service{
		store:      store,
		resolver:   NewResolver(store, logger),
		recorder:   recorder,
		collector:  collector,
		logger:     logger,
		sampleRows: model.MaxSampleRows,
	}
}

// Upload parses req.Body and stores it as a new report.
//
// It returns a *model.ValidationError when the CSV has no usable rows, a
// *model.ConflictError carrying the existing report when the title is taken
// and ForceNew is unset, and a *model.PersistenceError when the write fails.
func (s *Service) Upload(ctx context.Context, req Request) (*Result, error) {
	title := req.Filename
	if title == "" {
		title = DefaultFilename
	}

	parsed, err := ingest.Parse(req.Body)
	if err != nil {
		if errors.Is(err, ingest.ErrNoUsableRows) {
			return nil, &model.ValidationError{Message: "CSV contains no usable rows"}
		}
		return nil, &model.ValidationError{Message: fmt.Sprintf("invalid CSV: %v", err)}
	}

	res := s.resolver.Resolve(ctx, req.UserID, title, req.ForceNew)
	if res.Outcome == OutcomeReused {
		s.collector.RecordUploadConflict()
		return nil, &model.ConflictError{
			Message:  fmt.Sprintf("A report named %q already exists", res.Existing.Title),
			Existing: res.Existing,
		}
	}

	report := &model.Report{
		UserID:   req.UserID,
		Title:    res.Title,
		RowCount: len(parsed.Rows),
		Columns:  parsed.Columns,
		Status:   model.StatusParsed,
	}
	sample := &model.RowSample{Rows: ingest.Sample(parsed.Rows, s.sampleRows)}

	err = s.recorder.Track(ctx, req.UserID, "upload", map[string]any{"title": res.Title}, func(ctx context.Context) error {
		return s.store.CreateReport(ctx, report, sample)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Str("title", res.Title).Msg("failed to create report")
		return nil, &model.PersistenceError{Op: "create report", Err: err}
	}

	s.collector.RecordUpload()
	if res.Outcome == OutcomeCreatedWithSuffix {
		s.collector.RecordUploadSuffixed()
	}
	s.recorder.Record(ctx, model.EventReportUploaded, req.UserID, map[string]any{
		"report_id": report.ID,
		"title":     report.Title,
		"num_rows":  report.RowCount,
		"outcome":   string(res.Outcome),
	})

	s.logger.Info().
		Str("user_id", req.UserID).
		Str("report_id", report.ID).
		Int("rows", report.RowCount).
		Str("outcome", string(res.Outcome)).
		Msg("report uploaded")

	return &Result{Report: report, Outcome: res.Outcome}, nil
}
