package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/audit"
	"github.com/reportbrief/reportbrief/internal/auth"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
	"github.com/reportbrief/reportbrief/internal/quota"
	"github.com/reportbrief/reportbrief/internal/summarize"
	"github.com/reportbrief/reportbrief/internal/tracing"
	"github.com/reportbrief/reportbrief/internal/upload"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// maxMultipartMemory is the part of a multipart body kept in memory
	// before spilling to temporary files.
	maxMultipartMemory = 8 << 20

	maxEventBody = 64 << 10
)

// ReportReader is the read side the dashboard endpoints need.
type ReportReader interface {
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, userID string, limit, offset int) ([]*model.Report, error)
	GetRowSample(ctx context.Context, reportID string) (*model.RowSample, error)
	GetSummary(ctx context.Context, id string) (*model.Summary, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Handler serves.
type Deps struct {
	Reports      ReportReader
	Uploads      *upload.Service
	Summaries    *summarize.Orchestrator
	Quota        *quota.Engine
	Recorder     *audit.Recorder
	Verifier     *auth.Verifier
	Collector    *metrics.Collector
	Limiter      *RateLimiter
	Logger       zerolog.Logger
	MaxUpload    int64
	EnforceQuota bool
}

// Handler implements the HTTP endpoints.
type Handler struct {
	reports      ReportReader
	uploads      *upload.Service
	summaries    *summarize.Orchestrator
	quota        *quota.Engine
	recorder     *audit.Recorder
	verifier     *auth.Verifier
	collector    *metrics.Collector
	limiter      *RateLimiter
	logger       zerolog.Logger
	maxUpload    int64
	enforceQuota bool
}

// NewHandler returns a Handler over d.
func NewHandler(d Deps) *Handler {
	return &Handler{
		reports:      d.Reports,
		uploads:      d.Uploads,
		summaries:    d.Summaries,
		quota:        d.Quota,
		recorder:     d.Recorder,
		verifier:     d.Verifier,
		collector:    d.Collector,
		limiter:      d.Limiter,
		logger:       d.Logger.With().Str("component", "api").Logger(),
		maxUpload:    d.MaxUpload,
		enforceQuota: d.EnforceQuota,
	}
}

func (h *Handler) requestLogger(r *http.Request, userID string) zerolog.Logger {
	return h.logger.With().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Str("user_id", userID).
		Logger()
}

// callerID returns the authenticated user. The auth middleware guarantees
// one on every route that calls this.
func callerID(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}

// HandleUpload accepts a multipart CSV in the "file" field. A "forceNew"
// field of "true" stores a colliding title under a suffixed name instead of
// reporting the conflict.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	logger := h.requestLogger(r, userID)
	ctx, span := tracing.StartWorkflowSpan(r.Context(), "upload", userID)
	defer span.End()

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, model.KindValidation, "File too large")
			return
		}
		logger.Debug().Err(err).Msg("failed to parse multipart form")
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "No file uploaded")
		return
	}
	defer file.Close()

	res, err := h.uploads.Upload(ctx, upload.Request{
		UserID:   userID,
		Filename: header.Filename,
		Body:     file,
		ForceNew: strings.EqualFold(r.FormValue("forceNew"), "true"),
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		writeError(w, err, logger, h.collector)
		return
	}
	tracing.SetReportAttributes(ctx, res.Report.ID, string(res.Report.Status))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"reportId":    res.Report.ID,
		"rowCount":    res.Report.RowCount,
		"columnCount": len(res.Report.Columns),
		"title":       res.Report.Title,
		"outcome":     string(res.Outcome),
	})
}

type summarizeRequest struct {
	ReportID string `json:"reportId"`
}

// HandleSummarize generates a summary for one of the caller's reports.
func (h *Handler) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	logger := h.requestLogger(r, userID)

	var req summarizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ReportID) == "" {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "Missing reportId")
		return
	}

	if h.enforceQuota && h.quota != nil {
		if err := h.quota.CanSummarize(r.Context(), userID).Err(); err != nil {
			logger.Info().Str("report_id", req.ReportID).Msg("summarize denied by quota")
			writeError(w, err, logger, h.collector)
			return
		}
	}

	sum, err := h.summaries.Summarize(r.Context(), req.ReportID, userID)
	if err != nil {
		writeError(w, err, logger, h.collector)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"summary":   sum.Result,
		"summaryId": sum.ID,
	})
}

// HandleUsageCheck reports whether the caller may summarize now. A denial
// is still a 200: the decision is the payload.
func (h *Handler) HandleUsageCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quota.CanSummarize(r.Context(), callerID(r)))
}

// HandleUsage returns the caller's usage for the current month.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quota.GetUsage(r.Context(), callerID(r)))
}

type logEventRequest struct {
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
}

// HandleLogEvent records a client-side audit event for the caller. The type
// must be known and not one written by the report workflows. Storage
// failures are swallowed by the recorder.
func (h *Handler) HandleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.EventType) == "" {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "eventType is required")
		return
	}
	eventType := model.EventType(strings.TrimSpace(req.EventType))
	if !eventType.Valid() {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "Unknown eventType: "+string(eventType))
		return
	}
	if eventType.ServerOnly() {
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, "eventType "+string(eventType)+" cannot be logged by clients")
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	h.recorder.Record(r.Context(), eventType, callerID(r), req.Payload)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleListReports lists the caller's reports, newest first.
func (h *Handler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	logger := h.requestLogger(r, userID)

	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	reports, err := h.reports.ListReports(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, &model.PersistenceError{Op: "list reports", Err: err}, logger, h.collector)
		return
	}
	if reports == nil {
		reports = []*model.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// HandleGetReport returns one report with its row sample and, when it has
// been summarized, its current summary. Reports of other users are
// reported as not found.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	logger := h.requestLogger(r, userID)
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	report, err := h.reports.GetReport(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = &model.NotFoundError{Resource: "report", ID: id}
		} else {
			err = &model.PersistenceError{Op: "load report", Err: err}
		}
		writeError(w, err, logger, h.collector)
		return
	}
	if report.UserID != userID {
		writeError(w, &model.NotFoundError{Resource: "report", ID: id}, logger, h.collector)
		return
	}

	resp := map[string]any{"report": report}

	sample, err := h.reports.GetRowSample(ctx, id)
	switch {
	case err == nil:
		resp["sample"] = sample.Rows
	case errors.Is(err, sql.ErrNoRows):
		resp["sample"] = []*model.Row{}
	default:
		writeError(w, &model.PersistenceError{Op: "load row sample", Err: err}, logger, h.collector)
		return
	}

	if report.SummaryID != "" {
		sum, err := h.reports.GetSummary(ctx, report.SummaryID)
		if err != nil {
			logger.Warn().Err(err).Str("summary_id", report.SummaryID).Msg("report points at unreadable summary")
		} else {
			resp["summary"] = sum
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth reports whether the store is reachable.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.reports != nil {
		if err := h.reports.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
