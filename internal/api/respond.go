package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
)

// existingReport is the conflict payload a client uses to offer reuse.
type existingReport struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	SummaryID  *string   `json:"summary_id"` // null until summarized
	UploadedAt time.Time `json:"uploaded_at"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	data, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{"error": message, "kind": kind})
}

// writeError maps a workflow error onto a status code and JSON body.
// Unknown errors become a 500 whose message does not leak internals.
func writeError(w http.ResponseWriter, err error, logger zerolog.Logger, collector *metrics.Collector) {
	var (
		validation *model.ValidationError
		authErr    *model.AuthError
		notFound   *model.NotFoundError
		conflict   *model.ConflictError
		quota      *model.QuotaExceededError
		upstream   *model.UpstreamError
		persist    *model.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		collector.RecordError(model.KindValidation)
		writeJSONError(w, http.StatusBadRequest, model.KindValidation, validation.Message)

	case errors.As(err, &authErr):
		collector.RecordError(model.KindAuth)
		writeJSONError(w, http.StatusUnauthorized, model.KindAuth, "Unauthorised")

	case errors.As(err, &notFound):
		collector.RecordError(model.KindNotFound)
		writeJSONError(w, http.StatusNotFound, model.KindNotFound, notFound.Error())

	case errors.As(err, &conflict):
		collector.RecordError(model.KindConflict)
		body := map[string]any{
			"error":     conflict.Message,
			"kind":      model.KindConflict,
			"duplicate": conflict.Existing != nil,
		}
		if ex := conflict.Existing; ex != nil {
			body["existingReport"] = existingReport{
				ID:         ex.ID,
				Title:      ex.Title,
				Status:     string(ex.Status),
				SummaryID:  nullable(ex.SummaryID),
				UploadedAt: ex.UploadedAt,
			}
		}
		writeJSON(w, http.StatusConflict, body)

	case errors.As(err, &quota):
		collector.RecordError(model.KindQuotaExceeded)
		body := map[string]any{
			"error":   quota.Reason,
			"kind":    model.KindQuotaExceeded,
			"allowed": false,
			"reason":  quota.Reason,
		}
		if quota.Usage != nil {
			body["usage"] = quota.Usage
		}
		writeJSON(w, http.StatusTooManyRequests, body)

	case errors.As(err, &upstream):
		collector.RecordError(model.KindUpstream)
		msg := "Failed to generate summary"
		if upstream.Timeout {
			msg = "Summary generation timed out"
		}
		body := map[string]any{"error": msg, "kind": model.KindUpstream}
		if upstream.Err != nil {
			body["details"] = upstream.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)

	case errors.As(err, &persist):
		collector.RecordError(model.KindPersistence)
		logger.Error().Err(err).Str("op", persist.Op).Msg("persistence failure")
		writeJSONError(w, http.StatusInternalServerError, model.KindPersistence, "Failed to "+persist.Op)

	default:
		collector.RecordError("internal")
		logger.Error().Err(err).Msg("unhandled error")
		writeJSONError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
