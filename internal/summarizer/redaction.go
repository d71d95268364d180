package summarizer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/redact"
)

type redactingSummarizer struct {
	next     Summarizer
	redactor *redact.Redactor
	logger   zerolog.Logger
}

// WithRedaction masks personal data in the sample rows before they reach
// next, then restores placeholders in the returned summary.
func WithRedaction(next Summarizer, r *redact.Redactor, logger zerolog.Logger) Summarizer {
	return &redactingSummarizer{
		next:     next,
		redactor: r,
		logger:   logger.With().Str("component", "redact").Logger(),
	}
}

func (s *redactingSummarizer) Name() string { return s.next.Name() }

func (s *redactingSummarizer) Summarize(ctx context.Context, in Input) (*Output, error) {
	rows, mapping, detections := s.redactor.Rows(in.Rows)
	if len(detections) > 0 {
		s.logger.Debug().Int("detections", len(detections)).Msg("masked personal data in sample")
	}

	out, err := s.next.Summarize(ctx, Input{Columns: in.Columns, Rows: rows})
	if err != nil {
		return nil, err
	}
	restored := *out
	restored.Result = mapping.RestoreResult(out.Result)
	return &restored, nil
}
