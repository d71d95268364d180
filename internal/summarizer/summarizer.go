// Package summarizer turns a sample of report rows into a structured
// summary by calling an external model.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/config"
	"github.com/reportbrief/reportbrief/internal/model"
)

// Input is what a Summarizer sees of a report.
type Input struct {
	// Columns is the report header. When empty the first row's keys are used.
	Columns []string
	// Rows is the sample to analyse, at most model.MaxSampleRows long.
	Rows []*model.Row
}

// Output is a successful summarization.
type Output struct {
	Result     model.SummaryResult
	Model      string
	TokensUsed int
}

// Summarizer produces a structured summary of report rows. Implementations
// must honour ctx cancellation and deadlines.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, in Input) (*Output, error)
}

// New builds the backend selected by cfg, wrapped in a circuit breaker when
// res enables one. apiKey is only used by the anthropic backend.
func New(cfg config.SummarizerConfig, res config.ResilienceConfig, apiKey string, logger zerolog.Logger) (Summarizer, error) {
	var s Summarizer
	switch strings.ToLower(cfg.Backend) {
	case "anthropic":
		if apiKey == "" {
			return nil, fmt.Errorf("summarizer: anthropic backend requires an API key")
		}
		s = NewAnthropic(AnthropicOptions{
			APIKey:      apiKey,
			BaseURL:     cfg.APIBase,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case "http":
		s = NewHTTP(cfg.ProxyURL, cfg.Model)
	case "mock":
		s = NewMock()
	default:
		return nil, fmt.Errorf("summarizer: unknown backend %q", cfg.Backend)
	}

	if res.CBEnabled {
		cb := NewCircuitBreaker(res.CBFailureThreshold, secondsToDuration(res.CBResetTimeoutSec), res.CBHalfOpenMax)
		s = WithBreaker(s, cb, logger)
	}
	return s, nil
}

func columnsOf(in Input) []string {
	if len(in.Columns) > 0 {
		return in.Columns
	}
	if len(in.Rows) > 0 {
		return in.Rows[0].Keys()
	}
	return nil
}

func capRows(rows []*model.Row) []*model.Row {
	if len(rows) > model.MaxSampleRows {
		return rows[:model.MaxSampleRows]
	}
	return rows
}
