package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reportbrief/reportbrief/internal/model"
)

// InsertSummary persists a summary. Empty ID and zero CreatedAt are filled in.
func (s *Store) InsertSummary(ctx context.Context, sum *model.Summary) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = now()
	}

	structured, err := json.Marshal(sum.Result)
	if err != nil {
		return fmt.Errorf("store: encode summary: %w", err)
	}

	if _, err := s.writer.ExecContext(ctx, `
		INSERT INTO summaries (id, report_id, user_id, summary_text, summary_struct, model, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.ReportID, sum.UserID, sum.Result.Summary, string(structured),
		sum.Model, sum.TokensUsed, formatTime(sum.CreatedAt),
	); err != nil {
		return fmt.Errorf("store: insert summary: %w", err)
	}
	return nil
}

// GetSummary returns the summary with the given id.
func (s *Store) GetSummary(ctx context.Context, id string) (*model.Summary, error) {
	var (
		sum       model.Summary
		raw       string
		createdAt string
	)
	err := s.reader.QueryRowContext(ctx, `
		SELECT id, report_id, user_id, summary_struct, model, tokens_used, created_at
		FROM summaries WHERE id = ?`, id,
	).Scan(&sum.ID, &sum.ReportID, &sum.UserID, &raw, &sum.Model, &sum.TokensUsed, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: get summary %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &sum.Result); err != nil {
		return nil, fmt.Errorf("store: decode summary %s: %w", id, err)
	}
	sum.CreatedAt = parseTime(createdAt)
	return &sum, nil
}

// CountSummaries returns how many summaries exist for a report.
func (s *Store) CountSummaries(ctx context.Context, reportID string) (int, error) {
	var n int
	if err := s.reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM summaries WHERE report_id = ?`, reportID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count summaries: %w", err)
	}
	return n, nil
}
