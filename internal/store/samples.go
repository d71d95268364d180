package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/reportbrief/reportbrief/internal/model"
)

// GetRowSample returns the stored sample for a report. A report without a
// sample yields an error wrapping sql.ErrNoRows.
func (s *Store) GetRowSample(ctx context.Context, reportID string) (*model.RowSample, error) {
	var (
		sample model.RowSample
		raw    string
	)
	err := s.reader.QueryRowContext(ctx,
		`SELECT id, report_id, sample_rows FROM report_row_samples WHERE report_id = ?`, reportID,
	).Scan(&sample.ID, &sample.ReportID, &raw)
	if err != nil {
		return nil, fmt.Errorf("store: get row sample for %s: %w", reportID, err)
	}
	if err := json.Unmarshal([]byte(raw), &sample.Rows); err != nil {
		return nil, fmt.Errorf("store: decode row sample for %s: %w", reportID, err)
	}
	return &sample, nil
}

func insertRowSample(ctx context.Context, tx *sql.Tx, sample *model.RowSample) error {
	rows := sample.Rows
	if len(rows) > model.MaxSampleRows {
		rows = rows[:model.MaxSampleRows]
	}
	if rows == nil {
		rows = []*model.Row{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("store: encode row sample: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO report_row_samples (id, report_id, sample_rows) VALUES (?, ?, ?)`,
		sample.ID, sample.ReportID, string(raw),
	); err != nil {
		return fmt.Errorf("store: insert row sample: %w", err)
	}
	return nil
}
