package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/reportbrief/reportbrief/internal/model"
)

const reportColumns = `id, user_id, title, num_rows, columns, status, summary_id, uploaded_at`

// FoldTitle is the case-insensitive key used for duplicate title lookups.
func FoldTitle(title string) string {
	return cases.Fold().String(title)
}

// CreateReport inserts r and its row sample in one transaction. Empty IDs
// are assigned, a zero UploadedAt is set to now and an empty Status defaults
// to parsed.
func (s *Store) CreateReport(ctx context.Context, r *model.Report, sample *model.RowSample) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = now()
	}
	if r.Status == "" {
		r.Status = model.StatusParsed
	}
	if r.Columns == nil {
		r.Columns = []string{}
	}

	cols, err := json.Marshal(r.Columns)
	if err != nil {
		return fmt.Errorf("store: encode columns: %w", err)
	}

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin create report: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reports (id, user_id, title, title_fold, num_rows, columns, status, summary_id, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, FoldTitle(r.Title), r.RowCount, string(cols),
		string(r.Status), nullString(r.SummaryID), formatTime(r.UploadedAt),
	); err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}

	if sample != nil {
		if sample.ID == "" {
			sample.ID = uuid.NewString()
		}
		sample.ReportID = r.ID
		if err := insertRowSample(ctx, tx, sample); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit create report: %w", err)
	}
	return nil
}

// GetReport returns the report with the given id. A missing report yields
// an error wrapping sql.ErrNoRows.
func (s *Store) GetReport(ctx context.Context, id string) (*model.Report, error) {
	row := s.reader.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err != nil {
		return nil, fmt.Errorf("store: get report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns a user's reports, newest first.
func (s *Store) ListReports(ctx context.Context, userID string, limit, offset int) ([]*model.Report, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.reader.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE user_id = ?
		ORDER BY uploaded_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	return collectReports(rows)
}

// FindReportsByTitle returns the user's reports whose title equals title
// ignoring case, newest first.
func (s *Store) FindReportsByTitle(ctx context.Context, userID, title string) ([]*model.Report, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE user_id = ? AND title_fold = ?
		ORDER BY uploaded_at DESC`, userID, FoldTitle(title),
	)
	if err != nil {
		return nil, fmt.Errorf("store: find reports by title: %w", err)
	}
	return collectReports(rows)
}

// MarkReportSummarized points the report at summaryID and sets its status
// to summarized.
func (s *Store) MarkReportSummarized(ctx context.Context, reportID, summaryID string) error {
	return s.updateReportStatus(ctx, reportID, model.StatusSummarized, summaryID)
}

// MarkReportFailed sets the report's status to failed and clears any
// summary pointer.
func (s *Store) MarkReportFailed(ctx context.Context, reportID string) error {
	return s.updateReportStatus(ctx, reportID, model.StatusFailed, "")
}

func (s *Store) updateReportStatus(ctx context.Context, reportID string, status model.ReportStatus, summaryID string) error {
	res, err := s.writer.ExecContext(ctx,
		`UPDATE reports SET status = ?, summary_id = ? WHERE id = ?`,
		string(status), nullString(summaryID), reportID,
	)
	if err != nil {
		return fmt.Errorf("store: update report %s: %w", reportID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update report %s: %w", reportID, err)
	}
	if n == 0 {
		return fmt.Errorf("store: update report %s: %w", reportID, sql.ErrNoRows)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*model.Report, error) {
	var (
		r          model.Report
		cols       string
		status     string
		summaryID  sql.NullString
		uploadedAt string
	)
	if err := sc.Scan(&r.ID, &r.UserID, &r.Title, &r.RowCount, &cols, &status, &summaryID, &uploadedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cols), &r.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	r.Status = model.ReportStatus(status)
	r.SummaryID = summaryID.String
	r.UploadedAt = parseTime(uploadedAt)
	return &r, nil
}

func collectReports(rows *sql.Rows) ([]*model.Report, error) {
	defer rows.Close()

	var out []*model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan report row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: report rows iteration: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
