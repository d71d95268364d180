// Package model holds the records ReportBrief persists and exchanges
// between its workflows, plus the error kinds those workflows surface.
package model

import "time"

// ReportStatus is the processing state of a Report.
type ReportStatus string

const (
	StatusParsed     ReportStatus = "parsed"
	StatusSummarized ReportStatus = "summarized"
	StatusFailed     ReportStatus = "failed"
)

// MaxSampleRows caps the number of rows kept in a RowSample and passed to
// the summarizer.
const MaxSampleRows = 50

// Report is a user's uploaded dataset plus its processing status.
// SummaryID is non-empty only while Status is StatusSummarized.
type Report struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Title      string       `json:"title"`
	RowCount   int          `json:"num_rows"`
	Columns    []string     `json:"columns"`
	Status     ReportStatus `json:"status"`
	SummaryID  string       `json:"summary_id,omitempty"`
	UploadedAt time.Time    `json:"uploaded_at"`
}

// RowSample is the capped, immutable snapshot of a Report's rows.
type RowSample struct {
	ID       string `json:"id"`
	ReportID string `json:"report_id"`
	Rows     []*Row `json:"sample_rows"`
}

// SummaryResult is the structured output of the external summarizer.
type SummaryResult struct {
	Summary         string   `json:"summary"`
	Metrics         []string `json:"metrics"`
	Trends          []string `json:"trends"`
	Recommendations []string `json:"recommendations"`
}

// Summary is one persisted summarization of a Report.
type Summary struct {
	ID         string        `json:"id"`
	ReportID   string        `json:"report_id"`
	UserID     string        `json:"user_id"`
	Result     SummaryResult `json:"summary_struct"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokens_used"`
	CreatedAt  time.Time     `json:"created_at"`
}

// EventType names an audit event.
type EventType string

const (
	EventUserSignup            EventType = "user_signup"
	EventUserLogin             EventType = "user_login"
	EventReportUploaded        EventType = "report_uploaded"
	EventReportSummarized      EventType = "report_summarized"
	EventReportFailed          EventType = "report_failed"
	EventPDFGenerated          EventType = "pdf_generated"
	EventError                 EventType = "error"
	EventDashboardViewed       EventType = "dashboard_viewed"
	EventDashboardSearched     EventType = "dashboard_searched"
	EventDashboardSorted       EventType = "dashboard_sorted"
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
)

var eventTypes = map[EventType]bool{
	EventUserSignup:            true,
	EventUserLogin:             true,
	EventReportUploaded:        true,
	EventReportSummarized:      true,
	EventReportFailed:          true,
	EventPDFGenerated:          true,
	EventError:                 true,
	EventDashboardViewed:       true,
	EventDashboardSearched:     true,
	EventDashboardSorted:       true,
	EventSubscriptionCreated:   true,
	EventSubscriptionCancelled: true,
}

// Valid reports whether e is one of the known event types.
func (e EventType) Valid() bool { return eventTypes[e] }

// ServerOnly reports whether e is written only by the report workflows.
// report_summarized events are what the monthly quota counts.
func (e EventType) ServerOnly() bool {
	switch e {
	case EventReportUploaded, EventReportSummarized, EventReportFailed:
		return true
	}
	return false
}

// AuditEvent is an append-only record of something that happened.
// An empty UserID marks a system-level event.
type AuditEvent struct {
	ID        string         `json:"id"`
	EventType EventType      `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// SubscriptionActive is the only subscription status that lifts the
// free-tier limit.
const SubscriptionActive = "active"

// Subscription is a paid plan record.
type Subscription struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageStats is a derived, never-persisted view of a user's monthly usage.
type UsageStats struct {
	ReportsThisMonth int       `json:"reports_this_month"`
	Limit            int       `json:"limit"`
	Remaining        int       `json:"remaining"`
	HasExceeded      bool      `json:"has_exceeded"`
	ResetDate        time.Time `json:"reset_date"`
}

// NewUsageStats derives a snapshot from a raw count. Remaining never goes
// below zero.
func NewUsageStats(count, limit int, reset time.Time) UsageStats {
	if count < 0 {
		count = 0
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return UsageStats{
		ReportsThisMonth: count,
		Limit:            limit,
		Remaining:        remaining,
		HasExceeded:      count >= limit,
		ResetDate:        reset,
	}
}
