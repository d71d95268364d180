package upload

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/model"
)

// Outcome is the terminal state of a duplicate-title decision.
type Outcome string

const (
	// OutcomeCreated means no report with the title existed; the literal
	// filename is used.
	OutcomeCreated Outcome = "created"
	// OutcomeReused means a report with the title exists and the caller did
	// not ask for a new one. Nothing is created.
	OutcomeReused Outcome = "reused"
	// OutcomeCreatedWithSuffix means a report with the title exists and a
	// timestamped title was derived for the new one.
	OutcomeCreatedWithSuffix Outcome = "created_with_suffix"
)

// suffixLayout sorts lexically in time order.
const suffixLayout = "20060102-150405.000"

// ReportFinder looks up a user's reports by title, ignoring case.
type ReportFinder interface {
	FindReportsByTitle(ctx context.Context, userID, title string) ([]*model.Report, error)
}

// Resolution is the result of Resolve.
type Resolution struct {
	Outcome Outcome
	// Title is the title to persist. Empty for OutcomeReused.
	Title string
	// Existing is the most recent colliding report, if any.
	Existing *model.Report
}

// Resolver decides between creating, reusing and suffixing on upload.
type Resolver struct {
	finder ReportFinder
	logger zerolog.Logger
	now    func() time.Time
}

// NewResolver returns a Resolver backed by finder.
func NewResolver(finder ReportFinder, logger zerolog.Logger) *Resolver {
	return &Resolver{
		finder: finder,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve checks title against userID's existing reports. A lookup failure
// is logged and treated as no conflict.
func (r *Resolver) Resolve(ctx context.Context, userID, title string, forceNew bool) Resolution {
	existing, err := r.finder.FindReportsByTitle(ctx, userID, title)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("user_id", userID).
			Str("title", title).
			Msg("duplicate lookup failed, proceeding as new upload")
		return Resolution{Outcome: OutcomeCreated, Title: title}
	}
	if len(existing) == 0 {
		return Resolution{Outcome: OutcomeCreated, Title: title}
	}

	if !forceNew {
		return Resolution{Outcome: OutcomeReused, Existing: existing[0]}
	}
	return Resolution{
		Outcome:  OutcomeCreatedWithSuffix,
		Title:    SuffixedTitle(title, r.now()),
		Existing: existing[0],
	}
}

// SuffixedTitle inserts a UTC timestamp token before a trailing ".csv"
// (matched case-insensitively), or appends it when there is no such
// extension: "deals.csv" becomes "deals_20261016-093000.123.csv".
func SuffixedTitle(title string, t time.Time) string {
	token := "_" + t.UTC().Format(suffixLayout)
	if len(title) >= 4 && strings.EqualFold(title[len(title)-4:], ".csv") {
		return title[:len(title)-4] + token + title[len(title)-4:]
	}
	return title + token
}
