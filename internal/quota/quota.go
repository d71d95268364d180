// Package quota enforces the monthly free-tier summarization allowance.
//
// Two paths read the same data with different failure policies:
// CanSummarize gates work and denies when usage cannot be determined,
// while GetUsage feeds display surfaces and degrades to a zero count.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/model"
)

// DefaultFreeTierLimit is the monthly summarization allowance without a
// subscription.
const DefaultFreeTierLimit = 5

// ReasonCheckFailed is the denial reason when usage could not be counted.
const ReasonCheckFailed = "Error checking usage limit"

// UsageStore is the read side the engine needs.
type UsageStore interface {
	CountAuditEvents(ctx context.Context, userID string, eventType model.EventType, since time.Time) (int, error)
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

// Decision is the outcome of a gating check.
type Decision struct {
	Allowed bool              `json:"allowed"`
	Reason  string            `json:"reason,omitempty"`
	Usage   *model.UsageStats `json:"usage,omitempty"`
}

// Err converts a denial into a *model.QuotaExceededError. It returns nil
// for an allowed decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &model.QuotaExceededError{Reason: d.Reason, Usage: d.Usage}
}

// Engine evaluates quota for users.
type Engine struct {
	store     UsageStore
	limit     int
	loc       *time.Location
	logger    zerolog.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// New returns an Engine. A non-positive limit falls back to
// DefaultFreeTierLimit and a nil loc to UTC. collector may be nil.
func New(store UsageStore, limit int, loc *time.Location, logger zerolog.Logger, collector *metrics.Collector) *Engine {
	if limit <= 0 {
		limit = DefaultFreeTierLimit
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store:     store,
		limit:     limit,
		loc:       loc,
		logger:    logger.With().Str("component", "quota").Logger(),
		collector: collector,
		now:       time.Now,
	}
}

// CanSummarize decides whether userID may start another summarization.
// An active subscription always allows. Otherwise the user's completed
// summarizations since the start of the current month are compared with
// the limit. If they cannot be counted the answer is a denial.
func (e *Engine) CanSummarize(ctx context.Context, userID string) Decision {
	d := e.canSummarize(ctx, userID)
	e.collector.RecordQuotaCheck(d.Allowed)
	return d
}

func (e *Engine) canSummarize(ctx context.Context, userID string) Decision {
	logger := e.logger.With().Str("user_id", userID).Logger()

	active, err := e.store.HasActiveSubscription(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("subscription lookup failed, applying free tier")
	} else if active {
		return Decision{Allowed: true}
	}

	now := e.now().In(e.loc)
	count, err := e.store.CountAuditEvents(ctx, userID, model.EventReportSummarized, monthStart(now))
	if err != nil {
		logger.Error().Err(err).Msg("usage count failed, denying")
		return Decision{Allowed: false, Reason: ReasonCheckFailed}
	}

	reset := nextReset(now)
	usage := model.NewUsageStats(count, e.limit, reset)
	if count >= e.limit {
		reason := fmt.Sprintf("You have reached your free tier limit of %d reports per month. Limit resets on %s.",
			e.limit, reset.Format("2006-01-02"))
		return Decision{Allowed: false, Reason: reason, Usage: &usage}
	}
	return Decision{Allowed: true, Usage: &usage}
}

// GetUsage returns a display snapshot of the user's monthly usage. A count
// failure is logged and reported as zero usage.
func (e *Engine) GetUsage(ctx context.Context, userID string) model.UsageStats {
	now := e.now().In(e.loc)
	count, err := e.store.CountAuditEvents(ctx, userID, model.EventReportSummarized, monthStart(now))
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("usage count failed, showing zero")
		count = 0
	}
	return model.NewUsageStats(count, e.limit, nextReset(now))
}

// monthStart returns midnight on the first day of t's month in t's location.
func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// nextReset returns midnight on the first day of the month after t.
func nextReset(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, 0)
}
