package store

import (
	"context"
	"fmt"

	"github.com/reportbrief/reportbrief/internal/model"
)

// HasActiveSubscription reports whether userID holds an active subscription.
func (s *Store) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	var n int
	err := s.reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND status = ?`,
		userID, model.SubscriptionActive,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check subscription: %w", err)
	}
	return n > 0, nil
}

// UpsertSubscription creates or replaces a user's subscription record.
func (s *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now()
	}
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		sub.UserID, sub.Status, formatTime(sub.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: upsert subscription: %w", err)
	}
	return nil
}
