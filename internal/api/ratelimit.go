package api

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reportbrief/reportbrief/internal/auth"
	"github.com/reportbrief/reportbrief/internal/metrics"
)

// maxTrackedUsers bounds the number of per-user buckets kept in memory.
// Evicted users start again with a full bucket.
const maxTrackedUsers = 10000

// tokenBucket implements a token-bucket rate limiter for a single user.
type tokenBucket struct {
	rate       float64 // tokens per second
	burst      int
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: now,
	}
}

// allow consumes one token if one is available.
func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}

	if tb.tokens < 1.0 {
		return false
	}
	tb.tokens -= 1.0
	return true
}

// RateLimiter throttles authenticated callers per user id.
type RateLimiter struct {
	rate      float64
	burst     int
	buckets   *lru.Cache[string, *tokenBucket]
	collector *metrics.Collector
	now       func() time.Time
	mu        sync.Mutex
}

// NewRateLimiter returns a limiter allowing rate requests per second with
// bursts up to burst. collector may be nil.
func NewRateLimiter(rate float64, burst int, collector *metrics.Collector) (*RateLimiter, error) {
	if rate <= 0 || burst < 1 {
		return nil, fmt.Errorf("rate limiter: rate must be positive and burst at least 1")
	}
	buckets, err := lru.New[string, *tokenBucket](maxTrackedUsers)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return &RateLimiter{
		rate:      rate,
		burst:     burst,
		buckets:   buckets,
		collector: collector,
		now:       time.Now,
	}, nil
}

// Allow reports whether userID may make another request now.
func (rl *RateLimiter) Allow(userID string) bool {
	return rl.bucket(userID).allow(rl.now())
}

// RetryAfter is the suggested wait before the next attempt.
func (rl *RateLimiter) RetryAfter() time.Duration {
	secs := 1.0 / rl.rate
	if secs < 0.1 {
		secs = 0.1
	}
	return time.Duration(secs * float64(time.Second))
}

func (rl *RateLimiter) bucket(userID string) *tokenBucket {
	if b, ok := rl.buckets.Get(userID); ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets.Get(userID); ok {
		return b
	}
	b := newTokenBucket(rl.rate, rl.burst, rl.now())
	rl.buckets.Add(userID, b)
	return b
}

// Middleware rejects over-limit requests with 429. It must run after the
// auth middleware; requests without a user id pass through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserID(r.Context())
		if !ok || rl.Allow(userID) {
			next.ServeHTTP(w, r)
			return
		}

		rl.collector.RecordRateLimited()
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(rl.RetryAfter().Seconds()))))
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
	})
}
