package summarizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned without calling the backend while the breaker
// is open.
var ErrCircuitOpen = errors.New("summarizer circuit open")

// CBState is the state of a CircuitBreaker.
type CBState int

const (
	// CBClosed lets calls through.
	CBClosed CBState = iota
	// CBOpen rejects calls until the reset timeout elapses.
	CBOpen
	// CBHalfOpen lets trial calls through to probe recovery.
	CBHalfOpen
)

func (s CBState) String() string {
	switch s {
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips after failureThreshold consecutive failures, stays
// open for resetTimeout, then closes again after halfOpenMax consecutive
// successful trial calls. A failed trial reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CBState
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int

	consecutiveFailures int
	halfOpenSuccesses   int
	openedAt            time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &CircuitBreaker{
		state:            CBClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CBOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = CBHalfOpen
		cb.halfOpenSuccesses = 0
	}
	return true
}

// RecordSuccess notes a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == CBHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMax {
			cb.state = CBClosed
		}
	}
}

// RecordFailure notes a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	switch cb.state {
	case CBClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = CBOpen
			cb.openedAt = cb.now()
		}
	case CBHalfOpen:
		cb.state = CBOpen
		cb.openedAt = cb.now()
		cb.halfOpenSuccesses = 0
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type breakerSummarizer struct {
	next   Summarizer
	cb     *CircuitBreaker
	logger zerolog.Logger
}

// WithBreaker guards next with cb. Calls abandoned because the caller's own
// context was cancelled do not count against the backend.
func WithBreaker(next Summarizer, cb *CircuitBreaker, logger zerolog.Logger) Summarizer {
	return &breakerSummarizer{
		next:   next,
		cb:     cb,
		logger: logger.With().Str("component", "summarizer").Str("backend", next.Name()).Logger(),
	}
}

func (b *breakerSummarizer) Name() string { return b.next.Name() }

func (b *breakerSummarizer) Summarize(ctx context.Context, in Input) (*Output, error) {
	if !b.cb.Allow() {
		return nil, ErrCircuitOpen
	}

	out, err := b.next.Summarize(ctx, in)
	switch {
	case err == nil:
		b.cb.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		before := b.cb.State()
		b.cb.RecordFailure()
		if after := b.cb.State(); after == CBOpen && before != CBOpen {
			b.logger.Warn().Err(err).Msg("summarizer circuit opened")
		}
	}
	return out, err
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
