package model

import "fmt"

// Error kinds, used as the machine-readable "kind" field of API errors.
const (
	KindValidation    = "validation"
	KindAuth          = "auth"
	KindNotFound      = "not_found"
	KindConflict      = "conflict"
	KindQuotaExceeded = "quota_exceeded"
	KindUpstream      = "upstream"
	KindPersistence   = "persistence"
)

// ValidationError reports bad or missing input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Kind() string  { return KindValidation }

// AuthError reports a missing or invalid session.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Kind() string  { return KindAuth }

// NotFoundError reports a referenced record that does not exist or is not
// visible to the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}
func (e *NotFoundError) Kind() string { return KindNotFound }

// ConflictError reports a duplicate upload title. Existing is the report the
// caller may reuse instead.
type ConflictError struct {
	Message  string
	Existing *Report
}

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Kind() string  { return KindConflict }

// QuotaExceededError carries a denied quota decision.
type QuotaExceededError struct {
	Reason string
	Usage  *UsageStats
}

func (e *QuotaExceededError) Error() string { return e.Reason }
func (e *QuotaExceededError) Kind() string  { return KindQuotaExceeded }

// UpstreamError wraps a failure of the external summarizer. Timeout is set
// when the call exceeded its wait bound.
type UpstreamError struct {
	Err     error
	Timeout bool
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("summarizer timed out: %v", e.Err)
	}
	return fmt.Sprintf("summarizer failed: %v", e.Err)
}
func (e *UpstreamError) Kind() string  { return KindUpstream }
func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError wraps a store read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}
func (e *PersistenceError) Kind() string  { return KindPersistence }
func (e *PersistenceError) Unwrap() error { return e.Err }
