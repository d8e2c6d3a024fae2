package domain

import (
	"fmt"
	"time"
)

// ValidationError reports malformed or missing input, such as a blank
// required metadata field. It is surfaced to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AuthorizationError reports a policy denial. The message deliberately does
// not reveal which rule failed.
type AuthorizationError struct{}

func (AuthorizationError) Error() string {
	return "not authorized"
}

// NotFoundError reports an absent record.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidStateError reports an operation that is illegal for the record's
// current lifecycle state, such as publishing an already public version or
// mutating a non-latest version.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string {
	return e.Reason
}

// OptimisticLockError reports a stale concurrency token. The caller is
// expected to re-read the record and retry with a fresh timestamp.
type OptimisticLockError struct {
	Presented time.Time
	Stored    time.Time
}

func (e OptimisticLockError) Error() string {
	return fmt.Sprintf("stale modification date: presented %s, stored %s",
		e.Presented.Format(time.RFC3339Nano), e.Stored.Format(time.RFC3339Nano))
}

// TechnicalError wraps an unexpected persistence or index failure.
type TechnicalError struct {
	Op  string
	Err error
}

func (e TechnicalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e TechnicalError) Unwrap() error {
	return e.Err
}

// RuleViolationError is returned when blocking invariant violations are
// present at commit time.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
