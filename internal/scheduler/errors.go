package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lyx52/opencast/internal/recurrence"
	"github.com/Lyx52/opencast/internal/storage"
)

var (
	// ErrNotFound marks an unknown event id. Fatal for that id.
	ErrNotFound = errors.New("event not found")
	// ErrAlreadyExists marks a duplicate create for an event id.
	ErrAlreadyExists = errors.New("event already exists")
	// ErrTimeout marks an exceeded infrastructure deadline. Safe to retry;
	// distinct from ConflictError so callers don't mistake slowness for a
	// scheduling conflict.
	ErrTimeout = errors.New("deadline exceeded")
	// ErrMaintenance is returned for mutating calls while maintenance mode
	// is switched on.
	ErrMaintenance = errors.New("scheduler is in maintenance mode")
)

// ValidationError marks a missing or malformed required field. Fatal, not
// retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError carries the occurrences blocking a booking so the caller
// can render a conflict report or rebook.
type ConflictError struct {
	AgentID   string
	Conflicts []storage.Occurrence
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, o := range e.Conflicts {
		ids = append(ids, o.EventID)
	}
	return fmt.Sprintf("conflicting events on agent %q: %s", e.AgentID, strings.Join(ids, ", "))
}

// InvalidRuleError marks a recurrence rule whose generated periods overlap
// each other. The rule must be fixed by the caller.
type InvalidRuleError struct {
	Rule string
	Err  error
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q: %v", e.Rule, e.Err)
}

func (e *InvalidRuleError) Unwrap() error { return e.Err }

// StorageError wraps an underlying store failure. Logged and surfaced,
// never silently swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// storageErr classifies a store failure: deadline overruns become
// ErrTimeout so retryable infrastructure slowness stays distinguishable
// from data errors.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return &StorageError{Op: op, Err: err}
}

func ruleErr(rule string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, recurrence.ErrRuleOverlap) {
		return &InvalidRuleError{Rule: rule, Err: err}
	}
	return validationErr("rrule", err.Error())
}

// BulkError aggregates per-occurrence failures of a recurring create. The
// batch-level conflict check has already passed when these happen, so some
// occurrences may be committed while others failed (best-effort bulk
// insert, no compensating rollback).
type BulkError struct {
	Failures map[string]error // event id -> failure
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("%d of the recurring occurrences failed", len(e.Failures))
}
