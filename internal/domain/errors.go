package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExamNotFound indicates the exam could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSubmissionNotFound indicates no submission exists for the (student, exam) pair.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
)

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ConflictError rejects an operation that would collide with existing state,
// naming the conflicting entity (e.g. the staff member holding an overlapping range).
type ConflictError struct {
	Entity string
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Entity == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: conflicts with %s", e.Detail, e.Entity)
}

// WindowError rejects access outside an exam's active window, past the
// attempt cap, or after a termination bar.
type WindowError struct {
	Reason string
}

func (e *WindowError) Error() string { return e.Reason }
