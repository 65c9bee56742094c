package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a post ID does not exist.
	ErrNotFound = errors.New("post not found")

	// ErrInvalidState is returned by status transitions whose precondition
	// (the current status) does not hold.
	ErrInvalidState = errors.New("post is not in the required status")
)

// ValidationError reports a schedule record that breaks an invariant.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProtocolError is a well-formed remote rejection (bad auth, content
// rejected, quota). Terminal, never retried.
type ProtocolError struct {
	Step    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Step, e.Message)
}

// TransientError wraps a network-level failure (timeout, reset, 5xx) that is
// worth retrying with backoff.
type TransientError struct {
	Step string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TimeoutError means a status-poll loop exhausted its budget without the
// remote reaching a terminal state.
type TimeoutError struct {
	Step   string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not complete within %s", e.Step, e.Waited)
}
