package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for pre-dispatch rejections and per-message outcomes.
// Callers classify with errors.Is.
var (
	// ErrPermissionDenied blocks cross-project delivery before dispatch.
	ErrPermissionDenied = errors.New("cross-project delivery denied")

	// ErrCapacityExceeded rejects a batch that would overflow the pending
	// correlation budget or the concurrent batch limit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrTimeout marks a message whose reply did not arrive in time.
	ErrTimeout = errors.New("reply timeout")

	// ErrCancelled marks work terminated by an abort signal.
	ErrCancelled = errors.New("batch cancelled")

	// ErrRateLimited rejects a batch from a source agent over its budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBatchOperationsDisabled rejects all batches when the feature is
	// switched off in configuration.
	ErrBatchOperationsDisabled = errors.New("batch operations disabled")

	// ErrProjectDisabled rejects batches from a disabled source project.
	ErrProjectDisabled = errors.New("project disabled")
)

// ValidationError reports a malformed batch: a dependency reference to a
// message that does not exist, or a dependency cycle. Validation failures
// reject the batch before anything is dispatched.
type ValidationError struct {
	// MessageID names one implicated message.
	MessageID string
	// MissingID is the dangling dependency reference, empty for cycles.
	MissingID string
	// Circular is true when the message participates in a dependency cycle.
	Circular bool
}

func (e *ValidationError) Error() string {
	if e.Circular {
		return fmt.Sprintf("circular dependency involving message %q", e.MessageID)
	}
	return fmt.Sprintf("message %q depends on unknown message %q", e.MessageID, e.MissingID)
}

// DeliveryError wraps a failure of the caller-supplied delivery function
// for a single message.
type DeliveryError struct {
	MessageID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for message %q: %v", e.MessageID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
