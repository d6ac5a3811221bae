package cloud

import (
	"errors"
	"fmt"
)

// ErrInvocationTimeout is returned when an invocation reached no terminal
// status within the polling attempt budget.
var ErrInvocationTimeout = errors.New("invocation status polling exhausted attempt budget")

// ErrMissingInvocationID is returned when the cloud neither resolved an
// action immediately nor assigned an invocation id to poll. This is a
// contract violation, not a transient failure.
var ErrMissingInvocationID = errors.New("cloud returned neither terminal result nor invocation id")

// TransportError wraps a network or API-level failure reaching the cloud.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cloud %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError indicates the cloud rejected the account credentials. It is not
// retried automatically.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("cloud authentication rejected: %s", e.Reason)
}

// InvocationFailedError indicates the cloud reported a terminal failure for
// a remote action, optionally with a reason.
type InvocationFailedError struct {
	Reason string
}

func (e *InvocationFailedError) Error() string {
	if e.Reason == "" {
		return "invocation failed"
	}
	return fmt.Sprintf("invocation failed: %s", e.Reason)
}
