package iceproxy

import "fmt"

// UsageErrorKind discriminates the usage-error family.
type UsageErrorKind int

const (
	// IllegalIdentity is raised when an Identity has an empty name.
	IllegalIdentity UsageErrorKind = iota
	// IllegalArgument is raised for an out-of-range timeout, or for
	// mode misuse surfaced from an asynchronous call site.
	IllegalArgument
	// TwowayOnly is raised for mode misuse surfaced from a synchronous
	// call site.
	TwowayOnly
)

func (k UsageErrorKind) String() string {
	switch k {
	case IllegalIdentity:
		return "IllegalIdentity"
	case IllegalArgument:
		return "IllegalArgument"
	case TwowayOnly:
		return "TwowayOnly"
	default:
		return "UsageError"
	}
}

// UsageError reports a caller mistake detected synchronously at the call
// site. Usage errors are never retried.
type UsageError struct {
	Kind      UsageErrorKind
	Operation string
	Detail    string
}

func (e *UsageError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Operation, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewUsageError builds a UsageError with the given kind and detail.
func NewUsageError(kind UsageErrorKind, operation, detail string) *UsageError {
	return &UsageError{Kind: kind, Operation: operation, Detail: detail}
}

// LocalErrorKind discriminates the local (transport/runtime) error family
// consulted by the retry predicate. Classifying failures this way replaces
// a dynamic-cast chain with a small tagged-variant switch.
type LocalErrorKind int

const (
	// ConnectFailed covers connection establishment and general transport
	// failures that are not further distinguished.
	ConnectFailed LocalErrorKind = iota
	// Timeout covers invocation and connection timeouts.
	Timeout
	// GracefulClose means the peer signalled an orderly shutdown; any
	// outstanding request is safe to repeat per the wire protocol.
	GracefulClose
	// ObjectNotExist means the binding the request was sent on is stale;
	// re-resolution (and thus a retry) is safe.
	ObjectNotExist
	// Cancelled means the invocation was cancelled locally before or
	// during submission.
	Cancelled
)

func (k LocalErrorKind) String() string {
	switch k {
	case ConnectFailed:
		return "ConnectFailed"
	case Timeout:
		return "Timeout"
	case GracefulClose:
		return "GracefulClose"
	case ObjectNotExist:
		return "ObjectNotExist"
	case Cancelled:
		return "Cancelled"
	default:
		return "LocalError"
	}
}

// LocalError is a transport/runtime failure eligible for the retry
// predicate. Sent records whether the request had already left the
// client when the failure occurred.
type LocalError struct {
	Kind      LocalErrorKind
	Sent      bool
	Operation string
	Cause     error
}

func (e *LocalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (op=%s sent=%v): %v", e.Kind, e.Operation, e.Sent, e.Cause)
	}
	return fmt.Sprintf("%s (op=%s sent=%v)", e.Kind, e.Operation, e.Sent)
}

func (e *LocalError) Unwrap() error { return e.Cause }

// NewLocalError builds a LocalError.
func NewLocalError(kind LocalErrorKind, operation string, sent bool, cause error) *LocalError {
	return &LocalError{Kind: kind, Sent: sent, Operation: operation, Cause: cause}
}

// SystemError reports an internal invariant violation. System exceptions
// are never retried.
type SystemError struct {
	Detail string
	Cause  error
}

func (e *SystemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("system error: %s: %v", e.Detail, e.Cause)
	}
	return "system error: " + e.Detail
}

func (e *SystemError) Unwrap() error { return e.Cause }

// UnknownUserException wraps a user-defined exception that arrived on a
// built-in two-way operation that does not declare it.
type UnknownUserException struct {
	Operation string
	Cause     error
}

func (e *UnknownUserException) Error() string {
	return fmt.Sprintf("unknown user exception on %s: %v", e.Operation, e.Cause)
}

func (e *UnknownUserException) Unwrap() error { return e.Cause }
