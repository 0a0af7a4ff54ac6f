package models

import "fmt"

// AuthError indicates the presented API key is unknown or does not own the
// handler it tries to mutate or read.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// ValidationError indicates handler source that cannot be accepted: it does
// not compile, lacks the entry function, or breaches a size ceiling.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError indicates no handler is registered at the URI.
type NotFoundError struct {
	URI string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no handler at uri %s", e.URI)
}

// ExecutionErrorKind classifies sandbox failures.
type ExecutionErrorKind string

const (
	ExecCompile          ExecutionErrorKind = "compile_error"
	ExecRuntime          ExecutionErrorKind = "runtime_error"
	ExecMissingEntry     ExecutionErrorKind = "missing_entry_point"
	ExecResourceExceeded ExecutionErrorKind = "resource_exceeded"
)

// ExecutionError is a failure inside the sandbox. Message is derived from the
// underlying engine failure but never carries a stack trace.
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// CapabilityErrorKind classifies capability-bridge failures.
type CapabilityErrorKind string

const (
	CapUnknown     CapabilityErrorKind = "unknown_capability"
	CapInvalidArgs CapabilityErrorKind = "invalid_arguments"
	CapTransport   CapabilityErrorKind = "transport_failure"
)

// CapabilityError is a failure of a built-in side effect. InvalidArgs and
// Unknown are raised before any external call is attempted.
type CapabilityError struct {
	Kind       CapabilityErrorKind
	Capability string
	Message    string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s: %s: %s", e.Capability, e.Kind, e.Message)
}
