// Package errors provides error types and handling for the traffic profiler.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes analysis errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// InputEmpty means a host has no captured exchanges.
	InputEmpty
	// MalformedBody means a body did not parse under its declared content type.
	MalformedBody
	// Unclassified means no RPC rule matched an exchange.
	Unclassified
	// ExternalCall represents a failure on an optional out-of-core call.
	ExternalCall
	// Storage represents capture-store failures.
	Storage
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case InputEmpty:
		return "input_empty"
	case MalformedBody:
		return "malformed_body"
	case Unclassified:
		return "unclassified"
	case ExternalCall:
		return "external_call"
	case Storage:
		return "storage"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFatal reports whether errors of this type abort a batch. Malformed or
// missing traffic data never does.
func (t ErrorType) IsFatal() bool {
	switch t {
	case InputEmpty, MalformedBody, Unclassified, ExternalCall:
		return false
	default:
		return true
	}
}

// AnalysisError represents a categorized analysis error.
type AnalysisError struct {
	Type      ErrorType
	Host      string
	Operation string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.Host, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.Host, e.Message)
}

// Unwrap returns the underlying error.
func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target by type.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewAnalysisError creates a new AnalysisError.
func NewAnalysisError(errType ErrorType, host, operation, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Type:      errType,
		Host:      host,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewInputEmptyError creates the typed not-found result for a host with no
// captured exchanges.
func NewInputEmptyError(host, operation string) *AnalysisError {
	return NewAnalysisError(InputEmpty, host, operation, "no exchanges captured for host", nil)
}

// NewMalformedBodyError creates a malformed-body error.
func NewMalformedBodyError(host, operation string, cause error) *AnalysisError {
	return NewAnalysisError(MalformedBody, host, operation, "body did not parse", cause)
}

// NewExternalCallError creates an external-call error. Callers recover it
// locally and keep the reason for logging.
func NewExternalCallError(host, operation string, cause error) *AnalysisError {
	return NewAnalysisError(ExternalCall, host, operation, "optional external call failed", cause)
}

// NewStorageError creates a capture-store error.
func NewStorageError(host, operation string, cause error) *AnalysisError {
	return NewAnalysisError(Storage, host, operation, "capture store failure", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(host, operation string) *AnalysisError {
	return NewAnalysisError(Cancelled, host, operation, "analysis cancelled", nil)
}

// IsInputEmpty checks if an error is the typed not-found result.
func IsInputEmpty(err error) bool {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Type == InputEmpty
	}
	return false
}

// IsCancelled checks if an error is a cancellation.
func IsCancelled(err error) bool {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Type == Cancelled
	}
	return false
}

// IsExternalCall checks if an error came from an optional external call.
func IsExternalCall(err error) bool {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Type == ExternalCall
	}
	return false
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Type
	}
	return Unknown
}
