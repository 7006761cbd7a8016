package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a step error for retry and outcome logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed
	// on retry. Examples: download timeouts, package index refresh races.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassUnsupported indicates the target environment cannot carry
	// this resource at all (missing binary, absent preference schema).
	// Unsupported is not a failure: the step ends Skipped.
	ErrorClassUnsupported ErrorClass = "unsupported"

	// ErrorClassPermanent indicates an attempted operation that failed
	// and will not succeed on retry.
	ErrorClassPermanent ErrorClass = "permanent"
)

// StepError is a classified error raised by an adapter. Adapters never
// surface raw backend errors to the executor; they classify into this
// taxonomy first.
type StepError struct {
	// Class drives retry and outcome handling.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource ID that caused the error, if known.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)%s", e.Class, e.Message, e.Resource, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// NewTransientError creates a transient (retryable) error.
func NewTransientError(message string, err error) *StepError {
	return &StepError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewUnsupportedError creates an unsupported-environment error.
func NewUnsupportedError(message string, err error) *StepError {
	return &StepError{Class: ErrorClassUnsupported, Message: message, Err: err}
}

// NewPermanentError creates a permanent (non-retryable) error.
func NewPermanentError(message string, err error) *StepError {
	return &StepError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to the error.
func (e *StepError) WithResource(resourceID string) *StepError {
	e.Resource = resourceID
	return e
}

// WithCode adds an error code to the error.
func (e *StepError) WithCode(code string) *StepError {
	e.Code = code
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsUnsupported returns true if the error reports an unsupported environment.
func IsUnsupported(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnsupported
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *StepError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the executor may retry the operation.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

// Common error codes.
const (
	ErrCodeCommand          = "COMMAND_FAILED"
	ErrCodeDownload         = "DOWNLOAD_FAILED"
	ErrCodeChecksum         = "CHECKSUM_MISMATCH"
	ErrCodeMissingBinary    = "MISSING_BINARY"
	ErrCodeMissingSchema    = "MISSING_SCHEMA"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
