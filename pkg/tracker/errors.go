package tracker

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a tracker error. The class
// decides how far an error propagates: parse and stale-operation errors are
// absorbed inside the tracker, transport and server errors terminate the
// session, and validation errors prevent a session from ever starting.
type ErrorClass string

const (
	// ErrorClassTransport indicates the push channel failed to open or
	// dropped unexpectedly.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassParse indicates a malformed push message. Absorbed locally;
	// the stream continues.
	ErrorClassParse ErrorClass = "parse"

	// ErrorClassServer indicates the server reported an explicit operation
	// failure. Fatal for the operation.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassValidation indicates a precondition was unmet before the
	// operation started. Raised synchronously, never reaches the stream layer.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassStale indicates an event arrived for an operation that is no
	// longer active. Ignored, debug-logged only.
	ErrorClassStale ErrorClass = "stale_operation"
)

// TrackerError represents a classified error with operation context.
// nolint:revive // TrackerError is intentionally named to distinguish from standard errors
type TrackerError struct {
	// Class is the error classification deciding propagation.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// OperationID is the operation that caused the error, if applicable.
	OperationID string `json:"operation_id,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("[%s] %s (operation=%s): %s",
			e.Class, e.Message, e.OperationID, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *TrackerError) Unwrap() error {
	return e.Err
}

func (e *TrackerError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *TrackerError) Is(target error) bool {
	t, ok := target.(*TrackerError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransportError creates a new transport error.
func NewTransportError(message string, err error) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassTransport,
		Message: message,
		Err:     err,
	}
}

// NewParseError creates a new parse error.
func NewParseError(message string, err error) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassParse,
		Message: message,
		Err:     err,
	}
}

// NewServerError creates a new server-reported error.
func NewServerError(message string) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassServer,
		Message: message,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassValidation,
		Message: message,
	}
}

// NewStaleOperationError creates a new stale-operation error.
func NewStaleOperationError(operationID string) *TrackerError {
	return &TrackerError{
		Class:       ErrorClassStale,
		Message:     "event for inactive operation",
		OperationID: operationID,
	}
}

// WithOperation adds operation context to an error.
func (e *TrackerError) WithOperation(operationID string) *TrackerError {
	e.OperationID = operationID
	return e
}

// WithCode adds an error code to an error.
func (e *TrackerError) WithCode(code string) *TrackerError {
	e.Code = code
	return e
}

// IsTransport returns true if the error is classified as a transport failure.
func IsTransport(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransport
	}
	return false
}

// IsParse returns true if the error is classified as a parse failure.
func IsParse(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassParse
	}
	return false
}

// IsServerReported returns true if the error is a server-reported failure.
func IsServerReported(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassServer
	}
	return false
}

// IsValidation returns true if the error is classified as a validation failure.
func IsValidation(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsStaleOperation returns true if the error is a stale-operation error.
func IsStaleOperation(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassStale
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeTransport        = "TRANSPORT_ERROR"
	ErrCodeServerRejected   = "SERVER_REJECTED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeStreamClosed     = "STREAM_CLOSED"
)
