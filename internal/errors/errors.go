// Package errors defines the stable error codes returned across the
// project service and command layer.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is a stable, machine-readable failure category.
type ErrorCode string

const (
	// ConfigParse covers malformed config JSON and invalid options.
	ConfigParse ErrorCode = "CONFIG_PARSE"
	// ConfigResolution covers include patterns that could not be expanded.
	ConfigResolution ErrorCode = "CONFIG_RESOLUTION"
	// ReferenceCycle indicates project references that form a cycle.
	ReferenceCycle ErrorCode = "REFERENCE_CYCLE"
	// BuildFailed indicates analysis-engine errors during a build.
	BuildFailed ErrorCode = "BUILD_FAILED"
	// WatchSetup indicates a watch could not be installed.
	WatchSetup ErrorCode = "WATCH_SETUP"
	// ProjectNotFound indicates an unknown project name.
	ProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	// FileNotOpen indicates a request for a file that is not open.
	FileNotOpen ErrorCode = "FILE_NOT_OPEN"
	// InvalidRequest indicates malformed request arguments.
	InvalidRequest ErrorCode = "INVALID_REQUEST"
	// InternalError indicates an unexpected failure.
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// ProjdError carries a code, a human message and optional details.
type ProjdError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Hint    string      `json:"hint,omitempty"`
	cause   error
}

// New creates a ProjdError. The hint defaults to the code's registered hint.
func New(code ErrorCode, message string, cause error) *ProjdError {
	return &ProjdError{
		Code:    code,
		Message: message,
		Hint:    hints[code],
		cause:   cause,
	}
}

// Newf creates a ProjdError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *ProjdError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface.
func (e *ProjdError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProjdError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details.
func (e *ProjdError) WithDetails(details interface{}) *ProjdError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first ProjdError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var pe *ProjdError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var pe *ProjdError
	return stderrors.As(err, &pe) && pe.Code == code
}

var hints = map[ErrorCode]string{
	ReferenceCycle:  "remove one of the references listed in the cycle",
	FileNotOpen:     "send openFile before querying the file",
	ProjectNotFound: "use getProjectsForFile to list known projects",
	WatchSetup:      "automatic reload is degraded; changes are picked up on the next open",
}

// NewProjectNotFound reports an unknown project name.
func NewProjectNotFound(name string) *ProjdError {
	return Newf(ProjectNotFound, "project %q not found", name)
}

// NewFileNotOpen reports a query against a file without an open editor.
func NewFileNotOpen(path string) *ProjdError {
	return Newf(FileNotOpen, "file %q is not open", path)
}

// NewInvalidRequest reports malformed arguments.
func NewInvalidRequest(field, reason string) *ProjdError {
	return Newf(InvalidRequest, "invalid %s: %s", field, reason).WithDetails(map[string]string{"field": field})
}
