package supervisor

import (
	"errors"
	"fmt"
)

// Error is a control-surface error with a stable code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeCameraNotFound = "CAMERA_NOT_FOUND"
	ErrCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrCodeNotRunning     = "NOT_RUNNING"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodePipelineError  = "PIPELINE_ERROR"
)

// NewError creates a new supervisor error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Code extracts the code of a supervisor error, or "" for other errors.
func Code(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func notFound(index int) *Error {
	return NewError(ErrCodeCameraNotFound, fmt.Sprintf("camera %d not found", index), nil)
}
