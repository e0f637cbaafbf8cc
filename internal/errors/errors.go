// Package errors defines the coded error type shared by the detection
// pipeline, the document readers and the server.
//
// Every error carries an ErrorCode. Callers test for a kind with the standard
// library: errors.Is(err, apperrors.ErrInvalidInputShape) matches any *Error
// with the same code, however deeply it is wrapped.
package errors

import (
	"fmt"
)

// ErrorCode identifies an error kind.
type ErrorCode string

const (
	// Pipeline errors
	ErrorInvalidInputShape      ErrorCode = "INVALID_INPUT_SHAPE"
	ErrorModelContractViolation ErrorCode = "MODEL_CONTRACT_VIOLATION"
	ErrorInvalidConfig          ErrorCode = "INVALID_CONFIG"

	// Page source errors
	ErrorFileNotFound       ErrorCode = "FILE_NOT_FOUND"
	ErrorUndecodableContent ErrorCode = "UNDECODABLE_CONTENT"
	ErrorUnsupportedType    ErrorCode = "UNSUPPORTED_TYPE"

	// Recognition errors
	ErrorOCRFailed ErrorCode = "OCR_FAILED"
)

// Sentinels for errors.Is. They carry no message of their own.
var (
	ErrInvalidInputShape      = &Error{Code: ErrorInvalidInputShape}
	ErrModelContractViolation = &Error{Code: ErrorModelContractViolation}
	ErrInvalidConfig          = &Error{Code: ErrorInvalidConfig}
	ErrFileNotFound           = &Error{Code: ErrorFileNotFound}
	ErrUndecodableContent     = &Error{Code: ErrorUndecodableContent}
	ErrUnsupportedType        = &Error{Code: ErrorUnsupportedType}
	ErrOCRFailed              = &Error{Code: ErrorOCRFailed}
)

// Error is a structured error with a code, a human readable message and
// optional details and cause.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates an error with the given code and formatted message.
func New(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with the given code that wraps cause.
func Wrap(code ErrorCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Factory functions for the common kinds

func NewInvalidInputShapeError(index int, reason string) *Error {
	return &Error{
		Code:    ErrorInvalidInputShape,
		Message: "incorrect input shape: all pages are expected to be 3-channel 2D images",
		Details: map[string]interface{}{
			"page_index": index,
			"reason":     reason,
		},
	}
}

func NewModelContractError(reason string) *Error {
	return &Error{
		Code:    ErrorModelContractViolation,
		Message: reason,
	}
}

func NewInvalidConfigError(field string, reason string) *Error {
	return &Error{
		Code:    ErrorInvalidConfig,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

func NewFileNotFoundError(path string, cause error) *Error {
	return &Error{
		Code:    ErrorFileNotFound,
		Message: fmt.Sprintf("unable to access %s", path),
		Details: map[string]interface{}{
			"path": path,
		},
		Cause: cause,
	}
}

func NewUndecodableError(what string, cause error) *Error {
	return &Error{
		Code:    ErrorUndecodableContent,
		Message: fmt.Sprintf("unable to decode %s", what),
		Cause:   cause,
	}
}

func NewUnsupportedTypeError(reason string) *Error {
	return &Error{
		Code:    ErrorUnsupportedType,
		Message: reason,
	}
}

// ToMap converts the error to a map for tool responses and structured logs.
func (e *Error) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
