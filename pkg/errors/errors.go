package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode defines known error types in the system.
type ErrorCode int

const (
	// Core error codes.
	Unknown ErrorCode = iota
	InvalidInput
	ValidationFailed
	ResourceNotFound
	Timeout
	RateLimitExceeded
	Canceled

	// LLM specific errors.
	LLMGenerationFailed
	TokenLimitExceeded
	InvalidResponse

	// Pipeline errors.
	PipelineExecutionFailed
	StageExecutionFailed
	InvalidPipelineState

	// Storage errors.
	StorageFailed
)

// Error represents a structured error with context.
type Error struct {
	code     ErrorCode // Type of error
	message  string    // Human-readable message
	original error     // Original/wrapped error
	fields   Fields    // Additional context
}

// Fields carries structured data about the error.
type Fields map[string]interface{}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.message)

	if e.original != nil {
		b.WriteString(": ")
		b.WriteString(e.original.Error())
	}

	if len(e.fields) > 0 {
		b.WriteString(" [")
		for k, v := range e.fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
		b.WriteString("]")
	}

	return strings.TrimSpace(b.String())
}

func (e *Error) Unwrap() error {
	return e.original
}

func (e *Error) Code() ErrorCode {
	return e.code
}

// New creates a new error with a code and message.
func New(code ErrorCode, message string) error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		code:     code,
		message:  message,
		original: err,
	}
}

// WithFields adds structured context to an error.
func WithFields(err error, fields Fields) error {
	if err == nil {
		return nil
	}

	// If it's already our error type, add fields
	if e, ok := err.(*Error); ok {
		newFields := make(Fields)
		for k, v := range e.fields {
			newFields[k] = v
		}
		for k, v := range fields {
			newFields[k] = v
		}

		return &Error{
			code:     e.code,
			message:  e.message,
			original: e.original,
			fields:   newFields,
		}
	}

	// Otherwise, create new error
	return &Error{
		code:     Unknown,
		message:  err.Error(),
		original: err,
		fields:   fields,
	}
}

// Code extracts the error code from an error, walking the wrap chain.
// Plain errors report Unknown.
func Code(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return Unknown
}

// Is reports whether any error in err's chain matches target.
// It mirrors the standard library so callers need only one errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is implements error matching.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// As implements error type casting for errors.As.
func (e *Error) As(target interface{}) bool {
	// Check if target is a pointer to *Error
	errorPtr, ok := target.(**Error)
	if !ok {
		return false
	}
	// Set the target pointer to our error
	*errorPtr = e
	return true
}

func (e *Error) Fields() Fields {
	if e.fields == nil {
		return Fields{}
	}
	// Create a copy of the fields map
	fields := make(Fields, len(e.fields))
	for k, v := range e.fields {
		fields[k] = v
	}
	return fields
}
