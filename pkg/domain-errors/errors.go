// Package domainerrors defines coded errors shared by services and transports.
//
// Services return *Error values so the transport layer can translate them into
// status codes without inspecting messages. Infrastructure facts (not found,
// invalid state) travel as sentinel errors until a service gives them meaning.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies an error for presentation at the boundary.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeBadRequest        Code = "bad_request"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeUnsupportedFilter Code = "unsupported_filter"
	CodeUnavailable       Code = "unavailable"
	CodeInternal          Code = "internal_error"
)

// Error is a coded, optionally field-scoped domain error.
type Error struct {
	Code    Code
	Message string

	// Field names the offending input field for validation errors.
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewField creates a validation error scoped to a single input field.
func NewField(field, reason string) error {
	return &Error{Code: CodeValidation, Message: reason, Field: field}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error carries code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// FieldOf returns the field of a validation error, or "" if there is none.
func FieldOf(err error) string {
	var de *Error
	for errors.As(err, &de) {
		if de.Field != "" {
			return de.Field
		}
		if de.Err == nil {
			return ""
		}
		err = de.Err
	}
	return ""
}

// ToHTTPStatus maps an error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeUnsupportedFilter:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
