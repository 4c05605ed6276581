// Package errs defines the error taxonomy shared by the text2sql pipeline.
//
// Components wrap native failures (driver errors, HTTP errors from model
// providers, object store errors) into *Error so the API boundary can map
// them to a status code without importing driver packages.
package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindConfiguration
	KindSchemaRetrieval
	KindRetrieval
	KindQueryGeneration
	KindQueryExecution
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConfiguration:
		return "configuration_error"
	case KindSchemaRetrieval:
		return "schema_retrieval_error"
	case KindRetrieval:
		return "retrieval_error"
	case KindQueryGeneration:
		return "query_generation_error"
	case KindQueryExecution:
		return "query_execution_error"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the single error type returned across package boundaries.
// Message is safe to show to callers; Err is kept for logging and errors.Is.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Wrap builds an error whose message is "<message>: <cause>".
func Wrap(kind Kind, op, message string, cause error) *Error {
	if cause == nil {
		return E(kind, op, message, nil)
	}
	return E(kind, op, fmt.Sprintf("%s: %v", message, cause), cause)
}

func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing text of err, or the empty string.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var target *Error
	if errors.As(err, &target) {
		return target.Error()
	}
	return err.Error()
}
