package pipeline

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a credential mismatch on an inbound webhook or
// callback. Handlers map it to 401.
var ErrUnauthorized = errors.New("webhook credential mismatch")

// ValidationError marks a malformed or unprocessable request. Handlers map
// it to 400.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ResolutionError marks a referenced record that could not be resolved.
// Handlers map it to 404.
type ResolutionError struct {
	Resource string
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return "cannot resolve " + e.Resource + ": " + e.Err.Error()
	}
	return "cannot resolve " + e.Resource
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// PersistenceError marks a storage failure. Handlers map it to 500.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
