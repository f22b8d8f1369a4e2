/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"errors"
	"fmt"
)

// StatusError is the unified error carried across the AIBoMGen services.
// It pairs an HTTP status code with a prefixed reason code (see error_code.go)
// and a human readable message.
type StatusError struct {
	Code    int
	Reason  string
	Message string
	Inner   error
}

// Error implements the error interface and returns a formatted error string.
func (e *StatusError) Error() string {
	if e.Inner == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Inner)
}

func (e *StatusError) Unwrap() error {
	return e.Inner
}

// WithError sets the inner error and returns the StatusError for chaining.
func (e *StatusError) WithError(err error) *StatusError {
	e.Inner = err
	return e
}

// ReasonForError returns the reason code of an error, or an empty string when
// the error does not carry one.
func ReasonForError(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Reason
	}
	return ""
}

// CodeForError returns the HTTP status code of an error, defaulting to 500
// for errors that do not carry one.
func CodeForError(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 500
}
