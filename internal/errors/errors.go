// Package errors implements the error taxonomy from the detection core's
// error handling design: preparation failures, transient store failures,
// enforcement failures, fingerprint config parse failures, and fatal
// startup/shutdown conditions.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError into one of the core's recovery paths.
type ErrorType string

const (
	// ErrorTypePreparation marks a blocker that failed its one-time
	// startup check. Fatal for that blocker only; the loop disables it
	// and continues with the rest.
	ErrorTypePreparation ErrorType = "preparation"

	// ErrorTypeTransientStore marks a detector query that failed against
	// the access-log store. Swallowed per detector; the next iteration
	// retries.
	ErrorTypeTransientStore ErrorType = "transient_store"

	// ErrorTypeEnforcement marks a block/release/apply call that failed
	// against an enforcement back-end. Logged with the user identity;
	// the authoritative block-list is still updated as if it succeeded.
	ErrorTypeEnforcement ErrorType = "enforcement"

	// ErrorTypeConfigParse marks one unparseable line of the fingerprint
	// config file. The line is skipped; the rest of the file still loads.
	ErrorTypeConfigParse ErrorType = "config_parse"

	// ErrorTypeFatal marks a condition that ends the process: a missing
	// config file at startup, or a signal-requested shutdown.
	ErrorTypeFatal ErrorType = "fatal"
)

// AppError is a structured error carrying a classification, a message,
// optional free-form details, and an optional wrapped cause.
type AppError struct {
	Type    ErrorType
	Message string
	Details string
	Cause   error
}

// New creates an AppError with no cause.
func New(errType ErrorType, message string) *AppError {
	return &AppError{Type: errType, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError that carries an underlying cause.
func Wrap(cause error, errType ErrorType, message string) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

// Wrapf creates an AppError with a formatted message and an underlying cause.
func Wrapf(cause error, errType ErrorType, format string, args ...any) *AppError {
	return Wrap(cause, errType, fmt.Sprintf(format, args...))
}

// WithDetails attaches free-form details to the error in place and
// returns it for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches formatted details in place.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	return msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether this error type ends the process rather than
// being recovered locally by the iteration it occurred in.
func (e *AppError) Fatal() bool {
	return e.Type == ErrorTypeFatal
}

// NewPreparationError reports that an enforcement back-end failed its
// startup check.
func NewPreparationError(blocker string, cause error) *AppError {
	return Wrapf(cause, ErrorTypePreparation, "blocker %q failed preparation", blocker)
}

// NewTransientStoreError reports that a detector's query against the
// access-log store failed.
func NewTransientStoreError(detector string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeTransientStore, "detector %q query failed", detector)
}

// NewEnforcementError reports that a block/release/apply call failed
// against an enforcement back-end.
func NewEnforcementError(blocker, op string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeEnforcement, "blocker %q %s failed", blocker, op)
}

// NewConfigParseError reports that one line of a config file could not
// be parsed.
func NewConfigParseError(line string) *AppError {
	return New(ErrorTypeConfigParse, "could not parse line").WithDetailsf("line: %q", line)
}

// NewFatalError reports a startup/shutdown condition that ends the
// process.
func NewFatalError(message string) *AppError {
	return New(ErrorTypeFatal, message)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// GetType returns the AppError's type, or ErrorTypeEnforcement for a
// non-AppError (the closest "something went wrong at runtime, recover
// locally" default in this taxonomy).
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeEnforcement
}

// IsFatal reports whether err (of any type) should end the process.
func IsFatal(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Fatal()
	}
	return false
}
