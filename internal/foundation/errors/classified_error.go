package errors

import (
	stderrors "errors"
	"strings"
)

// ClassifiedError is an error with a category that decides how the CLI and
// the preview server report it.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	retry    RetryStrategy
	message  string
	cause    error
	context  ErrorContext
}

// Error renders "[category:severity] message: cause".
func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.category))
	sb.WriteString(":")
	sb.WriteString(string(e.severity))
	sb.WriteString("] ")
	sb.WriteString(e.message)
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *ClassifiedError) Unwrap() error { return e.cause }

func (e *ClassifiedError) Category() ErrorCategory { return e.category }
func (e *ClassifiedError) Severity() ErrorSeverity { return e.severity }
func (e *ClassifiedError) Cause() error            { return e.cause }
func (e *ClassifiedError) Context() ErrorContext   { return e.context }

// Message is the human text without category or cause; it is what users see
// without --verbose.
func (e *ClassifiedError) Message() string { return e.message }

// Is matches another ClassifiedError with the same category and message.
func (e *ClassifiedError) Is(target error) bool {
	other, ok := target.(*ClassifiedError)
	return ok && e.category == other.category && e.message == other.message
}

// CanRetry reports whether repeating the operation without user action may succeed.
func (e *ClassifiedError) CanRetry() bool {
	return e.retry == RetryBackoff || e.retry == RetryNextChange
}

// IsFatal reports whether the error ends the process.
func (e *ClassifiedError) IsFatal() bool { return e.severity == SeverityFatal }

// AsClassified finds the first ClassifiedError in the chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// HasCategory reports whether the first ClassifiedError in the chain is in category.
func HasCategory(err error, category ErrorCategory) bool {
	classified, ok := AsClassified(err)
	return ok && classified.category == category
}

// GetCategory returns the category of err, or CategoryInternal when err is
// not classified.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.category
	}
	return CategoryInternal
}

func IsInputNotFound(err error) bool      { return HasCategory(err, CategoryInputNotFound) }
func IsOutputWriteFailure(err error) bool { return HasCategory(err, CategoryOutputWrite) }
func IsCompileFailure(err error) bool     { return HasCategory(err, CategoryCompile) }
func IsWatchTargetRemoved(err error) bool { return HasCategory(err, CategoryWatchTargetRemoved) }
