package errors

import "maps"

// categoryDefaults is the severity and retry behavior each category starts with.
var categoryDefaults = map[ErrorCategory]struct {
	severity ErrorSeverity
	retry    RetryStrategy
}{
	CategoryValidation:         {SeverityFatal, RetryUserAction},
	CategoryConfig:             {SeverityFatal, RetryUserAction},
	CategoryInputNotFound:      {SeverityFatal, RetryUserAction},
	CategoryOutputWrite:        {SeverityFatal, RetryNever},
	CategoryCompile:            {SeverityFatal, RetryNextChange},
	CategoryWatchTargetRemoved: {SeverityInfo, RetryNever},
	CategoryNetwork:            {SeverityError, RetryBackoff},
	CategoryRuntime:            {SeverityFatal, RetryNever},
	CategoryInternal:           {SeverityFatal, RetryNever},
}

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error in category with the category's default severity
// and retry strategy.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	b := &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
	}}
	if d, ok := categoryDefaults[category]; ok {
		b.err.severity = d.severity
		b.err.retry = d.retry
	}
	return b
}

// WrapError starts an error in category caused by err.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.err.cause = err
	return b
}

// WithSeverity overrides the severity.
func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.err.severity = severity
	return b
}

// WithContext attaches a key/value shown in verbose output and logs.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

// Fatal marks the error as ending the process.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	return b.WithSeverity(SeverityFatal)
}

// Build returns the error. The builder may be reused; each call returns a copy.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	e.context = maps.Clone(b.err.context)
	return &e
}

// ValidationError reports a usage or option problem found before any build.
func ValidationError(message string) *ErrorBuilder { return NewError(CategoryValidation, message) }

// ConfigError reports an unreadable or invalid settings file.
func ConfigError(message string) *ErrorBuilder { return NewError(CategoryConfig, message) }

// InputNotFound reports an unreadable deck source.
func InputNotFound(message string) *ErrorBuilder { return NewError(CategoryInputNotFound, message) }

// OutputWriteFailure reports that the compiled document could not be written.
func OutputWriteFailure(message string) *ErrorBuilder { return NewError(CategoryOutputWrite, message) }

// CompileFailure reports a compiler error; the next source change retries.
func CompileFailure(message string) *ErrorBuilder { return NewError(CategoryCompile, message) }

// WatchTargetRemoved reports that the watched source went away.
func WatchTargetRemoved(message string) *ErrorBuilder {
	return NewError(CategoryWatchTargetRemoved, message)
}

// NetworkError reports a failed remote asset fetch.
func NetworkError(message string) *ErrorBuilder { return NewError(CategoryNetwork, message) }

// RuntimeError reports a failure of the running session, such as the server.
func RuntimeError(message string) *ErrorBuilder { return NewError(CategoryRuntime, message) }

// InternalError reports a programming error.
func InternalError(message string) *ErrorBuilder { return NewError(CategoryInternal, message) }
