package errors

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// CategoryValidation covers usage and option errors detected before any build runs.
	CategoryValidation ErrorCategory = "validation"
	CategoryConfig     ErrorCategory = "config"

	// Build pipeline failures.
	CategoryInputNotFound ErrorCategory = "input_not_found"
	CategoryOutputWrite   ErrorCategory = "output_write"
	CategoryCompile       ErrorCategory = "compile"

	// CategoryWatchTargetRemoved is reported when the watched source disappears.
	CategoryWatchTargetRemoved ErrorCategory = "watch_target_removed"

	// CategoryNetwork covers remote asset fetches in embed mode.
	CategoryNetwork ErrorCategory = "network"

	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// RetryStrategy indicates how an error should be handled in retry scenarios.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"     // Permanent failure, don't retry
	RetryBackoff    RetryStrategy = "backoff"   // Retry with exponential backoff
	RetryNextChange RetryStrategy = "next_edit" // Retried by the next accepted source change
	RetryUserAction RetryStrategy = "user"      // Requires user intervention
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}
