// Package errors provides the classified error primitives used across preleganto.
//
// Every failure that reaches the process boundary is a ClassifiedError. Its
// category selects the exit code (see CLIErrorAdapter) and the HTTP status
// used by the preview server (see HTTPErrorAdapter).
//
// Example usage:
//
//	err := errors.WrapError(readErr, errors.CategoryInputNotFound, "cannot read input").
//		WithContext("input", path).
//		Build()
package errors
