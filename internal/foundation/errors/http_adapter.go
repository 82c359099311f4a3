package errors

import (
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter maps classified errors onto preview server responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter with an optional slog logger.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// StatusCodeFor determines the HTTP status code for an error. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCategory(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryInputNotFound:
		return http.StatusNotFound
	case CategoryCompile:
		return http.StatusUnprocessableEntity
	case CategoryNetwork:
		return http.StatusBadGateway
	case CategoryRuntime, CategoryWatchTargetRemoved:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a plain-text error response and logs it.
func (a *HTTPErrorAdapter) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	status := a.StatusCodeFor(err)
	message := err.Error()
	if classified, ok := AsClassified(err); ok {
		message = classified.Message()
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("preview request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		a.logger.Warn("preview request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	http.Error(w, message, status)
}
