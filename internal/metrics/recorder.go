package metrics

import "time"

// Outcome labels build results.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeInputNotFound  Outcome = "input_not_found"
	OutcomeCompileFailure Outcome = "compile_failure"
	OutcomeWriteFailure   Outcome = "output_write_failure"
)

// Recorder defines observability hooks for builds, watch notifications and
// live-reload traffic. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome Outcome)
	// IncWatchNotification counts a filesystem notification by kind and
	// whether the debouncer accepted it.
	IncWatchNotification(kind string, accepted bool)
	IncReloadBroadcast()
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
func (NoopRecorder) IncBuildOutcome(Outcome) {}
func (NoopRecorder) IncWatchNotification(string, bool) {}
func (NoopRecorder) IncReloadBroadcast() {}
func (NoopRecorder) SetLiveReloadClients(int) {}
