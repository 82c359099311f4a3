// Package events defines the notifications emitted by a watch session and the
// in-process bus that fans them out to the preview server, loggers and tests.
package events

import "time"

// Event is implemented by every watch session notification.
type Event interface {
	EventName() string
}

// BuildStarted is emitted when an accepted change starts a rebuild.
type BuildStarted struct {
	Input       string
	Output      string
	TriggeredAt time.Time
}

// BuildCompleted is emitted after a rebuild wrote its output. Subscribers such
// as the preview server react to it by reloading clients.
type BuildCompleted struct {
	Input       string
	Output      string
	Fingerprint string
	Bytes       int
	Duration    time.Duration
	TriggeredAt time.Time
	// Seq counts completed builds in this session, starting at 1.
	Seq int
}

// BuildFailed is emitted when a rebuild fails. No BuildCompleted follows for
// the same trigger.
type BuildFailed struct {
	Input       string
	Err         error
	TriggeredAt time.Time
	// Retryable is set when the next accepted change may fix the build,
	// as with compile errors. Write failures are not retryable.
	Retryable bool
}

// WatchTerminated is emitted once when the watched path is removed or renamed.
type WatchTerminated struct {
	Path   string
	Reason string
	At     time.Time
}

func (BuildStarted) EventName() string    { return "build_started" }
func (BuildCompleted) EventName() string  { return "build_completed" }
func (BuildFailed) EventName() string     { return "build_failed" }
func (WatchTerminated) EventName() string { return "watch_terminated" }
