package watch

import "time"

// DefaultDebounce is the trigger key resolution used when none is configured.
const DefaultDebounce = time.Second

// Clock supplies the current time. Tests inject a controllable implementation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Debouncer drops change notifications that fall into the same interval as
// the last accepted one.
//
// The trigger key of a notification is the clock time truncated to the
// interval. A notification is accepted when its key differs from the last
// accepted key. Two notifications a few milliseconds apart may therefore both
// be accepted if they straddle an interval boundary.
//
// A Debouncer is not safe for concurrent use; the watcher's event loop owns it.
type Debouncer struct {
	interval time.Duration
	clock    Clock

	last     time.Time
	accepted bool
}

// NewDebouncer returns a Debouncer. Non-positive intervals fall back to
// DefaultDebounce and a nil clock to SystemClock.
func NewDebouncer(interval time.Duration, clock Clock) *Debouncer {
	if interval <= 0 {
		interval = DefaultDebounce
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Debouncer{interval: interval, clock: clock}
}

// Interval returns the effective debounce interval.
func (d *Debouncer) Interval() time.Duration { return d.interval }

// Accept computes the trigger key for a notification arriving now and
// reports whether it should start a rebuild.
func (d *Debouncer) Accept() (time.Time, bool) {
	key := d.clock.Now().Truncate(d.interval)
	if d.accepted && key.Equal(d.last) {
		return key, false
	}
	d.last = key
	d.accepted = true
	return key, true
}

// Last returns the last accepted trigger key, if any.
func (d *Debouncer) Last() (time.Time, bool) {
	return d.last, d.accepted
}
