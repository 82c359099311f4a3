// Package pipeline performs one build: read the deck source, compile it and
// write the resulting HTML.
//
// A Pipeline runs at most one build at a time. Callers that need ordering
// (the watcher) serialize on top of that; the mutex only guards against
// accidental concurrent use of the same output path.
package pipeline
