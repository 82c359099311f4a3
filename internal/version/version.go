// Package version exposes build metadata for the --version flag.
package version

import "fmt"

// Version is set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/preleganto/internal/version.Version=v0.3.0".
var Version = "dev"

// Build metadata, also injected via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("preleganto %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
