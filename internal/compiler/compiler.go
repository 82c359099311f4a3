// Package compiler turns deck source text into a standalone HTML document.
//
// The orchestration core only depends on the Compiler interface. Markdown is
// the default implementation; tests and alternative front ends can supply
// their own through Func.
package compiler

import (
	"context"

	"git.home.luguber.info/inful/preleganto/internal/config"
)

// Compiler converts source text into an HTML document.
//
// Implementations may perform network requests when cfg.Embed is set and
// must honor ctx for those requests.
type Compiler interface {
	Compile(ctx context.Context, source string, cfg config.BuildConfig) (string, error)
}

// Func adapts an ordinary function to the Compiler interface.
type Func func(ctx context.Context, source string, cfg config.BuildConfig) (string, error)

// Compile calls f.
func (f Func) Compile(ctx context.Context, source string, cfg config.BuildConfig) (string, error) {
	return f(ctx, source, cfg)
}
