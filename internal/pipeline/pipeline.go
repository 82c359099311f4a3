package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/preleganto/internal/compiler"
	"git.home.luguber.info/inful/preleganto/internal/config"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/frontmatter"
	"git.home.luguber.info/inful/preleganto/internal/logfields"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
)

// outputMode is the permission used for generated HTML.
const outputMode = 0o644

// Result describes a successful build.
type Result struct {
	Input  string
	Output string
	// Bytes is the size of the written document.
	Bytes int
	// Fingerprint identifies the source content; identical sources yield
	// identical fingerprints.
	Fingerprint string
	Duration    time.Duration
}

// Pipeline drives a compiler for single builds.
type Pipeline struct {
	compiler compiler.Compiler
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline around c.
func New(c compiler.Compiler, opts ...Option) *Pipeline {
	p := &Pipeline{
		compiler: c,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build reads input, compiles it with cfg and writes the HTML to output.
//
// A read failure returns an input_not_found error and leaves output
// untouched. A compiler failure returns a compile error and writes nothing.
// A write failure returns an output_write error; a partially written file is
// not rolled back.
func (p *Pipeline) Build(ctx context.Context, input, output string, cfg config.BuildConfig) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	res, outcome, err := p.build(ctx, input, output, cfg)
	elapsed := p.now().Sub(start)

	p.recorder.ObserveBuildDuration(elapsed)
	p.recorder.IncBuildOutcome(outcome)
	if err != nil {
		return nil, err
	}

	res.Duration = elapsed
	p.logger.Debug("Build finished",
		logfields.Input(input),
		logfields.Output(output),
		logfields.Bytes(res.Bytes),
		logfields.Duration(elapsed))
	return res, nil
}

func (p *Pipeline) build(ctx context.Context, input, output string, cfg config.BuildConfig) (*Result, metrics.Outcome, error) {
	source, err := os.ReadFile(input) // #nosec G304 -- input is chosen by the user
	if err != nil {
		return nil, metrics.OutcomeInputNotFound, ferrors.WrapError(err, ferrors.CategoryInputNotFound, "cannot read input file").
			WithContext("input", input).
			Fatal().
			Build()
	}

	html, err := p.compiler.Compile(ctx, string(source), cfg)
	if err != nil {
		return nil, metrics.OutcomeCompileFailure, ferrors.WrapError(err, ferrors.CategoryCompile, "compilation failed").
			WithContext("input", input).
			Build()
	}

	// #nosec G306 -- generated HTML is meant to be world readable
	if err := os.WriteFile(output, []byte(html), outputMode); err != nil {
		return nil, metrics.OutcomeWriteFailure, ferrors.WrapError(err, ferrors.CategoryOutputWrite, "cannot write output file").
			WithContext("output", output).
			Build()
	}

	return &Result{
		Input:       input,
		Output:      output,
		Bytes:       len(html),
		Fingerprint: Fingerprint(source),
	}, metrics.OutcomeSuccess, nil
}

// Fingerprint returns the content fingerprint of a deck source.
func Fingerprint(source []byte) string {
	fm, body, had, err := frontmatter.Split(source)
	if err != nil || !had {
		return mdfp.CalculateFingerprintFromParts("", string(source))
	}
	return mdfp.CalculateFingerprintFromParts(string(fm), string(body))
}
