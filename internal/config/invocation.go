package config

import (
	"path/filepath"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

// Command identifies one of the CLI verbs.
type Command string

const (
	CommandBuild  Command = "build"
	CommandServe  Command = "serve"
	CommandExport Command = "export"
)

// Format is the export output format.
type Format string

const FormatHTML Format = "html"

// Invocation is the parsed, immutable description of one CLI run.
type Invocation struct {
	Command    Command
	InputPath  string
	OutputPath string
	Port       int
	Watch      bool
	Format     Format
}

// BuildConfig is handed to the compiler for every build.
type BuildConfig struct {
	// RootPath is the absolute directory containing the input; relative
	// references in the source resolve against it.
	RootPath string
	// Embed inlines external assets so the output is self-contained. It may
	// fetch remote resources and is only enabled for export.
	Embed bool
}

// NewBuildConfig derives the build configuration for input.
func NewBuildConfig(input string, embed bool) (BuildConfig, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return BuildConfig{}, ferrors.WrapError(err, ferrors.CategoryValidation, "cannot resolve input path").
			WithContext("input", input).
			Build()
	}
	return BuildConfig{RootPath: filepath.Dir(abs), Embed: embed}, nil
}

// BuildConfig returns the build configuration implied by the invocation.
// Only export embeds assets.
func (inv Invocation) BuildConfig() (BuildConfig, error) {
	return NewBuildConfig(inv.InputPath, inv.Command == CommandExport)
}

// Validate checks the invariants the router relies on before any build runs.
func (inv Invocation) Validate() error {
	switch inv.Command {
	case CommandBuild, CommandServe, CommandExport:
	default:
		return ferrors.ValidationError("unknown command").WithContext("command", string(inv.Command)).Build()
	}
	if inv.InputPath == "" {
		return ferrors.ValidationError("missing required flag --input").Build()
	}
	if inv.Command != CommandServe && inv.OutputPath == "" {
		return ferrors.ValidationError("missing output path").Build()
	}
	if inv.Command == CommandServe && (inv.Port < 0 || inv.Port > 65535) {
		return ferrors.ValidationError("port out of range").WithContext("port", inv.Port).Build()
	}
	if inv.Command == CommandExport && inv.Format != FormatHTML {
		return ferrors.ValidationError("unsupported export format").WithContext("format", string(inv.Format)).Build()
	}
	return nil
}
