package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/preleganto/cmd/preleganto/commands"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/lifecycle"
	"git.home.luguber.info/inful/preleganto/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes the selected command under a supervisor and
// returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var cli commands.CLI
	global := commands.NewGlobal(stdout, stderr)
	defer global.Bus.Close()

	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("preleganto"),
		kong.Description("Build, serve and export Markdown presentations."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ferrors.ExitInternal
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help or --version already printed.
		return exitCode
	}
	if err != nil {
		return reportParseError(parser, err, stderr)
	}

	adapter := ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).WithOutput(stderr)
	sup := lifecycle.NewSupervisor(adapter, lifecycle.WithLogger(global.Logger))
	global.Supervisor = sup

	return sup.Run(context.Background(), func(ctx context.Context) error {
		kctx.BindTo(ctx, (*context.Context)(nil))
		return kctx.Run()
	})
}

// reportParseError prints a parse failure. Classified errors raised by hooks
// (settings loading) keep their own exit code; everything else is a usage error.
func reportParseError(parser *kong.Kong, err error, stderr io.Writer) int {
	if classified, ok := ferrors.AsClassified(err); ok {
		adapter := ferrors.NewCLIErrorAdapter(false, nil).WithOutput(stderr)
		adapter.Report(classified)
		return adapter.ExitCodeFor(classified)
	}

	var parseErr *kong.ParseError
	if errors.As(err, &parseErr) && parseErr.Context != nil {
		_ = parseErr.Context.PrintUsage(true)
	}
	_, _ = fmt.Fprintf(stderr, "%s: error: %v\n", parser.Model.Name, err)
	return ferrors.ExitUsage
}
