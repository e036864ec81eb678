// Package main provides the wptdiff CLI entrypoint.
//
// Usage:
//
//	wptdiff run --url <a> --url <b> [options]
//	wptdiff version
//
// Exit codes for `run`:
//   - 0: comparison complete
//   - 1: comparison failed (launch, poll, result or video stage)
//   - 2: invalid input or configuration
//   - 3: comparison complete but the report or event could not be published
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/wptdiff/cli/cmd"
	"github.com/pithecene-io/wptdiff/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Overridden in tests.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	app := &cli.App{
		Name:           "wptdiff",
		Usage:          "Compare page loads side by side on WebPageTest",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// Only reached for errors ExitErrHandler did not terminate on.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes set through cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is "exit status N"; nothing worth printing.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		exit(code)
		return
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	exit(1)
}
