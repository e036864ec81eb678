// Package cmd provides CLI commands for the wptdiff binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml (default: table on a TTY, json otherwise)",
	}

	// NoColorFlag disables colored table output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// OutputFlags returns the flags every command that renders output accepts.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag}
}

// isStderrTTY reports whether stderr is attached to a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
