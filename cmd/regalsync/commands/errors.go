package commands

import (
	"context"
	"io"
	"os"

	"github.com/pterm/pterm"

	"github.com/teranos/regalsync/errors"
)

// Process exit codes
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitFatal     = 2
	ExitCancelled = 130
)

// stderr receives error output; replaced in tests
var stderr io.Writer = os.Stderr

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.IsFatal(err):
		return ExitFatal
	default:
		return ExitFailure
	}
}

// PrintError prints err and its hints to stderr
func PrintError(err error) {
	pterm.Error.WithWriter(stderr).Println(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		pterm.Info.WithWriter(stderr).Println(hint)
	}
}
